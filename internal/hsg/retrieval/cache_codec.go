package retrieval

import (
	"encoding/json"

	"hsg/internal/hsg/types"
)

// encodeCache/decodeCache serialize a result page for the §5 query cache,
// keeping the cache.QueryCache interface storage-agnostic ([]byte in, bool
// hit out) whether it is backed by an in-process mutex-guarded map or Redis.
func encodeCache(results []types.ScoredMemory) ([]byte, error) {
	return json.Marshal(results)
}

func decodeCache(raw []byte) ([]types.ScoredMemory, error) {
	var results []types.ScoredMemory
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, err
	}
	return results, nil
}

package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/sector"
)

// payloadIDField carries the (memory_id, sector) pair inside a point's
// payload since Qdrant only accepts UUID or integer point ids; the point id
// itself is a deterministic UUID derived from "id|sector". Adapted from
// internal/persistence/databases/qdrant_vector.go's PAYLOAD_ID_FIELD scheme.
const payloadIDField = "_memory_id"
const payloadSectorField = "_sector"
const payloadUserField = "_user_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dim        int
}

// NewQdrant constructs a single-collection, multi-sector Qdrant-backed
// VectorStore aimed at larger-than-memory deployments. Sector and user
// filtering are applied via payload match conditions rather than separate
// collections, keeping one HNSW index shared across sectors.
func NewQdrant(ctx context.Context, host string, port int, apiKey, collection string, dim int) (VectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("hsg: qdrant collection name is required")
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("hsg: create qdrant client: %w", err)
	}
	s := &qdrantStore{client: client, collection: collection, dim: dim}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("hsg: check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointUUID(id string, sec sector.Sector) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id+"|"+string(sec))).String()
}

func (q *qdrantStore) Store(ctx context.Context, id string, sec sector.Sector, vector []float32, dim int, userID string) error {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointUUID(id, sec)),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadIDField:     id,
			payloadSectorField: string(sec),
			payloadUserField:   userID,
		}),
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: []*qdrant.PointStruct{point}})
	if err != nil {
		log.Error().Err(err).Str("memory_id", id).Msg("hsg: qdrant upsert failed")
	}
	return err
}

func (q *qdrantStore) ByID(ctx context.Context, id string) ([]Row, error) {
	var out []Row
	for _, sec := range sector.All {
		r, ok, err := q.Get(ctx, id, sec)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (q *qdrantStore) Get(ctx context.Context, id string, sec sector.Sector) (Row, bool, error) {
	pts, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(pointUUID(id, sec))},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return Row{}, false, err
	}
	if len(pts) == 0 {
		return Row{}, false, nil
	}
	p := pts[0]
	vec := p.GetVectors().GetVector().GetData()
	userID := ""
	if p.Payload != nil {
		if v, ok := p.Payload[payloadUserField]; ok {
			userID = v.GetStringValue()
		}
	}
	return Row{ID: id, Sector: sec, Vector: vec, Dim: len(vec), UserID: userID}, true, nil
}

func (q *qdrantStore) Delete(ctx context.Context, id string) error {
	for _, sec := range sector.All {
		_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(id, sec))),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *qdrantStore) Search(ctx context.Context, vector []float32, sec sector.Sector, k int, opts SearchOpts) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	must := []*qdrant.Condition{qdrant.NewMatch(payloadSectorField, string(sec))}
	if opts.UserID != "" {
		must = append(must, qdrant.NewMatch(payloadUserField, opts.UserID))
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Payload == nil {
			continue
		}
		out = append(out, SearchResult{ID: hit.Payload[payloadIDField].GetStringValue(), Similarity: float64(hit.Score)})
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (q *qdrantStore) Close() error { return q.client.Close() }

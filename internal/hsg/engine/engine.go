// Package engine wires C1-C12 together behind the public operation surface:
// memory.add/search/get/delete/delete_all/history, plus a thin façade over
// the temporal fact store. Grounded on the original source's
// add_hsg_memory/hsg_query orchestration in hsg.py and structured as a
// single dependency-injected struct in the manner of this codebase's
// internal/rag/service.Service constructor.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/chunker"
	"hsg/internal/hsg/config"
	"hsg/internal/hsg/decay"
	"hsg/internal/hsg/embedder"
	"hsg/internal/hsg/eventsink"
	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/obs"
	"hsg/internal/hsg/retrieval"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/simhash"
	"hsg/internal/hsg/store"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/usersummary"
	"hsg/internal/hsg/veccodec"
	"hsg/internal/hsg/vectorstore"
	"hsg/internal/hsg/waypoint"
)

// DedupBoost is the fixed reinforcement applied to a near-duplicate insert
// instead of creating a new memory (§4.5/§9 Open Question #1).
const DedupBoost = 0.15

// DedupHammingThreshold is the max SimHash Hamming distance treated as a
// duplicate.
const DedupHammingThreshold = 3

// meanCompressDim is the dimension the mean vector is bucket-compressed to
// for storage once it exceeds this size, per add_hsg_memory's
// `if len(mean_vec) > 128: compress`.
const meanCompressDim = 128

// Engine implements the public memory.* operations.
type Engine struct {
	Store     store.MemoryStore
	Vectors   vectorstore.VectorStore
	Embedder  embedder.Embedder
	Retrieval *retrieval.Engine
	Events    eventsink.Sink
	Metrics   *obs.Metrics
	Config    config.Config
}

// New constructs an Engine, deriving its retrieval sub-engine from the same
// store/vectors/embedder so callers wire storage backends exactly once.
func New(s store.MemoryStore, vectors vectorstore.VectorStore, emb embedder.Embedder, cfg config.Config) *Engine {
	return &Engine{
		Store:     s,
		Vectors:   vectors,
		Embedder:  emb,
		Retrieval: retrieval.New(s, vectors, s, emb),
		Events:    eventsink.NewNoop(),
		Metrics:   obs.NewMetrics("hsg.memory"),
		Config:    cfg,
	}
}

// Add implements memory.add: SimHash dedup, chunk detection, sector
// classification, essence extraction, multi-sector embedding, mean-vector
// storage/compression, waypoint construction, and a user-summary refresh
// run inline, whose failures are logged rather than returned.
func (e *Engine) Add(ctx context.Context, content, userID string, tags []string, meta map[string]any) (types.AddResult, error) {
	if content == "" {
		return types.AddResult{}, hsgerr.Invalid("content must not be empty")
	}
	if userID == "" {
		userID = "anonymous"
	}
	now := time.Now().UnixMilli()

	fp := simhash.Compute(content)
	if existing, ok, err := e.Store.FindBySimHash(ctx, fp); err != nil {
		return types.AddResult{}, hsgerr.Unavailable("dedup lookup", err)
	} else if ok && simhash.Hamming(fp, existing.SimHash) <= DedupHammingThreshold {
		existing.Salience = clamp01(existing.Salience + DedupBoost)
		existing.LastSeenAt = now
		existing.UpdatedAt = now
		if err := e.Store.UpdateMemory(ctx, existing); err != nil {
			return types.AddResult{}, hsgerr.Unavailable("persist dedup boost", err)
		}
		log.Debug().Str("memory_id", existing.ID).Float64("salience", existing.Salience).Msg("hsg: dedup hit, boosted salience")
		e.Metrics.IncCounter("hsg.memory.dedup_hits", 1, nil)
		return types.AddResult{
			ID: existing.ID, PrimarySector: existing.PrimarySector,
			Sectors: []sector.Sector{existing.PrimarySector}, Deduplicated: true,
		}, nil
	}

	if _, ok, err := e.Store.GetUser(ctx, userID); err != nil {
		return types.AddResult{}, hsgerr.Unavailable("load user", err)
	} else if !ok {
		_ = e.Store.UpsertUser(ctx, types.User{UserID: userID, Summary: "User profile initializing...", CreatedAt: now, UpdatedAt: now})
	}

	chunks := chunker.Chunk(content, chunker.DefaultTargetTokens, chunker.DefaultOverlapRatio)

	cls := sector.Classify(content, metaSectorHint(meta))
	allSectors := append([]sector.Sector{cls.Primary}, cls.Additional...)

	stored := content
	if e.Config.UseSummaryOnly {
		stored = decay.Essence(content, maxLenOr(e.Config.SummaryMaxLength, 1000))
	}

	initSalience := clamp01(0.4 + 0.1*float64(len(cls.Additional)))

	segment, err := store.AllocateSegment(ctx, e.Store, e.Config.SegSize)
	if err != nil {
		return types.AddResult{}, hsgerr.Unavailable("allocate segment", err)
	}

	id := uuid.NewString()
	mem := &types.Memory{
		ID: id, UserID: userID, Content: stored, SimHash: fp, Segment: segment,
		PrimarySector: cls.Primary, Sectors: allSectors, Tags: tags, Meta: meta,
		CreatedAt: now, UpdatedAt: now, LastSeenAt: now, Salience: initSalience,
		DecayLambda: sectorDecayLambda(cls.Primary), Version: 1,
	}
	if err := e.Store.InsertMemory(ctx, mem); err != nil {
		return types.AddResult{}, hsgerr.Unavailable("insert memory", err)
	}

	vectors, err := embedder.EmbedMultiSector(ctx, e.Embedder, e.Store, id, content, allSectors)
	if err != nil {
		return types.AddResult{}, err
	}
	_ = e.Events.Publish(ctx, eventsink.Event{Type: eventsink.EventEmbedLog, UserID: userID, MemoryID: id, Detail: fmt.Sprintf("%d/%d sectors embedded", len(vectors), len(allSectors))})
	raw := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		if err := e.Vectors.Store(ctx, id, v.Sector, v.Vector, v.Dim, userID); err != nil {
			return types.AddResult{}, hsgerr.Unavailable("store sector vector", err)
		}
		raw = append(raw, v.Vector)
	}

	meanVec := veccodec.Mean(raw)
	mem.MeanVec = meanVec
	mem.MeanDim = len(meanVec)
	if len(meanVec) > meanCompressDim {
		mem.CompressedVec = veccodec.BucketPool(meanVec, meanCompressDim)
	}
	if err := e.Store.UpdateMemory(ctx, mem); err != nil {
		return types.AddResult{}, hsgerr.Unavailable("persist mean vector", err)
	}

	if err := waypoint.Construct(ctx, e.Store, mem, 0, now); err != nil {
		return types.AddResult{}, hsgerr.Unavailable("construct waypoint", err)
	}

	if userID != "anonymous" {
		usersummary.Refresh(ctx, e.Store, userID, now)
	}

	_ = e.Events.Publish(ctx, eventsink.Event{Type: eventsink.EventMemoryAdded, UserID: userID, MemoryID: id, Timestamp: time.Now()})
	log.Debug().Str("memory_id", id).Str("sector", string(cls.Primary)).Int("sectors", len(allSectors)).Msg("hsg: memory added")

	return types.AddResult{
		ID: id, PrimarySector: cls.Primary, Sectors: allSectors,
		Chunks: len(chunks), Salience: initSalience,
	}, nil
}

// Search implements memory.search by delegating to the retrieval engine.
func (e *Engine) Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]types.ScoredMemory, error) {
	return e.Retrieval.Search(ctx, query, k, filters)
}

// Get implements memory.get.
func (e *Engine) Get(ctx context.Context, id string) (*types.Memory, error) {
	mem, ok, err := e.Store.GetMemory(ctx, id)
	if err != nil {
		return nil, hsgerr.Unavailable("load memory", err)
	}
	if !ok {
		return nil, hsgerr.NotFoundErr("memory " + id + " not found")
	}
	return mem, nil
}

// Delete implements memory.delete, cascading to vectors and waypoints.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if _, ok, err := e.Store.GetMemory(ctx, id); err != nil {
		return hsgerr.Unavailable("load memory", err)
	} else if !ok {
		return hsgerr.NotFoundErr("memory " + id + " not found")
	}
	if err := e.Vectors.Delete(ctx, id); err != nil {
		return hsgerr.Unavailable("delete vectors", err)
	}
	if err := e.Store.DeleteWaypointsFor(ctx, id); err != nil {
		return hsgerr.Unavailable("delete waypoints", err)
	}
	if err := e.Store.DeleteMemory(ctx, id); err != nil {
		return hsgerr.Unavailable("delete memory", err)
	}
	_ = e.Events.Publish(ctx, eventsink.Event{Type: eventsink.EventMemoryDeleted, MemoryID: id, Timestamp: time.Now()})
	log.Debug().Str("memory_id", id).Msg("hsg: memory deleted")
	return nil
}

// DeleteAll implements memory.delete_all: every memory (and its cascading
// vectors/waypoints) for userID, plus the user row itself.
func (e *Engine) DeleteAll(ctx context.Context, userID string) error {
	mems, err := e.Store.ListByUser(ctx, userID, 0, 0)
	if err != nil {
		return hsgerr.Unavailable("list user memories", err)
	}
	for _, m := range mems {
		if err := e.Vectors.Delete(ctx, m.ID); err != nil {
			return hsgerr.Unavailable("delete vectors", err)
		}
	}
	if err := e.Store.DeleteUser(ctx, userID); err != nil {
		return hsgerr.Unavailable("delete user", err)
	}
	return nil
}

// History implements memory.history: a user's memories, most-recent-first,
// paginated by limit/offset.
func (e *Engine) History(ctx context.Context, userID string, limit, offset int) ([]*types.Memory, error) {
	mems, err := e.Store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, hsgerr.Unavailable("list history", err)
	}
	return mems, nil
}

func metaSectorHint(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta["sector"].(string); ok {
		return v
	}
	return ""
}

func sectorDecayLambda(s sector.Sector) float64 {
	if cfg, ok := sector.Configs[s]; ok {
		return cfg.DecayLambda
	}
	return 0.02
}

func maxLenOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}


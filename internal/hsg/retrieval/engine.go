// Package retrieval implements C10, the hybrid scoring retrieval engine:
// query classification and per-sector embedding fan-out, vector-store
// search, multi-vector fusion, cross-sector resonance, sector penalty,
// waypoint expansion/weighting, salience decay scoring, token/keyword/tag
// overlap, sigmoid scoring, top-k reinforcement, and query-triggered
// regeneration. Grounded on the original source's hsg.py `hsg_query` and
// its supporting scorers, staged in the manner of this codebase's
// internal/rag/service pipeline (sequential named stages, an Option-style
// constructor, and a query-result cache sitting in front of the pipeline).
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hsg/internal/hsg/analytics"
	"hsg/internal/hsg/cache"
	"hsg/internal/hsg/decay"
	"hsg/internal/hsg/embedder"
	"hsg/internal/hsg/eventsink"
	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/obs"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/textcanon"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/vectorstore"
	"hsg/internal/hsg/waypoint"
)

// DefaultK is used when a caller passes k<0; k==0 returns an empty result.
const DefaultK = 10

// dayMillis mirrors decay's internal constant; kept separate since the
// scoring formulas here use it independently of the decay package's own
// tier/compression math.
const dayMillis = 86400000.0

// Store is the narrow persistence contract C10 needs from C7: candidate
// lookup and the post-reinforcement write-back, kept separate from the
// full store.MemoryStore to avoid an import cycle.
type Store interface {
	GetMemory(ctx context.Context, id string) (*types.Memory, bool, error)
	UpdateMemory(ctx context.Context, m *types.Memory) error
}

// Engine wires together the components C10's pipeline calls: the memory
// store, the per-sector vector store, the waypoint graph, the query
// embedder, the result cache, and the in-flight gauge (§4.9's decay
// cooldown signal).
type Engine struct {
	Store     Store
	Vectors   vectorstore.VectorStore
	Waypoints waypoint.Store
	Embedder  embedder.Embedder
	Cache     cache.QueryCache
	Gauge     cache.InFlightGauge
	Analytics analytics.Sink
	Events    eventsink.Sink
	Tracer    *obs.Tracer
	Metrics   *obs.Metrics

	KeywordMinLength int
}

// New constructs an Engine, filling in no-op defaults for the optional
// telemetry collaborators so callers need not wire every field. Tracer and
// Metrics are obs.NewTracer/obs.NewMetrics("hsg.retrieval"), which report
// through the global OTel providers.
func New(store Store, vectors vectorstore.VectorStore, waypoints waypoint.Store, emb embedder.Embedder) *Engine {
	return &Engine{
		Store:            store,
		Vectors:          vectors,
		Waypoints:        waypoints,
		Embedder:         emb,
		Cache:            nil,
		Gauge:            cache.NewLocalGauge(),
		Analytics:        analytics.NewNoop(),
		Events:           eventsink.NewNoop(),
		Tracer:           obs.NewTracer("hsg.retrieval"),
		Metrics:          obs.NewMetrics("hsg.retrieval"),
		KeywordMinLength: 3,
	}
}

// candidate accumulates the intermediate per-id state the scoring stage
// consults, mirroring hsg_query's loop-local variables.
type candidate struct {
	mem       *types.Memory
	waypointW float64
	path      []string
}

// Search runs the full C10 pipeline for one query and returns up to k
// results sorted by descending score. Debug payloads are attached per item
// iff filters.Debug.
func (e *Engine) Search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]types.ScoredMemory, error) {
	if k == 0 {
		return []types.ScoredMemory{}, nil
	}
	if k < 0 {
		k = DefaultK
	}
	start := time.Now()
	e.Gauge.Enter(ctx)
	defer e.Gauge.Exit(ctx)

	cacheKey := buildCacheKey(query, k, filters)
	if e.Cache != nil {
		if raw, ok := e.Cache.Get(ctx, cacheKey); ok {
			results, err := decodeCache(raw)
			if err == nil {
				e.recordRetrieval(ctx, filters.UserID, query, len(results), topScore(results), true, time.Since(start))
				return results, nil
			}
		}
	}

	results, err := e.search(ctx, query, k, filters)
	if err != nil {
		return nil, err
	}

	if e.Cache != nil {
		if raw, encErr := encodeCache(results); encErr == nil {
			e.Cache.Set(ctx, cacheKey, raw, cache.DefaultTTL)
		}
	}
	e.recordRetrieval(ctx, filters.UserID, query, len(results), topScore(results), false, time.Since(start))
	return results, nil
}

func (e *Engine) recordRetrieval(ctx context.Context, userID, query string, n int, top float64, cacheHit bool, dur time.Duration) {
	preview := query
	if len(preview) > 80 {
		preview = preview[:80]
	}
	_ = e.Analytics.RecordRetrieval(ctx, analytics.RetrievalRecord{
		UserID: userID, QueryPreview: preview, ResultCount: n, TopScore: top,
		CacheHit: cacheHit, DurationMs: dur.Milliseconds(), Timestamp: time.Now(),
	})
}

func topScore(results []types.ScoredMemory) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Score
}

func (e *Engine) search(ctx context.Context, query string, k int, filters types.SearchFilters) ([]types.ScoredMemory, error) {
	ctx, endClassify := e.Tracer.Start(ctx, "hsg.retrieval.classify", nil)
	qc := sector.Classify(query, "")
	qTokens := textcanon.CanonicalTokenSet(query)
	endClassify(nil)

	sectors := filters.Sectors
	if len(sectors) == 0 {
		sectors = append([]sector.Sector{}, sector.All...)
	}
	if sector.TemporalMarkerPattern.MatchString(query) && !containsSector(sectors, sector.Episodic) {
		sectors = append(sectors, sector.Episodic)
	}

	ctx, endEmbed := e.Tracer.Start(ctx, "hsg.retrieval.embed", map[string]string{"sectors": strconv.Itoa(len(sectors))})
	qEmbed, err := e.embedQueryPerSector(ctx, query, sectors)
	endEmbed(err)
	if err != nil {
		return nil, err
	}

	searchK := 3 * k
	ctx, endSearch := e.Tracer.Start(ctx, "hsg.retrieval.search", map[string]string{"search_k": strconv.Itoa(searchK)})
	sectorResults, allSims, idSet, err := e.searchSectors(ctx, qEmbed, searchK, filters.UserID)
	endSearch(err)
	if err != nil {
		return nil, err
	}

	avgTop := 0.0
	if len(allSims) > 0 {
		var sum float64
		for _, s := range allSims {
			sum += s
		}
		avgTop = sum / float64(len(allSims))
	}
	highConfidence := avgTop >= 0.55

	var expanded []waypoint.Expanded
	if !highConfidence {
		ctx2, endExpand := e.Tracer.Start(ctx, "hsg.retrieval.expand", nil)
		seedIDs := make([]string, 0, len(idSet))
		for id := range idSet {
			seedIDs = append(seedIDs, id)
		}
		sort.Strings(seedIDs)
		width := adaptiveExpansionWidth(k, avgTop)
		expanded, err = waypoint.Expand(ctx2, e.Waypoints, seedIDs, width)
		endExpand(err)
		if err != nil {
			return nil, err
		}
		for _, exp := range expanded {
			idSet[exp.ID] = struct{}{}
		}
	}
	expByID := make(map[string]waypoint.Expanded, len(expanded))
	for _, exp := range expanded {
		expByID[exp.ID] = exp
	}

	ctx, endFuse := e.Tracer.Start(ctx, "hsg.retrieval.fuse", map[string]string{"candidates": strconv.Itoa(len(idSet))})
	candidates, err := e.buildCandidates(ctx, idSet, expByID, filters)
	if err != nil {
		endFuse(err)
		return nil, err
	}

	nowMs := time.Now().UnixMilli()
	results := make([]types.ScoredMemory, 0, len(candidates))
	for id, c := range candidates {
		item, err := e.scoreCandidate(ctx, id, c, qc, qEmbed, qTokens, query, sectorResults, filters)
		if err != nil {
			endFuse(err)
			return nil, err
		}
		if item == nil {
			continue
		}
		results = append(results, *item)
	}
	endFuse(nil)

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	e.Metrics.ObserveHistogram("hsg.retrieval.candidates_returned", float64(len(results)), nil)

	ctx, endReinforce := e.Tracer.Start(ctx, "hsg.retrieval.reinforce", map[string]string{"top_k": strconv.Itoa(len(results))})
	err = e.reinforceTopK(ctx, results, nowMs)
	endReinforce(err)
	if err != nil {
		return nil, err
	}

	return results, nil
}

func containsSector(list []sector.Sector, s sector.Sector) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// adaptiveExpansionWidth is the supplemented §4.10 enrichment:
// min(2k, max(k, ceil(0.3*k*(1-avg_top_similarity)))).
func adaptiveExpansionWidth(k int, avgTop float64) int {
	adaptive := int(math.Ceil(0.3 * float64(k) * (1 - avgTop)))
	cap2k := 2 * k
	if adaptive < k {
		adaptive = k
	}
	if adaptive > cap2k {
		adaptive = cap2k
	}
	return adaptive
}

// embedQueryPerSector embeds query once per sector in sectors, concurrently
// via errgroup, the same fan-out idiom used by embedder.EmbedMultiSector.
// A sector whose embed fails is left out of the result; the call fails only
// when every sector fails.
func (e *Engine) embedQueryPerSector(ctx context.Context, query string, sectors []sector.Sector) (map[sector.Sector][]float32, error) {
	out := make(map[sector.Sector][]float32, len(sectors))
	var mu sync.Mutex
	var lastErr error
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sectors {
		s := s
		g.Go(func() error {
			vec, err := e.Embedder.EmbedText(gctx, query, s)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			out[s] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, hsgerr.EmbedFail("embed query for sectors", err)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, hsgerr.EmbedFail("embed query for sectors", lastErr)
	}
	return out, nil
}

// searchSectors fans out vectorstore.Search per sector concurrently,
// collecting each sector's ranked hits, the flat similarity list used for
// avg_top_similarity, and the union of candidate ids. A sector whose search
// fails contributes no hits and the other sectors' hits are still returned.
func (e *Engine) searchSectors(ctx context.Context, qEmbed map[sector.Sector][]float32, searchK int, userID string) (map[sector.Sector][]vectorstore.SearchResult, []float64, map[string]struct{}, error) {
	type sectorHits struct {
		sec  sector.Sector
		hits []vectorstore.SearchResult
	}
	results := make([]sectorHits, len(qEmbed))
	secs := make([]sector.Sector, 0, len(qEmbed))
	for s := range qEmbed {
		secs = append(secs, s)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range secs {
		i, s := i, s
		g.Go(func() error {
			hits, err := e.Vectors.Search(gctx, qEmbed[s], s, searchK, vectorstore.SearchOpts{UserID: userID})
			if err != nil {
				results[i] = sectorHits{sec: s}
				return nil
			}
			results[i] = sectorHits{sec: s, hits: hits}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, hsgerr.Unavailable("vector search", err)
	}

	bySector := make(map[sector.Sector][]vectorstore.SearchResult, len(secs))
	var allSims []float64
	idSet := make(map[string]struct{})
	for _, r := range results {
		bySector[r.sec] = r.hits
		for _, hit := range r.hits {
			allSims = append(allSims, hit.Similarity)
			idSet[hit.ID] = struct{}{}
		}
	}
	return bySector, allSims, idSet, nil
}

func (e *Engine) buildCandidates(ctx context.Context, idSet map[string]struct{}, expByID map[string]waypoint.Expanded, filters types.SearchFilters) (map[string]candidate, error) {
	out := make(map[string]candidate, len(idSet))
	for id := range idSet {
		mem, ok, err := e.Store.GetMemory(ctx, id)
		if err != nil {
			return nil, hsgerr.Unavailable("load candidate memory", err)
		}
		if !ok {
			continue
		}
		if filters.MinSalience > 0 && mem.Salience < filters.MinSalience {
			continue
		}
		if filters.UserID != "" && mem.UserID != filters.UserID {
			continue
		}
		if filters.StartTime > 0 && mem.CreatedAt < filters.StartTime {
			continue
		}
		if filters.EndTime > 0 && mem.CreatedAt > filters.EndTime {
			continue
		}
		c := candidate{mem: mem, path: []string{id}}
		if exp, ok := expByID[id]; ok {
			c.waypointW = clamp01(exp.Weight)
			c.path = exp.Path
		}
		out[id] = c
	}
	return out, nil
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

// scoreCandidate computes the full §4.10 step-5 scoring formula for one
// candidate. A failed regeneration re-embed skips regeneration and the
// candidate is still scored; an error is returned only when persisting a
// regenerated memory fails.
func (e *Engine) scoreCandidate(ctx context.Context, id string, c candidate, qc sector.Classification, qEmbed map[sector.Sector][]float32, qTokens map[string]struct{}, query string, sectorResults map[sector.Sector][]vectorstore.SearchResult, filters types.SearchFilters) (*types.ScoredMemory, error) {
	mem := c.mem

	if decay.NeedsRegeneration(mem) {
		fresh, err := e.Embedder.EmbedText(ctx, mem.Content, mem.PrimarySector)
		if err == nil {
			decay.Regenerate(mem, fresh, time.Now().UnixMilli())
			if err := e.Store.UpdateMemory(ctx, mem); err != nil {
				return nil, hsgerr.Unavailable("persist regenerated memory", err)
			}
		}
	}

	mvf := e.multiVectorFusion(ctx, id, qc.Primary, qEmbed)
	csr := mvf * sector.Resonance(mem.PrimarySector, qc.Primary)

	bestSim := csr
	for _, hits := range sectorResults {
		for _, h := range hits {
			if h.ID == id && h.Similarity > bestSim {
				bestSim = h.Similarity
			}
		}
	}

	penalty := sector.Penalty(qc.Primary, mem.PrimarySector)
	simAdj := bestSim * penalty

	deltaDays := float64(time.Now().UnixMilli()-mem.LastSeenAt) / dayMillis
	lambda := decay.SectorLambda(mem.PrimarySector)
	decayFactor := math.Exp(-lambda * deltaDays)
	sal := decayFactor*mem.Salience + 0.08*(1-decayFactor)

	memTokens := textcanon.CanonicalTokenSet(mem.Content)
	tokOv := tokenOverlap(qTokens, memTokens)

	rec := math.Exp(-deltaDays/7) * (1 - deltaDays/60)
	if rec < 0 {
		rec = 0
	}

	minLen := e.KeywordMinLength
	if minLen <= 0 {
		minLen = 3
	}
	kw := KeywordOverlap(query, mem.Content, minLen) * 0.15
	tag := tagMatchScore(mem.Tags, qTokens)

	raw := 0.35*(1-math.Exp(-3*simAdj)) + 0.20*tokOv + 0.15*c.waypointW + 0.10*rec + 0.20*tag + kw
	score := sigmoid(raw)

	item := types.ScoredMemory{
		ID: id, Content: mem.Content, Score: score, PrimarySector: mem.PrimarySector,
		Path: c.path, Salience: sal, LastSeenAt: mem.LastSeenAt, Tags: mem.Tags, Metadata: mem.Meta,
	}
	if filters.Debug {
		item.Debug = map[string]any{
			"sim_adj": simAdj, "tok_ov": tokOv, "recency": rec,
			"waypoint": c.waypointW, "tag": tag, "penalty": penalty, "mvf": mvf, "csr": csr, "kw": kw,
		}
	}
	return &item, nil
}

// multiVectorFusion is §4.10 step 5's MVF: Σ sim·w / Σ w over every
// per-sector vector stored for id, weighted by sector.FusionWeight against
// the query's primary sector.
func (e *Engine) multiVectorFusion(ctx context.Context, id string, qPrimary sector.Sector, qEmbed map[sector.Sector][]float32) float64 {
	rows, err := e.Vectors.ByID(ctx, id)
	if err != nil || len(rows) == 0 {
		return 0
	}
	var num, den float64
	for _, row := range rows {
		qv, ok := qEmbed[row.Sector]
		if !ok {
			continue
		}
		w := sector.FusionWeight(qPrimary, row.Sector)
		sim := cosine(qv, row.Vector)
		num += sim * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		na += float64(x) * float64(x)
	}
	for _, x := range b {
		nb += float64(x) * float64(x)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenOverlap(q, mem map[string]struct{}) float64 {
	if len(q) == 0 {
		return 0
	}
	var inter int
	for t := range q {
		if _, ok := mem[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(q))
}

// tagMatchScore is the Go port of compute_tag_match_score: an exact
// (case-insensitive) tag/token match contributes 2, a substring match
// contributes 1, capped at min(1, matches/(2*len(tags))).
func tagMatchScore(tags []string, qTokens map[string]struct{}) float64 {
	if len(tags) == 0 {
		return 0
	}
	var matches int
	for _, tag := range tags {
		tl := strings.ToLower(tag)
		if _, ok := qTokens[tl]; ok {
			matches += 2
			continue
		}
		for tok := range qTokens {
			if strings.Contains(tl, tok) || strings.Contains(tok, tl) {
				matches++
			}
		}
	}
	score := float64(matches) / float64(2*len(tags))
	if score > 1 {
		score = 1
	}
	return score
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// reinforceTopK applies §4.10 step 7 to every returned result: the hit's
// own salience boost, persisted, followed by waypoint neighbor propagation
// and decay's query-triggered regeneration bookkeeping.
func (e *Engine) reinforceTopK(ctx context.Context, results []types.ScoredMemory, nowMs int64) error {
	for _, r := range results {
		mem, ok, err := e.Store.GetMemory(ctx, r.ID)
		if err != nil {
			return hsgerr.Unavailable("load hit for reinforcement", err)
		}
		if !ok {
			continue
		}
		mem.Salience = clamp01(mem.Salience + waypoint.Eta*(1-mem.Salience))
		mem.LastSeenAt = nowMs
		if err := e.Store.UpdateMemory(ctx, mem); err != nil {
			return hsgerr.Unavailable("persist reinforced hit", err)
		}
		if err := waypoint.Reinforce(ctx, e.Waypoints, r.ID, mem.Salience, nowMs); err != nil {
			return hsgerr.Unavailable("propagate waypoint reinforcement", err)
		}
	}
	return nil
}

func buildCacheKey(query string, k int, filters types.SearchFilters) string {
	sectors := make([]string, len(filters.Sectors))
	for i, s := range filters.Sectors {
		sectors[i] = string(s)
	}
	sort.Strings(sectors)
	return fmt.Sprintf("%s|%d|%s|%s|%f|%d|%d|%t",
		query, k, filters.UserID, strings.Join(sectors, ","), filters.MinSalience,
		filters.StartTime, filters.EndTime, filters.Debug)
}

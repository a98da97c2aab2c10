package decay

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/analytics"
	"hsg/internal/hsg/cache"
	"hsg/internal/hsg/eventsink"
	"hsg/internal/hsg/obs"
	"hsg/internal/hsg/store"
	"hsg/internal/hsg/types"
)

// DefaultCooldown is the §5/§6 60s minimum gap between decay passes.
const DefaultCooldown = 60 * time.Second

// DefaultRatio is the §4.9 default fraction of a segment scanned per pass.
const DefaultRatio = 0.03

// Scheduler runs periodic decay passes across every segment, short-
// circuiting while queries are in flight or the process is within its
// cooldown window, per §5's in-flight gauge design note.
type Scheduler struct {
	Store         store.MemoryStore
	Gauge         cache.InFlightGauge
	Events        eventsink.Sink
	Analytics     analytics.Sink
	Tracer        *obs.Tracer
	Metrics       *obs.Metrics
	Ratio         float64
	ColdThreshold float64
	Cooldown      time.Duration
}

// NewScheduler constructs a Scheduler with the §6 defaults filled in for
// any zero-valued tunables. Tracer/Metrics default to the global OTel
// providers (a safe no-op until observability.InitOTel runs).
func NewScheduler(s store.MemoryStore, gauge cache.InFlightGauge, events eventsink.Sink, an analytics.Sink, ratio, coldThreshold float64) *Scheduler {
	if ratio <= 0 {
		ratio = DefaultRatio
	}
	if coldThreshold <= 0 {
		coldThreshold = ColdThresholdDefault
	}
	return &Scheduler{
		Store: s, Gauge: gauge, Events: events, Analytics: an,
		Tracer: obs.NewTracer("hsg.decay"), Metrics: obs.NewMetrics("hsg.decay"),
		Ratio: ratio, ColdThreshold: coldThreshold, Cooldown: DefaultCooldown,
	}
}

// RunOnce executes a single decay pass, short-circuiting per the gauge and
// cooldown policy. It never returns an error to the caller's scheduling
// loop: per §4.15, decay failures are logged and skipped, not retried.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := time.Now()
	if s.Gauge.Count(ctx) > 0 {
		log.Debug().Msg("hsg: decay pass skipped, queries in flight")
		return
	}
	if !s.Gauge.CooledDown(ctx, now, s.Cooldown) {
		log.Debug().Msg("hsg: decay pass skipped, within cooldown")
		return
	}
	s.Gauge.MarkDecayRun(ctx, now)

	segments, err := s.Store.AllSegments(ctx)
	if err != nil {
		log.Error().Err(err).Msg("hsg: decay pass failed to list segments")
		return
	}

	nowMs := now.UnixMilli()
	for _, seg := range segments {
		s.runSegment(ctx, seg, nowMs)
	}
}

func (s *Scheduler) runSegment(ctx context.Context, segment int, nowMs int64) {
	ctx, end := s.Tracer.Start(ctx, "hsg.decay.pass", map[string]string{"segment": strconv.Itoa(segment)})
	start := time.Now()
	mems, err := s.Store.MemoriesInSegment(ctx, segment)
	if err != nil {
		log.Error().Err(err).Int("segment", segment).Msg("hsg: decay pass failed to load segment")
		end(err)
		return
	}
	window := randomWindow(mems, s.Ratio)

	var compressed, fingerprinted int
	tierCounts := map[Tier]int{}
	for _, m := range window {
		res := Apply(m, nowMs, s.ColdThreshold)
		tierCounts[res.Tier]++
		if res.Compressed {
			compressed++
		}
		if res.Fingerprinted {
			fingerprinted++
		}
		if err := s.Store.UpdateMemory(ctx, m); err != nil {
			log.Warn().Err(err).Str("memory_id", m.ID).Msg("hsg: decay pass failed to persist memory")
			continue
		}
		if s.Events != nil {
			_ = s.Events.Publish(ctx, eventsink.Event{Type: eventsink.EventDecayPass, MemoryID: m.ID, UserID: m.UserID, Detail: string(res.Tier)})
		}
	}

	dur := time.Since(start)
	s.Metrics.ObserveHistogram("hsg.decay.pass_duration_ms", float64(dur.Milliseconds()), map[string]string{"segment": strconv.Itoa(segment)})
	for tier, n := range tierCounts {
		s.Metrics.IncCounter("hsg.decay.tier_count", int64(n), map[string]string{"tier": string(tier)})
	}

	if s.Analytics != nil {
		_ = s.Analytics.RecordDecayPass(ctx, analytics.DecayPassRecord{
			SegmentID:       strconv.Itoa(segment),
			MemoriesTouched: len(window),
			Compressed:      compressed,
			Regenerated:     fingerprinted,
			DurationMs:      dur.Milliseconds(),
		})
	}
	end(nil)
}

// randomWindow selects a contiguous, randomly-placed slice of length
// floor(ratio*len(mems)), but at least 1, from mems, per §4.9's
// "randomly-placed window" scan policy.
func randomWindow(mems []*types.Memory, ratio float64) []*types.Memory {
	n := len(mems)
	if n == 0 {
		return nil
	}
	size := int(ratio * float64(n))
	if size <= 0 {
		size = 1
	}
	if size >= n {
		return mems
	}
	maxStart := n - size
	start := rand.Intn(maxStart + 1)
	return mems[start : start+size]
}

package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/usersummary"
)

// reflectSourceBoost is the reference reflect.py's `boost()` multiplier
// applied to a cluster's source memories once they're folded into a
// synthesized reflection.
const reflectSourceBoost = 1.1

// defaultReflectMinMemories mirrors reflect.py's `env.reflect_min or 20`
// fallback, used when Config.ReflectMinMemories is unset.
const defaultReflectMinMemories = 20

// DefaultReflectionInterval mirrors reflect.py's `env.reflect_interval or 10`
// (minutes) fallback.
const DefaultReflectionInterval = 10 * time.Minute

// RunReflection folds userID's recurring memories into synthesized
// "reflective" memories: it fetches their most recent 100 memories, clusters
// textually-similar same-sector ones (usersummary.ClusterMemories), and for
// each cluster of 2+ members creates one new reflective memory via the
// ordinary Add path, marks the sources consolidated, and boosts their
// salience. Returns the number of reflections created. Grounded on the
// original source's reflect.py `run_reflection`.
func (e *Engine) RunReflection(ctx context.Context, userID string) (int, error) {
	mems, err := e.Store.ListByUser(ctx, userID, usersummary.RecentLimit, 0)
	if err != nil {
		return 0, hsgerr.Unavailable("list memories for reflection", err)
	}

	minMems := e.Config.ReflectMinMemories
	if minMems <= 0 {
		minMems = defaultReflectMinMemories
	}
	if len(mems) < minMems {
		return 0, nil
	}

	clusters := usersummary.ClusterMemories(mems)
	now := time.Now().UnixMilli()

	created := 0
	for _, c := range clusters {
		txt := usersummary.Summarize(c)
		sal := usersummary.ClusterSalience(c, now)
		srcIDs := usersummary.SourceIDs(c)
		meta := map[string]any{
			"type":    "auto_reflect",
			"sources": srcIDs,
			"freq":    len(c.Members),
		}

		res, err := e.Add(ctx, txt, userID, []string{"reflect:auto"}, meta)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("hsg: reflection insert failed")
			continue
		}

		e.consolidateSources(ctx, srcIDs, now)
		if err := usersummary.IncrementReflectionCount(ctx, e.Store, userID, now); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("hsg: reflection count increment failed")
		}

		log.Debug().Str("user_id", userID).Str("reflection_id", res.ID).
			Int("sources", len(c.Members)).Float64("cluster_salience", sal).
			Msg("hsg: reflection created")
		created++
	}
	return created, nil
}

// consolidateSources marks each source memory's meta["consolidated"]=true and
// applies the reference implementation's 1.1x salience boost, the Go port of
// reflect.py's mark_consolidated/boost pair.
func (e *Engine) consolidateSources(ctx context.Context, ids []string, now int64) {
	for _, id := range ids {
		m, ok, err := e.Store.GetMemory(ctx, id)
		if err != nil || !ok {
			continue
		}
		if m.Meta == nil {
			m.Meta = make(map[string]any, 1)
		}
		m.Meta["consolidated"] = true
		m.Salience = clamp01(m.Salience * reflectSourceBoost)
		m.LastSeenAt = now
		m.UpdatedAt = now
		if err := e.Store.UpdateMemory(ctx, m); err != nil {
			log.Warn().Err(err).Str("memory_id", id).Msg("hsg: reflection source consolidation failed")
		}
	}
}

// RunReflectionAll runs RunReflection for every known user, the Go port of
// reflect.py's reflection_loop iteration body. Returns the total number of
// reflections created.
func (e *Engine) RunReflectionAll(ctx context.Context) int {
	uids, err := e.Store.ListUserIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("hsg: reflection pass failed to list users")
		return 0
	}
	total := 0
	for _, uid := range uids {
		n, err := e.RunReflection(ctx, uid)
		if err != nil {
			log.Warn().Err(err).Str("user_id", uid).Msg("hsg: reflection pass failed for user")
			continue
		}
		total += n
	}
	return total
}

// ReflectionScheduler periodically runs RunReflectionAll, the Go port of
// reflect.py's reflection_loop/start_reflection ticker.
type ReflectionScheduler struct {
	Engine   *Engine
	Interval time.Duration
}

// NewReflectionScheduler constructs a ReflectionScheduler, filling in
// DefaultReflectionInterval when interval is zero.
func NewReflectionScheduler(e *Engine, interval time.Duration) *ReflectionScheduler {
	if interval <= 0 {
		interval = DefaultReflectionInterval
	}
	return &ReflectionScheduler{Engine: e, Interval: interval}
}

// RunOnce runs one reflection pass across all users, logging the count
// created.
func (s *ReflectionScheduler) RunOnce(ctx context.Context) {
	n := s.Engine.RunReflectionAll(ctx)
	log.Debug().Int("reflections_created", n).Msg("hsg: reflection pass complete")
}

// Run blocks, invoking RunOnce on Interval until ctx is cancelled.
func (s *ReflectionScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

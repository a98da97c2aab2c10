// Package usersummary implements C12: the periodic, derived per-user
// profile line recomputed from a user's most recent memories, plus the
// reflection-clustering consolidation pass that folds recurring memories
// into a single synthesized "reflective" memory. Grounded on the original
// source's user_summary.py (gen_user_summary/update_user_summary/
// auto_update_user_summaries) and reflect.py (cluster/calc_sal/summ).
package usersummary

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/types"
)

// RecentLimit mirrors user_summary.py's fixed 100-row window.
const RecentLimit = 100

// Store is the narrow persistence contract C12 needs, mirroring the style
// of waypoint.Store and decay's direct use of store.MemoryStore: only the
// operations this package actually calls.
type Store interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*types.Memory, error)
	ListUserIDs(ctx context.Context) ([]string, error)
	GetUser(ctx context.Context, userID string) (*types.User, bool, error)
	UpsertUser(ctx context.Context, u types.User) error
}

// GenerateSummary builds the templated profile line from a user's recent
// memories' metadata, the Go port of gen_user_summary. mems is expected
// ordered most-recent-first; an empty slice yields the "initializing"
// placeholder.
func GenerateSummary(mems []*types.Memory, nowMs int64) string {
	if len(mems) == 0 {
		return "User profile initializing... (No memories recorded yet)"
	}

	projects := newOrderedSet()
	languages := newOrderedSet()
	files := newOrderedSet()
	saves := 0

	for _, m := range mems {
		if m.Meta == nil {
			continue
		}
		if v, ok := stringField(m.Meta, "ide_project_name"); ok {
			projects.add(v)
		}
		if v, ok := stringField(m.Meta, "language"); ok {
			languages.add(v)
		}
		if v, ok := stringField(m.Meta, "ide_file_path"); ok {
			files.add(baseName(v))
		}
		if v, ok := stringField(m.Meta, "ide_event_type"); ok && v == "save" {
			saves++
		}
	}

	projStr := "Unknown Project"
	if !projects.empty() {
		projStr = projects.join(", ")
	}
	langStr := "General"
	if !languages.empty() {
		langStr = languages.join(", ")
	}
	recentFiles := "various files"
	if !files.empty() {
		recentFiles = files.joinFirst(3, ", ")
	}

	lastActive := "Recently"
	createdAt := mems[0].CreatedAt
	if createdAt > 0 {
		lastActive = time.UnixMilli(createdAt).UTC().Format("2006-01-02 15:04:05")
	}

	return fmt.Sprintf("Active in %s using %s. Focused on %s. (%d memories, %d saves). Last active: %s.",
		projStr, langStr, recentFiles, len(mems), saves, lastActive)
}

func stringField(meta map[string]any, key string) (string, bool) {
	v, ok := meta[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func baseName(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// orderedSet preserves first-seen insertion order while deduplicating,
// matching Python set-literal iteration order closely enough for a
// deterministic, human-readable summary line.
type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *orderedSet) empty() bool { return len(s.order) == 0 }

func (s *orderedSet) join(sep string) string { return strings.Join(s.order, sep) }

func (s *orderedSet) joinFirst(n int, sep string) string {
	if n > len(s.order) {
		n = len(s.order)
	}
	return strings.Join(s.order[:n], sep)
}

// Refresh recomputes and upserts userID's summary from their most recent
// RecentLimit memories, the Go port of update_user_summary. Failures are
// logged and swallowed: per §4.15/§7, the user-summary loop never surfaces
// errors to its caller.
func Refresh(ctx context.Context, s Store, userID string, nowMs int64) {
	mems, err := s.ListByUser(ctx, userID, RecentLimit, 0)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("hsg: user summary refresh failed to list memories")
		return
	}
	summary := GenerateSummary(mems, nowMs)

	existing, ok, err := s.GetUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("hsg: user summary refresh failed to load user row")
		return
	}
	u := types.User{UserID: userID, Summary: summary, UpdatedAt: nowMs}
	if ok {
		u.ReflectionCount = existing.ReflectionCount
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = nowMs
	}
	if err := s.UpsertUser(ctx, u); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("hsg: user summary refresh failed to upsert user")
	}
}

// RefreshAll enumerates every known user and refreshes each in turn, the Go
// port of auto_update_user_summaries. Returns the count of users updated.
func RefreshAll(ctx context.Context, s Store, nowMs int64) int {
	uids, err := s.ListUserIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("hsg: user summary refresh-all failed to list users")
		return 0
	}
	for _, uid := range uids {
		Refresh(ctx, s, uid, nowMs)
	}
	return len(uids)
}

// IncrementReflectionCount bumps userID's reflection_count, called whenever
// a reflection consolidation produces a new synthesized memory for them.
func IncrementReflectionCount(ctx context.Context, s Store, userID string, nowMs int64) error {
	existing, ok, err := s.GetUser(ctx, userID)
	u := types.User{UserID: userID, UpdatedAt: nowMs}
	if err != nil {
		return err
	}
	if ok {
		u.Summary = existing.Summary
		u.CreatedAt = existing.CreatedAt
		u.ReflectionCount = existing.ReflectionCount + 1
	} else {
		u.CreatedAt = nowMs
		u.ReflectionCount = 1
	}
	return s.UpsertUser(ctx, u)
}

// Cluster is a group of textually-similar memories sharing a primary
// sector, the Go shape of reflect.py's cluster dict.
type Cluster struct {
	Members []*types.Memory
}

// similarityThreshold is reflect.py's cluster-membership cutoff.
const similarityThreshold = 0.8

// jaccardSimilarity replaces the original source's self-documented broken
// per-text-vocabulary cosine (see the original's sim_txt comments) with
// Jaccard similarity over lowercased whitespace tokens — an explicit,
// documented substitution used only internally by this clustering pass.
func jaccardSimilarity(a, b string) float64 {
	s1 := tokenSet(a)
	s2 := tokenSet(b)
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}
	inter := 0
	for tok := range s1 {
		if _, ok := s2[tok]; ok {
			inter++
		}
	}
	union := len(s1) + len(s2) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func hasConsolidatedFlag(m *types.Memory) bool {
	if m.Meta == nil {
		return false
	}
	v, ok := m.Meta["consolidated"]
	return ok && v == true
}

// ClusterMemories groups mems into reflection candidates: memories sharing
// a primary sector (excluding ones already reflective or marked
// consolidated) whose pairwise Jaccard similarity exceeds
// similarityThreshold, the Go port of reflect.py's cluster(). Only clusters
// with 2 or more members are returned.
func ClusterMemories(mems []*types.Memory) []Cluster {
	used := make(map[string]bool, len(mems))
	var clusters []Cluster

	for _, m := range mems {
		if used[m.ID] || m.PrimarySector == sector.Reflective || hasConsolidatedFlag(m) {
			continue
		}
		c := Cluster{Members: []*types.Memory{m}}
		used[m.ID] = true

		for _, o := range mems {
			if used[o.ID] || m.PrimarySector != o.PrimarySector || hasConsolidatedFlag(o) {
				continue
			}
			if jaccardSimilarity(m.Content, o.Content) > similarityThreshold {
				c.Members = append(c.Members, o)
				used[o.ID] = true
			}
		}

		if len(c.Members) >= 2 {
			clusters = append(clusters, c)
		}
	}
	return clusters
}

// ClusterSalience is reflect.py's calc_sal: frequency weight (0.6), mean
// recency-decayed recency weight (0.3, time constant 12h via the 43_200_000 ms
// original constant), reserved emotional-sector bonus (0.1, currently
// always 0 since the source's own sectors-list check never fires — kept as
// a named constant for parity rather than silently dropped).
func ClusterSalience(c Cluster, nowMs int64) float64 {
	n := float64(len(c.Members))
	p := n / 10.0

	var rSum float64
	for _, m := range c.Members {
		rSum += math.Exp(-(float64(nowMs-m.CreatedAt)) / 43200000.0)
	}
	r := rSum / n

	const e = 0.0 // reflect.py's emotional-sector bonus never fires; see comment above.
	sal := 0.6*p + 0.3*r + 0.1*e
	if sal > 1.0 {
		sal = 1.0
	}
	return sal
}

// Summarize joins up to the cluster's members' leading content into the
// reflective memory's text, the Go port of reflect.py's summ().
func Summarize(c Cluster) string {
	primary := sector.Semantic
	if len(c.Members) > 0 {
		primary = c.Members[0].PrimarySector
	}
	parts := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		txt := m.Content
		if len(txt) > 60 {
			txt = txt[:60]
		}
		parts = append(parts, txt)
	}
	joined := strings.Join(parts, "; ")
	if len(joined) > 200 {
		joined = joined[:200]
	}
	return fmt.Sprintf("%d %s pattern: %s", len(c.Members), primary, joined)
}

// SourceIDs returns c's member ids in stable order, used to mark them
// consolidated and to populate the synthesized reflection's metadata.
func SourceIDs(c Cluster) []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	sort.Strings(ids)
	return ids
}

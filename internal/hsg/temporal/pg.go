package temporal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/types"
)

// pgStore is a pgx-backed Store. Its schema is applied via inline, idempotent
// CREATE TABLE IF NOT EXISTS statements in Init, matching store.pgStore's
// bootstrap style rather than a separate migration runner.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a pgx-backed Store. Callers must invoke Init once
// before use.
func NewPostgres(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// Init ensures the temporal_facts and temporal_edges tables exist.
func (s *pgStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("hsg: postgres temporal store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hsg_temporal_facts (
    id           TEXT PRIMARY KEY,
    subject      TEXT NOT NULL,
    predicate    TEXT NOT NULL,
    object       TEXT NOT NULL,
    valid_from   BIGINT NOT NULL,
    valid_to     BIGINT,
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 1,
    last_updated BIGINT NOT NULL,
    meta         JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS hsg_temporal_facts_sp_idx ON hsg_temporal_facts(subject, predicate);
CREATE INDEX IF NOT EXISTS hsg_temporal_facts_open_idx ON hsg_temporal_facts(subject, predicate) WHERE valid_to IS NULL;
CREATE INDEX IF NOT EXISTS hsg_temporal_facts_subject_idx ON hsg_temporal_facts(subject);

CREATE TABLE IF NOT EXISTS hsg_temporal_edges (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL,
    target_id     TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    valid_from    BIGINT NOT NULL,
    valid_to      BIGINT,
    weight        DOUBLE PRECISION NOT NULL DEFAULT 1,
    meta          JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS hsg_temporal_edges_src_idx ON hsg_temporal_edges(source_id);
`)
	return err
}

func marshalMeta(m map[string]any) []byte {
	if m == nil {
		m = map[string]any{}
	}
	b, _ := json.Marshal(m)
	return b
}

func unmarshalMeta(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func (s *pgStore) closeOpenRows(ctx context.Context, tx pgx.Tx, subject, predicate string, validFrom int64) error {
	_, err := tx.Exec(ctx, `
UPDATE hsg_temporal_facts SET valid_to = $3 - 1
WHERE subject = $1 AND predicate = $2 AND valid_to IS NULL AND valid_from < $3
`, subject, predicate, validFrom)
	return err
}

func (s *pgStore) InsertFact(ctx context.Context, subject, predicate, object string, validFrom int64, confidence float64, meta map[string]any) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", hsgerr.Unavailable("begin insert-fact tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.closeOpenRows(ctx, tx, subject, predicate, validFrom); err != nil {
		return "", hsgerr.Unavailable("close prior fact rows", err)
	}

	id := uuid.NewString()
	if _, err := tx.Exec(ctx, `
INSERT INTO hsg_temporal_facts (id, subject, predicate, object, valid_from, valid_to, confidence, last_updated, meta)
VALUES ($1,$2,$3,$4,$5,NULL,$6,$5,$7)
`, id, subject, predicate, object, validFrom, clamp01(confidence), marshalMeta(meta)); err != nil {
		return "", hsgerr.Unavailable("insert fact", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", hsgerr.Unavailable("commit insert-fact tx", err)
	}
	return id, nil
}

func (s *pgStore) UpdateFact(ctx context.Context, id string, confidence *float64, meta map[string]any) error {
	var conf *float64
	if confidence != nil {
		c := clamp01(*confidence)
		conf = &c
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE hsg_temporal_facts SET
    confidence = COALESCE($2, confidence),
    meta = COALESCE($3, meta)
WHERE id = $1
`, id, conf, metaOrNil(meta))
	if err != nil {
		return hsgerr.Unavailable("update fact", err)
	}
	if tag.RowsAffected() == 0 {
		return hsgerr.NotFoundErr("temporal fact " + id + " not found")
	}
	return nil
}

func metaOrNil(m map[string]any) []byte {
	if m == nil {
		return nil
	}
	return marshalMeta(m)
}

func (s *pgStore) InvalidateFact(ctx context.Context, id string, validTo int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE hsg_temporal_facts SET valid_to = $2 WHERE id = $1`, id, validTo)
	if err != nil {
		return hsgerr.Unavailable("invalidate fact", err)
	}
	if tag.RowsAffected() == 0 {
		return hsgerr.NotFoundErr("temporal fact " + id + " not found")
	}
	return nil
}

func (s *pgStore) DeleteFact(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM hsg_temporal_facts WHERE id = $1`, id)
	if err != nil {
		return hsgerr.Unavailable("delete fact", err)
	}
	return nil
}

func (s *pgStore) InsertEdge(ctx context.Context, sourceID, targetID, relationType string, validFrom int64, weight float64, meta map[string]any) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
INSERT INTO hsg_temporal_edges (id, source_id, target_id, relation_type, valid_from, valid_to, weight, meta)
VALUES ($1,$2,$3,$4,$5,NULL,$6,$7)
`, id, sourceID, targetID, relationType, validFrom, clamp01(weight), marshalMeta(meta))
	if err != nil {
		return "", hsgerr.Unavailable("insert edge", err)
	}
	return id, nil
}

func (s *pgStore) InvalidateEdge(ctx context.Context, id string, validTo int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE hsg_temporal_edges SET valid_to = $2 WHERE id = $1`, id, validTo)
	if err != nil {
		return hsgerr.Unavailable("invalidate edge", err)
	}
	if tag.RowsAffected() == 0 {
		return hsgerr.NotFoundErr("temporal edge " + id + " not found")
	}
	return nil
}

// BatchInsertFacts mirrors store.py's batch_insert_facts: every row's
// invalidation and insert happens inside one transaction, committed once at
// the end so the whole batch is all-or-nothing.
func (s *pgStore) BatchInsertFacts(ctx context.Context, facts []BatchFact) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, hsgerr.Unavailable("begin batch-insert tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(facts))
	for _, bf := range facts {
		if err := s.closeOpenRows(ctx, tx, bf.Subject, bf.Predicate, bf.ValidFrom); err != nil {
			return nil, hsgerr.Unavailable("close prior fact rows in batch", err)
		}
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, `
INSERT INTO hsg_temporal_facts (id, subject, predicate, object, valid_from, valid_to, confidence, last_updated, meta)
VALUES ($1,$2,$3,$4,$5,NULL,$6,$5,$7)
`, id, bf.Subject, bf.Predicate, bf.Object, bf.ValidFrom, clamp01(bf.Confidence), marshalMeta(bf.Metadata)); err != nil {
			return nil, hsgerr.Unavailable("insert fact in batch", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, hsgerr.Unavailable("commit batch-insert tx", err)
	}
	return ids, nil
}

func (s *pgStore) ApplyConfidenceDecay(ctx context.Context, rate float64, now int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE hsg_temporal_facts
SET confidence = GREATEST($2, confidence * (1 - $3 * (($1 - valid_from)::double precision / 86400000.0))),
    last_updated = $1
WHERE valid_to IS NULL AND confidence > $2
`, now, ConfidenceFloor, rate)
	if err != nil {
		return 0, hsgerr.Unavailable("apply confidence decay", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanFact(row pgx.Row) (types.TemporalFact, error) {
	var f types.TemporalFact
	var metaRaw []byte
	if err := row.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Object, &f.ValidFrom, &f.ValidTo, &f.Confidence, &f.LastUpdated, &metaRaw); err != nil {
		return f, err
	}
	f.Metadata = unmarshalMeta(metaRaw)
	return f, nil
}

const factColumns = `id, subject, predicate, object, valid_from, valid_to, confidence, last_updated, meta`

func (s *pgStore) queryFacts(ctx context.Context, query string, args ...any) ([]types.TemporalFact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, hsgerr.Unavailable("query temporal facts", err)
	}
	defer rows.Close()
	var out []types.TemporalFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *pgStore) QueryFactsAtTime(ctx context.Context, filter FactFilter, at int64, minConfidence float64) ([]types.TemporalFact, error) {
	query := `SELECT ` + factColumns + ` FROM hsg_temporal_facts
WHERE valid_from <= $1 AND (valid_to IS NULL OR valid_to >= $1) AND confidence >= $2`
	args := []any{at, minConfidence}
	query, args = appendFilter(query, args, filter)
	query += ` ORDER BY confidence DESC, valid_from DESC`
	return s.queryFacts(ctx, query, args...)
}

func appendFilter(query string, args []any, f FactFilter) (string, []any) {
	if f.Subject != "" {
		args = append(args, f.Subject)
		query += fieldClause("subject", len(args))
	}
	if f.Predicate != "" {
		args = append(args, f.Predicate)
		query += fieldClause("predicate", len(args))
	}
	if f.Object != "" {
		args = append(args, f.Object)
		query += fieldClause("object", len(args))
	}
	return query, args
}

func fieldClause(col string, idx int) string {
	return " AND " + col + " = $" + itoa(idx)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *pgStore) GetCurrentFact(ctx context.Context, subject, predicate string) (*types.TemporalFact, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+factColumns+` FROM hsg_temporal_facts
WHERE subject=$1 AND predicate=$2 AND valid_to IS NULL
ORDER BY valid_from DESC LIMIT 1
`, subject, predicate)
	f, err := scanFact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, hsgerr.Unavailable("get current fact", err)
	}
	return &f, true, nil
}

func (s *pgStore) QueryFactsInRange(ctx context.Context, filter FactFilter, start, end *int64, minConfidence float64) ([]types.TemporalFact, error) {
	query := `SELECT ` + factColumns + ` FROM hsg_temporal_facts WHERE confidence >= $1`
	args := []any{minConfidence}
	if start != nil && end != nil {
		args = append(args, *end, *start)
		query += ` AND valid_from <= $2 AND (valid_to IS NULL OR valid_to >= $3)`
	} else if start != nil {
		args = append(args, *start)
		query += ` AND valid_from >= $2`
	} else if end != nil {
		args = append(args, *end)
		query += ` AND valid_from <= $2`
	}
	query, args = appendFilter(query, args, filter)
	query += ` ORDER BY valid_from DESC`
	return s.queryFacts(ctx, query, args...)
}

func (s *pgStore) FindConflictingFacts(ctx context.Context, subject, predicate string, at int64) ([]types.TemporalFact, error) {
	return s.queryFacts(ctx, `
SELECT `+factColumns+` FROM hsg_temporal_facts
WHERE subject=$1 AND predicate=$2 AND valid_from <= $3 AND (valid_to IS NULL OR valid_to >= $3)
ORDER BY confidence DESC
`, subject, predicate, at)
}

func (s *pgStore) GetFactsBySubject(ctx context.Context, subject string, at int64, includeHistorical bool) ([]types.TemporalFact, error) {
	if includeHistorical {
		return s.queryFacts(ctx, `
SELECT `+factColumns+` FROM hsg_temporal_facts WHERE subject=$1
ORDER BY predicate ASC, valid_from DESC
`, subject)
	}
	return s.queryFacts(ctx, `
SELECT `+factColumns+` FROM hsg_temporal_facts
WHERE subject=$1 AND valid_from <= $2 AND (valid_to IS NULL OR valid_to >= $2)
ORDER BY predicate ASC, confidence DESC
`, subject, at)
}

func (s *pgStore) SearchFacts(ctx context.Context, pattern, field string, at int64) ([]types.TemporalFact, error) {
	switch field {
	case "subject", "predicate", "object":
	default:
		field = "subject"
	}
	query := `SELECT ` + factColumns + ` FROM hsg_temporal_facts
WHERE valid_from <= $1 AND (valid_to IS NULL OR valid_to >= $1) AND ` + field + ` ILIKE $2
ORDER BY confidence DESC, valid_from DESC LIMIT 100`
	return s.queryFacts(ctx, query, at, "%"+pattern+"%")
}

func (s *pgStore) GetRelatedFacts(ctx context.Context, factID, relationType string, at int64) ([]RelatedFact, error) {
	query := `
SELECT f.` + factColumns + `, e.relation_type, e.weight
FROM hsg_temporal_edges e
JOIN hsg_temporal_facts f ON f.id = e.target_id
WHERE e.source_id = $1
  AND e.valid_from <= $2 AND (e.valid_to IS NULL OR e.valid_to >= $2)
  AND f.valid_from <= $2 AND (f.valid_to IS NULL OR f.valid_to >= $2)`
	args := []any{factID, at}
	if relationType != "" {
		query += ` AND e.relation_type = $3`
		args = append(args, relationType)
	}
	query += ` ORDER BY e.weight DESC, f.confidence DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, hsgerr.Unavailable("get related facts", err)
	}
	defer rows.Close()
	var out []RelatedFact
	for rows.Next() {
		var f types.TemporalFact
		var metaRaw []byte
		var relation string
		var weight float64
		if err := rows.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Object, &f.ValidFrom, &f.ValidTo, &f.Confidence, &f.LastUpdated, &metaRaw, &relation, &weight); err != nil {
			return nil, err
		}
		f.Metadata = unmarshalMeta(metaRaw)
		out = append(out, RelatedFact{Fact: f, Relation: relation, Weight: weight})
	}
	return out, rows.Err()
}

func (s *pgStore) timelineQuery(ctx context.Context, query string, args ...any) ([]types.TimelineEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, hsgerr.Unavailable("query timeline", err)
	}
	defer rows.Close()
	var out []types.TimelineEntry
	for rows.Next() {
		var subject, predicate, object string
		var validFrom int64
		var validTo *int64
		var confidence float64
		if err := rows.Scan(&subject, &predicate, &object, &validFrom, &validTo, &confidence); err != nil {
			return nil, err
		}
		out = append(out, types.TimelineEntry{Timestamp: validFrom, Subject: subject, Predicate: predicate, Object: object, Confidence: confidence, ChangeType: "created"})
		if validTo != nil {
			out = append(out, types.TimelineEntry{Timestamp: *validTo, Subject: subject, Predicate: predicate, Object: object, Confidence: confidence, ChangeType: "invalidated"})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortTimeline(out)
	return out, nil
}

func sortTimeline(entries []types.TimelineEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Timestamp < entries[j-1].Timestamp; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (s *pgStore) GetSubjectTimeline(ctx context.Context, subject, predicate string) ([]types.TimelineEntry, error) {
	if predicate == "" {
		return s.timelineQuery(ctx, `SELECT subject, predicate, object, valid_from, valid_to, confidence FROM hsg_temporal_facts WHERE subject=$1`, subject)
	}
	return s.timelineQuery(ctx, `SELECT subject, predicate, object, valid_from, valid_to, confidence FROM hsg_temporal_facts WHERE subject=$1 AND predicate=$2`, subject, predicate)
}

func (s *pgStore) GetPredicateTimeline(ctx context.Context, predicate string, start, end *int64) ([]types.TimelineEntry, error) {
	query := `SELECT subject, predicate, object, valid_from, valid_to, confidence FROM hsg_temporal_facts WHERE predicate=$1`
	args := []any{predicate}
	if start != nil {
		args = append(args, *start)
		query += ` AND valid_from >= $` + itoa(len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += ` AND valid_from <= $` + itoa(len(args))
	}
	return s.timelineQuery(ctx, query, args...)
}

func (s *pgStore) GetChangesInWindow(ctx context.Context, start, end int64, subject string) ([]types.TimelineEntry, error) {
	query := `SELECT subject, predicate, object, valid_from, valid_to, confidence FROM hsg_temporal_facts
WHERE ((valid_from >= $1 AND valid_from <= $2) OR (valid_to IS NOT NULL AND valid_to >= $1 AND valid_to <= $2))`
	args := []any{start, end}
	if subject != "" {
		args = append(args, subject)
		query += ` AND subject = $3`
	}
	return s.timelineQuery(ctx, query, args...)
}

func (s *pgStore) CompareTimePoints(ctx context.Context, subject string, t1, t2 int64) (FactDiff, error) {
	f1, err := s.GetFactsBySubject(ctx, subject, t1, false)
	if err != nil {
		return FactDiff{}, err
	}
	f2, err := s.GetFactsBySubject(ctx, subject, t2, false)
	if err != nil {
		return FactDiff{}, err
	}
	m1 := make(map[string]types.TemporalFact, len(f1))
	for _, f := range f1 {
		m1[f.Predicate] = f
	}
	m2 := make(map[string]types.TemporalFact, len(f2))
	for _, f := range f2 {
		m2[f.Predicate] = f
	}

	var diff FactDiff
	for pred, after := range m2 {
		before, ok := m1[pred]
		if !ok {
			diff.Added = append(diff.Added, after)
			continue
		}
		if before.Object != after.Object || before.ID != after.ID {
			diff.Changed = append(diff.Changed, ChangedFact{Before: before, After: after})
		} else {
			diff.Unchanged = append(diff.Unchanged, after)
		}
	}
	for pred, before := range m1 {
		if _, ok := m2[pred]; !ok {
			diff.Removed = append(diff.Removed, before)
		}
	}
	return diff, nil
}

func (s *pgStore) GetChangeFrequency(ctx context.Context, subject, predicate string, windowDays int, now int64) (ChangeFrequency, error) {
	start := now - int64(float64(windowDays)*86400000.0)
	var totalChanges int
	var avgDur *float64
	err := s.pool.QueryRow(ctx, `
SELECT count(*), avg(valid_to - valid_from) FILTER (WHERE valid_to IS NOT NULL)
FROM hsg_temporal_facts
WHERE subject=$1 AND predicate=$2 AND valid_from >= $3
`, subject, predicate, start).Scan(&totalChanges, &avgDur)
	if err != nil {
		return ChangeFrequency{}, hsgerr.Unavailable("get change frequency", err)
	}
	var dur float64
	if avgDur != nil {
		dur = *avgDur
	}
	var rate float64
	if windowDays > 0 {
		rate = float64(totalChanges) / float64(windowDays)
	}
	return ChangeFrequency{Predicate: predicate, TotalChanges: totalChanges, AvgDurationMs: dur, ChangeRatePerDay: rate}, nil
}

func (s *pgStore) GetVolatileFacts(ctx context.Context, subject string, limit int) ([]VolatileFact, error) {
	query := `
SELECT subject, predicate, count(*) AS change_count, avg(confidence) AS avg_confidence
FROM hsg_temporal_facts`
	args := []any{}
	if subject != "" {
		query += ` WHERE subject = $1`
		args = append(args, subject)
	}
	query += ` GROUP BY subject, predicate HAVING count(*) > 1 ORDER BY change_count DESC, avg_confidence ASC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, hsgerr.Unavailable("get volatile facts", err)
	}
	defer rows.Close()
	var out []VolatileFact
	for rows.Next() {
		var v VolatileFact
		if err := rows.Scan(&v.Subject, &v.Predicate, &v.ChangeCount, &v.AvgConfidence); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/types"
	"hsg/internal/hsg/veccodec"
)

// pgStore is a pgx-backed MemoryStore. Its schema is applied via inline,
// idempotent CREATE TABLE IF NOT EXISTS / ALTER TABLE ADD COLUMN IF NOT
// EXISTS statements in Init, in the style of this codebase's
// pgEvolvingMemoryStore — no separate migration-file runner.
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a pgx-backed MemoryStore. Callers must invoke Init
// once before use.
func NewPostgres(pool *pgxpool.Pool) MemoryStore {
	return &pgStore{pool: pool}
}

// Init ensures the memories, waypoints, users, and embed_logs tables exist.
func (s *pgStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("hsg: postgres store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS hsg_memories (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    segment         INT  NOT NULL DEFAULT 0,
    content         TEXT NOT NULL,
    summary         TEXT NOT NULL DEFAULT '',
    simhash         TEXT NOT NULL DEFAULT '',
    primary_sector  TEXT NOT NULL,
    tags            JSONB NOT NULL DEFAULT '[]'::jsonb,
    meta            JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at      BIGINT NOT NULL,
    updated_at      BIGINT NOT NULL,
    last_seen_at    BIGINT NOT NULL,
    salience        DOUBLE PRECISION NOT NULL DEFAULT 0,
    decay_lambda    DOUBLE PRECISION NOT NULL DEFAULT 0.02,
    version         INT NOT NULL DEFAULT 1,
    mean_dim        INT NOT NULL DEFAULT 0,
    mean_vec        BYTEA,
    compressed_vec  BYTEA,
    feedback_score  DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS hsg_memories_user_idx ON hsg_memories(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS hsg_memories_simhash_idx ON hsg_memories(simhash);
CREATE INDEX IF NOT EXISTS hsg_memories_segment_idx ON hsg_memories(segment);

CREATE TABLE IF NOT EXISTS hsg_waypoints (
    id         TEXT PRIMARY KEY,
    src_id     TEXT NOT NULL,
    dst_id     TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    weight     DOUBLE PRECISION NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE (src_id, dst_id)
);

CREATE INDEX IF NOT EXISTS hsg_waypoints_src_idx ON hsg_waypoints(src_id);

CREATE TABLE IF NOT EXISTS hsg_users (
    user_id          TEXT PRIMARY KEY,
    summary          TEXT NOT NULL DEFAULT '',
    reflection_count INT NOT NULL DEFAULT 0,
    created_at       BIGINT NOT NULL,
    updated_at       BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS hsg_embed_logs (
    id     TEXT PRIMARY KEY,
    model  TEXT NOT NULL,
    status TEXT NOT NULL,
    ts     BIGINT NOT NULL,
    err    TEXT NOT NULL DEFAULT ''
);
`)
	return err
}

func (s *pgStore) InsertMemory(ctx context.Context, m *types.Memory) error {
	tags, _ := json.Marshal(m.Tags)
	meta, _ := json.Marshal(m.Meta)
	_, err := s.pool.Exec(ctx, `
INSERT INTO hsg_memories (id, user_id, segment, content, summary, simhash, primary_sector, tags, meta,
    created_at, updated_at, last_seen_at, salience, decay_lambda, version, mean_dim, mean_vec, compressed_vec, feedback_score)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
ON CONFLICT (id) DO NOTHING
`, m.ID, m.UserID, m.Segment, m.Content, m.Summary, m.SimHash, string(m.PrimarySector), tags, meta,
		m.CreatedAt, m.UpdatedAt, m.LastSeenAt, m.Salience, m.DecayLambda, m.Version, m.MeanDim,
		veccodec.Pack(m.MeanVec), veccodec.Pack(m.CompressedVec), m.FeedbackScore)
	if err != nil {
		log.Error().Err(err).Str("id", m.ID).Msg("hsg: insert memory failed")
		return hsgerr.Unavailable("insert memory", err)
	}
	return nil
}

func (s *pgStore) UpdateMemory(ctx context.Context, m *types.Memory) error {
	tags, _ := json.Marshal(m.Tags)
	meta, _ := json.Marshal(m.Meta)
	tag, err := s.pool.Exec(ctx, `
UPDATE hsg_memories SET content=$2, summary=$3, simhash=$4, primary_sector=$5, tags=$6, meta=$7,
    updated_at=$8, last_seen_at=$9, salience=$10, decay_lambda=$11, version=$12, mean_dim=$13,
    mean_vec=$14, compressed_vec=$15, feedback_score=$16
WHERE id=$1
`, m.ID, m.Content, m.Summary, m.SimHash, string(m.PrimarySector), tags, meta,
		m.UpdatedAt, m.LastSeenAt, m.Salience, m.DecayLambda, m.Version, m.MeanDim,
		veccodec.Pack(m.MeanVec), veccodec.Pack(m.CompressedVec), m.FeedbackScore)
	if err != nil {
		return hsgerr.Unavailable("update memory", err)
	}
	if tag.RowsAffected() == 0 {
		return hsgerr.NotFoundErr("memory " + m.ID + " not found")
	}
	return nil
}

func scanMemory(row pgx.Row) (*types.Memory, error) {
	var m types.Memory
	var primarySector, tagsRaw, metaRaw string
	var meanRaw, compressedRaw []byte
	if err := row.Scan(&m.ID, &m.UserID, &m.Segment, &m.Content, &m.Summary, &m.SimHash, &primarySector,
		&tagsRaw, &metaRaw, &m.CreatedAt, &m.UpdatedAt, &m.LastSeenAt, &m.Salience, &m.DecayLambda,
		&m.Version, &m.MeanDim, &meanRaw, &compressedRaw, &m.FeedbackScore); err != nil {
		return nil, err
	}
	m.PrimarySector = sector.Sector(primarySector)
	_ = json.Unmarshal([]byte(tagsRaw), &m.Tags)
	_ = json.Unmarshal([]byte(metaRaw), &m.Meta)
	m.MeanVec = veccodec.Unpack(meanRaw)
	m.CompressedVec = veccodec.Unpack(compressedRaw)
	return &m, nil
}

const memoryColumns = `id, user_id, segment, content, summary, simhash, primary_sector, tags, meta,
    created_at, updated_at, last_seen_at, salience, decay_lambda, version, mean_dim, mean_vec, compressed_vec, feedback_score`

func (s *pgStore) GetMemory(ctx context.Context, id string) (*types.Memory, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM hsg_memories WHERE id = $1`, id)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *pgStore) FindBySimHash(ctx context.Context, simhash string) (*types.Memory, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM hsg_memories WHERE simhash = $1 ORDER BY created_at ASC LIMIT 1`, simhash)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *pgStore) queryMemories(ctx context.Context, query string, args ...any) ([]*types.Memory, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*types.Memory, error) {
	return s.queryMemories(ctx, `SELECT `+memoryColumns+` FROM hsg_memories WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (s *pgStore) ListRecentByUser(ctx context.Context, userID string, limit int, excludeID string) ([]*types.Memory, error) {
	return s.queryMemories(ctx, `SELECT `+memoryColumns+` FROM hsg_memories WHERE user_id=$1 AND id<>$2 ORDER BY created_at DESC LIMIT $3`, userID, excludeID, limit)
}

func (s *pgStore) DeleteMemory(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return hsgerr.Unavailable("begin delete tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM hsg_waypoints WHERE src_id=$1 OR dst_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM hsg_memories WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return hsgerr.Unavailable("begin delete-user tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM hsg_waypoints WHERE user_id=$1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM hsg_memories WHERE user_id=$1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM hsg_users WHERE user_id=$1`, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) InsertLog(ctx context.Context, l types.EmbedLog) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO hsg_embed_logs (id, model, status, ts, err) VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.Model, string(l.Status), l.Ts, l.Err)
	return err
}

func (s *pgStore) UpdateLog(ctx context.Context, id string, status types.EmbedLogStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE hsg_embed_logs SET status=$2, err=$3 WHERE id=$1`, id, string(status), errMsg)
	return err
}

func (s *pgStore) UpsertWaypoint(ctx context.Context, w types.Waypoint) error {
	if w.Weight < 0 {
		w.Weight = 0
	}
	if w.Weight > 1 {
		w.Weight = 1
	}
	if w.ID == "" {
		w.ID = w.SrcID + "->" + w.DstID
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO hsg_waypoints (id, src_id, dst_id, user_id, weight, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (src_id, dst_id) DO UPDATE SET weight=EXCLUDED.weight, updated_at=EXCLUDED.updated_at
`, w.ID, w.SrcID, w.DstID, w.UserID, w.Weight, w.CreatedAt, w.UpdatedAt)
	return err
}

func (s *pgStore) GetWaypointsBySrc(ctx context.Context, srcID string) ([]types.Waypoint, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, src_id, dst_id, user_id, weight, created_at, updated_at FROM hsg_waypoints WHERE src_id=$1`, srcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Waypoint
	for rows.Next() {
		var w types.Waypoint
		if err := rows.Scan(&w.ID, &w.SrcID, &w.DstID, &w.UserID, &w.Weight, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *pgStore) DeleteWaypointsFor(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM hsg_waypoints WHERE src_id=$1 OR dst_id=$1`, id)
	return err
}

func (s *pgStore) GetUser(ctx context.Context, userID string) (*types.User, bool, error) {
	var u types.User
	err := s.pool.QueryRow(ctx, `SELECT user_id, summary, reflection_count, created_at, updated_at FROM hsg_users WHERE user_id=$1`, userID).
		Scan(&u.UserID, &u.Summary, &u.ReflectionCount, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &u, true, nil
}

func (s *pgStore) UpsertUser(ctx context.Context, u types.User) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO hsg_users (user_id, summary, reflection_count, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (user_id) DO UPDATE SET summary=EXCLUDED.summary, reflection_count=EXCLUDED.reflection_count, updated_at=EXCLUDED.updated_at
`, u.UserID, u.Summary, u.ReflectionCount, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s *pgStore) SegmentCount(ctx context.Context, segment int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM hsg_memories WHERE segment=$1`, segment).Scan(&n)
	return n, err
}

func (s *pgStore) MaxSegment(ctx context.Context) (int, error) {
	var max *int
	err := s.pool.QueryRow(ctx, `SELECT max(segment) FROM hsg_memories`).Scan(&max)
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (s *pgStore) AllSegments(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT segment FROM hsg_memories ORDER BY segment`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var seg int
		if err := rows.Scan(&seg); err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *pgStore) MemoriesInSegment(ctx context.Context, segment int) ([]*types.Memory, error) {
	return s.queryMemories(ctx, `SELECT `+memoryColumns+` FROM hsg_memories WHERE segment=$1`, segment)
}

func (s *pgStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT user_id FROM hsg_memories ORDER BY user_id`)
	if err != nil {
		return nil, hsgerr.Unavailable("list user ids", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/sector"
)

// pgVectorStore stores per-sector vectors as native pgvector columns,
// searched with the cosine-distance operator (<=>). Grounded on the
// teacher's internal/persistence/databases/postgres_vector.go toVectorLiteral
// pattern for formatting a []float32 as a pgvector literal.
type pgVectorStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPGVector constructs a pgvector-backed VectorStore over pool, creating
// its table (idempotently) for the given fixed dimension.
func NewPGVector(ctx context.Context, pool *pgxpool.Pool, dim int) (VectorStore, error) {
	s := &pgVectorStore{pool: pool, dim: dim}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *pgVectorStore) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS hsg_vectors (
    memory_id TEXT NOT NULL,
    sector    TEXT NOT NULL,
    user_id   TEXT NOT NULL DEFAULT '',
    dim       INT NOT NULL,
    embedding vector(%d),
    PRIMARY KEY (memory_id, sector)
);

CREATE INDEX IF NOT EXISTS hsg_vectors_sector_user_idx ON hsg_vectors(sector, user_id);
`, s.dim))
	return err
}

func toVectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

func (s *pgVectorStore) Store(ctx context.Context, id string, sec sector.Sector, vector []float32, dim int, userID string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO hsg_vectors (memory_id, sector, user_id, dim, embedding)
VALUES ($1, $2, $3, $4, $5::vector)
ON CONFLICT (memory_id, sector) DO UPDATE SET
    user_id = EXCLUDED.user_id, dim = EXCLUDED.dim, embedding = EXCLUDED.embedding
`, id, string(sec), userID, dim, toVectorLiteral(vector))
	if err != nil {
		log.Error().Err(err).Str("memory_id", id).Str("sector", string(sec)).Msg("hsg: pgvector store failed")
	}
	return err
}

func (s *pgVectorStore) scanVector(raw string) []float32 {
	raw = strings.Trim(raw, "[]")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float32
		_, _ = fmt.Sscanf(strings.TrimSpace(p), "%g", &f)
		out = append(out, f)
	}
	return out
}

func (s *pgVectorStore) ByID(ctx context.Context, id string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT sector, user_id, dim, embedding::text FROM hsg_vectors WHERE memory_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var sec, userID, raw string
		var dim int
		if err := rows.Scan(&sec, &userID, &dim, &raw); err != nil {
			return nil, err
		}
		out = append(out, Row{ID: id, Sector: sector.Sector(sec), UserID: userID, Dim: dim, Vector: s.scanVector(raw)})
	}
	return out, rows.Err()
}

func (s *pgVectorStore) Get(ctx context.Context, id string, sec sector.Sector) (Row, bool, error) {
	var userID, raw string
	var dim int
	err := s.pool.QueryRow(ctx, `SELECT user_id, dim, embedding::text FROM hsg_vectors WHERE memory_id = $1 AND sector = $2`, id, string(sec)).
		Scan(&userID, &dim, &raw)
	if err == pgx.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, err
	}
	return Row{ID: id, Sector: sec, UserID: userID, Dim: dim, Vector: s.scanVector(raw)}, true, nil
}

func (s *pgVectorStore) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM hsg_vectors WHERE memory_id = $1`, id)
	return err
}

func (s *pgVectorStore) Search(ctx context.Context, vector []float32, sec sector.Sector, k int, opts SearchOpts) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	lit := toVectorLiteral(vector)
	query := `
SELECT memory_id, 1 - (embedding <=> $1::vector) AS similarity
FROM hsg_vectors
WHERE sector = $2`
	args := []any{lit, string(sec)}
	if opts.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", len(args)+1)
		args = append(args, opts.UserID)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args)+1)
	args = append(args, k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Similarity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

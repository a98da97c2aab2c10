// Package analytics writes decay-pass and retrieval-scoring telemetry to
// ClickHouse, grounded on this codebase's clickhouseTokenMetrics
// (internal/agentd/metrics_clickhouse.go): clickhouse.Open + a pinged
// connection, with table inserts instead of aggregate queries.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
)

// DecayPassRecord summarizes one decay scheduler run over a segment.
type DecayPassRecord struct {
	SegmentID     string
	MemoriesTouched int
	Compressed    int
	Regenerated   int
	DurationMs    int64
	Timestamp     time.Time
}

// RetrievalRecord summarizes the scoring breakdown for one search query.
type RetrievalRecord struct {
	UserID        string
	QueryPreview  string
	ResultCount   int
	TopScore      float64
	CacheHit      bool
	DurationMs    int64
	Timestamp     time.Time
}

// Sink records decay and retrieval telemetry. A nil-safe no-op
// implementation is the default.
type Sink interface {
	RecordDecayPass(ctx context.Context, r DecayPassRecord) error
	RecordRetrieval(ctx context.Context, r RetrievalRecord) error
	Close() error
}

type noopSink struct{}

// NewNoop constructs the default no-op analytics sink.
func NewNoop() Sink { return noopSink{} }

func (noopSink) RecordDecayPass(context.Context, DecayPassRecord) error { return nil }
func (noopSink) RecordRetrieval(context.Context, RetrievalRecord) error { return nil }
func (noopSink) Close() error                                          { return nil }

type clickhouseSink struct {
	conn clickhouse.Conn
}

// NewClickHouse opens a ClickHouse connection from dsn and ensures the two
// telemetry tables exist. An empty dsn returns the no-op sink.
func NewClickHouse(ctx context.Context, dsn string) (Sink, error) {
	if dsn == "" {
		return NewNoop(), nil
	}
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	s := &clickhouseSink{conn: conn}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *clickhouseSink) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hsg_decay_passes (
			segment_id String,
			memories_touched UInt32,
			compressed UInt32,
			regenerated UInt32,
			duration_ms UInt32,
			ts DateTime
		) ENGINE = MergeTree() ORDER BY (ts, segment_id)`,
		`CREATE TABLE IF NOT EXISTS hsg_retrievals (
			user_id String,
			query_preview String,
			result_count UInt32,
			top_score Float64,
			cache_hit UInt8,
			duration_ms UInt32,
			ts DateTime
		) ENGINE = MergeTree() ORDER BY (ts, user_id)`,
	}
	for _, stmt := range stmts {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("hsg analytics schema init: %w", err)
		}
	}
	return nil
}

func (s *clickhouseSink) RecordDecayPass(ctx context.Context, r DecayPassRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	err := s.conn.Exec(ctx,
		`INSERT INTO hsg_decay_passes (segment_id, memories_touched, compressed, regenerated, duration_ms, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		r.SegmentID, r.MemoriesTouched, r.Compressed, r.Regenerated, r.DurationMs, r.Timestamp)
	if err != nil {
		log.Warn().Err(err).Msg("hsg: clickhouse decay pass insert failed")
	}
	return err
}

func (s *clickhouseSink) RecordRetrieval(ctx context.Context, r RetrievalRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	cacheHit := uint8(0)
	if r.CacheHit {
		cacheHit = 1
	}
	err := s.conn.Exec(ctx,
		`INSERT INTO hsg_retrievals (user_id, query_preview, result_count, top_score, cache_hit, duration_ms, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UserID, r.QueryPreview, r.ResultCount, r.TopScore, cacheHit, r.DurationMs, r.Timestamp)
	if err != nil {
		log.Warn().Err(err).Msg("hsg: clickhouse retrieval insert failed")
	}
	return err
}

func (s *clickhouseSink) Close() error {
	return s.conn.Close()
}

// Command hsgd assembles the Hierarchical Sectored-memory Graph: storage
// backend, vector store, embedder, and the decay / user-summary background
// loops. It exposes no HTTP or MCP surface of its own (those are out-of-scope
// external collaborators per spec §1); callers wanting a front door embed
// engine.Engine and hsg/temporal.Store directly, the same way this
// codebase's own cmd/ entrypoints assemble a databases.Manager and hand it
// to a service layer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/analytics"
	"hsg/internal/hsg/cache"
	"hsg/internal/hsg/config"
	"hsg/internal/hsg/decay"
	"hsg/internal/hsg/embedder"
	"hsg/internal/hsg/engine"
	"hsg/internal/hsg/eventsink"
	"hsg/internal/hsg/store"
	"hsg/internal/hsg/temporal"
	"hsg/internal/hsg/usersummary"
	"hsg/internal/hsg/vectorstore"
	"hsg/internal/observability"
)

type initializer interface {
	Init(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.LoadDefaultsFile(os.Getenv("HSG_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config defaults: %v\n", err)
		os.Exit(1)
	}
	cfg = config.LoadEnv(cfg, "")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if otlp := os.Getenv("HSG_OTLP_ENDPOINT"); otlp != "" {
		shutdown, err := observability.InitOTel(ctx, observability.ObsConfig{
			OTLP:           otlp,
			ServiceName:    "hsgd",
			ServiceVersion: "dev",
			Environment:    os.Getenv("HSG_ENVIRONMENT"),
		})
		if err != nil {
			log.Warn().Err(err).Msg("hsgd: otel init failed, continuing without tracing")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	var pool *pgxpool.Pool
	if cfg.DBURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DBURL)
		if err != nil {
			log.Fatal().Err(err).Msg("hsgd: failed to connect to database")
		}
		defer pool.Close()
	}

	memStore, err := buildMemoryStore(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("hsgd: failed to build memory store")
	}

	vecStore, err := buildVectorStore(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("hsgd: failed to build vector store")
	}

	emb, err := embedder.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("hsgd: failed to build embedder")
	}
	log.Info().Str("backend", emb.Name()).Int("dim", emb.Dimension()).Msg("hsgd: embedder ready")

	factStore, err := buildTemporalStore(ctx, cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("hsgd: failed to build temporal fact store")
	}

	events := buildEventSink(cfg)
	an := buildAnalytics(ctx, cfg)
	gauge := buildGauge(cfg)
	qcache := buildQueryCache(cfg)

	eng := engine.New(memStore, vecStore, emb, cfg)
	eng.Retrieval.Cache = qcache
	eng.Retrieval.Gauge = gauge
	eng.Retrieval.Analytics = an
	eng.Retrieval.Events = events
	eng.Retrieval.KeywordMinLength = configOr(cfg.KeywordMinLength, 3)
	eng.Events = events

	log.Info().Msg("hsgd: temporal fact store ready")
	_ = factStore // exposed to embedding callers directly; hsgd itself has no transport surface

	decaySched := decay.NewScheduler(memStore, gauge, events, an, cfg.DecayRatio, cfg.DecayColdThreshold)
	summarySched := usersummary.NewScheduler(memStore, usersummary.DefaultInterval)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runTicker(ctx, time.Minute, decaySched.RunOnce)
	}()
	go func() {
		defer wg.Done()
		summarySched.Run(ctx)
	}()

	if cfg.AutoReflect {
		reflectSched := engine.NewReflectionScheduler(eng, time.Duration(cfg.ReflectIntervalMinutes)*time.Minute)
		wg.Add(1)
		go func() {
			defer wg.Done()
			reflectSched.Run(ctx)
		}()
	}

	log.Info().Msg("hsgd: ready")
	<-ctx.Done()
	log.Info().Msg("hsgd: shutting down")
	wg.Wait()
}

func configOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func buildMemoryStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (store.MemoryStore, error) {
	if pool == nil {
		return store.NewMemory(), nil
	}
	s := store.NewPostgres(pool)
	if init, ok := s.(initializer); ok {
		if err := init.Init(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func buildTemporalStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (temporal.Store, error) {
	if pool == nil {
		return temporal.NewMemory(), nil
	}
	s := temporal.NewPostgres(pool)
	if init, ok := s.(initializer); ok {
		if err := init.Init(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func buildVectorStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (vectorstore.VectorStore, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendPGVector:
		if pool == nil {
			return nil, errors.New("vector_backend=pgvector requires db_url")
		}
		return vectorstore.NewPGVector(ctx, pool, cfg.VecDim)
	case config.VectorBackendQdrant:
		host, port := splitQdrantAddr(cfg.QdrantAddr)
		return vectorstore.NewQdrant(ctx, host, port, cfg.QdrantAPIKey, "hsg_memories", cfg.VecDim)
	default:
		return vectorstore.NewMemory(), nil
	}
}

// defaultQdrantPort is the client's gRPC port, per qdrant/go-client's own
// default Config.
const defaultQdrantPort = 6334

// splitQdrantAddr splits a "host:port" config value into the host/port pair
// NewQdrant wants. A bare host (no port) falls back to defaultQdrantPort.
func splitQdrantAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultQdrantPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultQdrantPort
	}
	return host, port
}

func buildEventSink(cfg config.Config) eventsink.Sink {
	if len(cfg.KafkaBrokers) == 0 {
		return eventsink.NewNoop()
	}
	topic := cfg.KafkaTopic
	if topic == "" {
		topic = "hsg-events"
	}
	return eventsink.NewKafka(cfg.KafkaBrokers, topic)
}

func buildAnalytics(ctx context.Context, cfg config.Config) analytics.Sink {
	if cfg.ClickHouseDSN == "" {
		return analytics.NewNoop()
	}
	sink, err := analytics.NewClickHouse(ctx, cfg.ClickHouseDSN)
	if err != nil {
		log.Warn().Err(err).Msg("hsgd: clickhouse analytics sink unavailable, falling back to no-op")
		return analytics.NewNoop()
	}
	return sink
}

func buildGauge(cfg config.Config) cache.InFlightGauge {
	if cfg.RedisAddr == "" {
		return cache.NewLocalGauge()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	return cache.NewRedisGauge(client)
}

func buildQueryCache(cfg config.Config) cache.QueryCache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(1024)
	}
	qc, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn().Err(err).Msg("hsgd: redis query cache unavailable, falling back to in-memory")
		return cache.NewMemory(1024)
	}
	return qc
}

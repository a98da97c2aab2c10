// Package config loads the HSG Config struct (§6, §10): environment
// variables with a yaml defaults-file fallback, following this codebase's
// existing config/loader pattern (yaml.v3-decodable defaults, godotenv for
// local .env loading, validation at construction).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hsg/internal/hsg/hsgerr"
)

// EmbeddingProvider is one of the pluggable C3 backends.
type EmbeddingProvider string

const (
	ProviderSynthetic EmbeddingProvider = "synthetic"
	ProviderOpenAI    EmbeddingProvider = "openai"
	ProviderOllama    EmbeddingProvider = "ollama"
	ProviderGemini    EmbeddingProvider = "gemini"
	ProviderAWS       EmbeddingProvider = "aws"
)

// VectorBackend selects the C7/C10 VectorStore implementation.
type VectorBackend string

const (
	VectorBackendMemory   VectorBackend = "memory"
	VectorBackendPGVector VectorBackend = "pgvector"
	VectorBackendQdrant   VectorBackend = "qdrant"
)

// RateLimit mirrors the enumerated `rate_limit_*` options of §6.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// Config is the single configuration surface for an HSG deployment.
type Config struct {
	DBURL string `yaml:"db_url"`

	EmbeddingProvider EmbeddingProvider `yaml:"embedding_provider"`
	VecDim            int               `yaml:"vec_dim"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	OllamaBaseURL   string `yaml:"ollama_base_url"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AWSRegion       string `yaml:"aws_region"`
	AWSProfile      string `yaml:"aws_profile"`

	VectorBackend VectorBackend `yaml:"vector_backend"`
	QdrantAddr    string        `yaml:"qdrant_addr"`
	QdrantAPIKey  string        `yaml:"qdrant_api_key"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	SegSize             int     `yaml:"seg_size"`
	DecayThreads        int     `yaml:"decay_threads"`
	DecayColdThreshold  float64 `yaml:"decay_cold_threshold"`
	DecayRatio          float64 `yaml:"decay_ratio"`
	SummaryMaxLength    int     `yaml:"summary_max_length"`
	KeywordMinLength    int     `yaml:"keyword_min_length"`
	UseSummaryOnly      bool    `yaml:"use_summary_only"`

	AutoReflect            bool `yaml:"auto_reflect"`
	ReflectMinMemories     int  `yaml:"reflect_min_memories"`
	ReflectIntervalMinutes int  `yaml:"reflect_interval_minutes"`

	KafkaBrokers    []string `yaml:"kafka_brokers"`
	KafkaTopic      string   `yaml:"kafka_topic"`
	ClickHouseDSN   string   `yaml:"clickhouse_dsn"`

	RateLimit RateLimit `yaml:"rate_limit"`

	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
}

// Defaults returns the baseline configuration: the synthetic embedder, an
// in-memory vector store, and the §6 enumerated numeric defaults.
func Defaults() Config {
	return Config{
		EmbeddingProvider:  ProviderSynthetic,
		VecDim:             768,
		VectorBackend:      VectorBackendMemory,
		SegSize:            10000,
		DecayThreads:       3,
		DecayColdThreshold: 0.25,
		DecayRatio:         0.03,
		SummaryMaxLength:   1000,
		KeywordMinLength:   3,
		UseSummaryOnly:     false,
		LogLevel:           "info",
		KafkaTopic:         "hsg-events",

		AutoReflect:            true,
		ReflectMinMemories:     20,
		ReflectIntervalMinutes: 10,
	}
}

// LoadDefaultsFile decodes a yaml defaults file at path into a fresh
// Defaults()-seeded Config. A missing file is not an error; callers that
// want strict behavior should stat the path themselves first.
func LoadDefaultsFile(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, hsgerr.Invalid("read config defaults file: " + err.Error())
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, hsgerr.Invalid("parse config defaults file: " + err.Error())
	}
	return cfg, nil
}

// LoadEnv overlays environment variables (optionally sourced from a local
// .env file via godotenv) onto cfg, mirroring the enumerated §6 options.
func LoadEnv(cfg Config, envFile string) Config {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("HSG_DB_URL"); v != "" {
		cfg.DBURL = v
	}
	if v := os.Getenv("HSG_EMBEDDING_PROVIDER"); v != "" {
		cfg.EmbeddingProvider = EmbeddingProvider(strings.ToLower(v))
	}
	if v := envInt("HSG_VEC_DIM"); v != 0 {
		cfg.VecDim = v
	}
	if v := os.Getenv("HSG_OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("HSG_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("HSG_OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("HSG_GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("HSG_ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("HSG_AWS_REGION"); v != "" {
		cfg.AWSRegion = v
	}
	if v := os.Getenv("HSG_VECTOR_BACKEND"); v != "" {
		cfg.VectorBackend = VectorBackend(strings.ToLower(v))
	}
	if v := os.Getenv("HSG_QDRANT_ADDR"); v != "" {
		cfg.QdrantAddr = v
	}
	if v := os.Getenv("HSG_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := envInt("HSG_SEG_SIZE"); v != 0 {
		cfg.SegSize = v
	}
	if v := envInt("HSG_DECAY_THREADS"); v != 0 {
		cfg.DecayThreads = v
	}
	if v := envFloat("HSG_DECAY_COLD_THRESHOLD"); v != 0 {
		cfg.DecayColdThreshold = v
	}
	if v := envFloat("HSG_DECAY_RATIO"); v != 0 {
		cfg.DecayRatio = v
	}
	if v := envInt("HSG_SUMMARY_MAX_LENGTH"); v != 0 {
		cfg.SummaryMaxLength = v
	}
	if v := os.Getenv("HSG_USE_SUMMARY_ONLY"); v != "" {
		cfg.UseSummaryOnly = v == "true" || v == "1"
	}
	if v := os.Getenv("HSG_AUTO_REFLECT"); v != "" {
		cfg.AutoReflect = v == "true" || v == "1"
	}
	if v := envInt("HSG_REFLECT_MIN_MEMORIES"); v != 0 {
		cfg.ReflectMinMemories = v
	}
	if v := envInt("HSG_REFLECT_INTERVAL_MINUTES"); v != 0 {
		cfg.ReflectIntervalMinutes = v
	}
	if v := os.Getenv("HSG_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("HSG_CLICKHOUSE_DSN"); v != "" {
		cfg.ClickHouseDSN = v
	}
	if v := os.Getenv("HSG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HSG_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	return cfg
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envFloat(key string) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return 0
	}
	return v
}

// Validate checks the configuration is internally consistent, returning a
// typed InputInvalid error on the first problem found.
func (c Config) Validate() error {
	switch c.EmbeddingProvider {
	case ProviderSynthetic, ProviderOpenAI, ProviderOllama, ProviderGemini, ProviderAWS:
	default:
		return hsgerr.Invalid("unknown embedding_provider: " + string(c.EmbeddingProvider))
	}
	if c.EmbeddingProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return hsgerr.Invalid("embedding_provider=openai requires openai_api_key")
	}
	if c.EmbeddingProvider == ProviderGemini && c.GeminiAPIKey == "" {
		return hsgerr.Invalid("embedding_provider=gemini requires gemini_api_key")
	}
	if c.VecDim <= 0 {
		return hsgerr.Invalid("vec_dim must be positive")
	}
	if c.SegSize <= 0 {
		return hsgerr.Invalid("seg_size must be positive")
	}
	if c.DecayRatio < 0 || c.DecayRatio > 1 {
		return hsgerr.Invalid("decay_ratio must be in [0,1]")
	}
	switch c.VectorBackend {
	case VectorBackendMemory, VectorBackendPGVector, VectorBackendQdrant:
	default:
		return hsgerr.Invalid("unknown vector_backend: " + string(c.VectorBackend))
	}
	if c.VectorBackend == VectorBackendQdrant && c.QdrantAddr == "" {
		return hsgerr.Invalid("vector_backend=qdrant requires qdrant_addr")
	}
	return nil
}

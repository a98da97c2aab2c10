package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoadDefaultsFileMissingIsNotError(t *testing.T) {
	cfg, err := LoadDefaultsFile("/nonexistent/hsg-defaults.yaml")
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoadDefaultsFileOverlaysYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "hsg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("vec_dim: 256\nembedding_provider: ollama\nollama_base_url: http://localhost:11434\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := LoadDefaultsFile(f.Name())
	require.NoError(t, err)
	require.Equal(t, 256, cfg.VecDim)
	require.Equal(t, ProviderOllama, cfg.EmbeddingProvider)
	require.Equal(t, "http://localhost:11434", cfg.OllamaBaseURL)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HSG_VEC_DIM", "512")
	t.Setenv("HSG_EMBEDDING_PROVIDER", "OpenAI")
	t.Setenv("HSG_DECAY_RATIO", "0.1")

	cfg := LoadEnv(Defaults(), "/nonexistent/.env")
	require.Equal(t, 512, cfg.VecDim)
	require.Equal(t, ProviderOpenAI, cfg.EmbeddingProvider)
	require.Equal(t, 0.1, cfg.DecayRatio)
}

func TestLoadEnvOverridesReflectionSettings(t *testing.T) {
	t.Setenv("HSG_AUTO_REFLECT", "false")
	t.Setenv("HSG_REFLECT_MIN_MEMORIES", "5")
	t.Setenv("HSG_REFLECT_INTERVAL_MINUTES", "15")

	cfg := LoadEnv(Defaults(), "/nonexistent/.env")
	require.False(t, cfg.AutoReflect)
	require.Equal(t, 5, cfg.ReflectMinMemories)
	require.Equal(t, 15, cfg.ReflectIntervalMinutes)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := Defaults()
	cfg.EmbeddingProvider = "nonsense"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresCredentialsForRemoteProviders(t *testing.T) {
	cfg := Defaults()
	cfg.EmbeddingProvider = ProviderOpenAI
	require.Error(t, cfg.Validate())
	cfg.OpenAIAPIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresQdrantAddr(t *testing.T) {
	cfg := Defaults()
	cfg.VectorBackend = VectorBackendQdrant
	require.Error(t, cfg.Validate())
	cfg.QdrantAddr = "localhost:6334"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeDecayRatio(t *testing.T) {
	cfg := Defaults()
	cfg.DecayRatio = 1.5
	require.Error(t, cfg.Validate())
}

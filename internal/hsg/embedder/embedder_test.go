package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hsg/internal/hsg/config"
	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/types"
)

func TestSyntheticEmbedderDeterministic(t *testing.T) {
	e := NewSynthetic(64)
	v1, err := e.EmbedText(context.Background(), "the quick brown fox", sector.Semantic)
	require.NoError(t, err)
	v2, err := e.EmbedText(context.Background(), "the quick brown fox", sector.Semantic)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 64)
}

func TestSyntheticEmbedderSectorSensitive(t *testing.T) {
	e := NewSynthetic(64)
	v1, _ := e.EmbedText(context.Background(), "I feel anxious about the deploy", sector.Emotional)
	v2, _ := e.EmbedText(context.Background(), "I feel anxious about the deploy", sector.Procedural)
	assert.NotEqual(t, v1, v2)
}

func TestSyntheticEmbedderUnitNorm(t *testing.T) {
	e := NewSynthetic(32)
	v, _ := e.EmbedText(context.Background(), "norm check text", sector.Episodic)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 0.01)
}

type fakeLogSink struct {
	inserted []types.EmbedLog
	updated  []string
}

func (f *fakeLogSink) InsertLog(_ context.Context, log types.EmbedLog) error {
	f.inserted = append(f.inserted, log)
	return nil
}

func (f *fakeLogSink) UpdateLog(_ context.Context, id string, status types.EmbedLogStatus, errMsg string) error {
	f.updated = append(f.updated, string(status))
	return nil
}

func TestEmbedMultiSectorAllSucceed(t *testing.T) {
	e := NewSynthetic(16)
	logs := &fakeLogSink{}
	vecs, err := EmbedMultiSector(context.Background(), e, logs, "mem-1", "hello world", []sector.Sector{sector.Episodic, sector.Semantic})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, []string{"completed"}, logs.updated)
}

type cancellingEmbedder struct{}

func (cancellingEmbedder) Name() string      { return "cancelling" }
func (cancellingEmbedder) Dimension() int     { return 16 }
func (cancellingEmbedder) Ping(context.Context) error { return nil }

func (cancellingEmbedder) EmbedText(context.Context, string, sector.Sector) ([]float32, error) {
	return nil, context.Canceled
}

func (cancellingEmbedder) EmbedBatch(context.Context, []string, sector.Sector) ([][]float32, error) {
	return nil, context.Canceled
}

func TestEmbedMultiSectorSurfacesCancellation(t *testing.T) {
	logs := &fakeLogSink{}
	_, err := EmbedMultiSector(context.Background(), cancellingEmbedder{}, logs, "mem-1", "hello world", []sector.Sector{sector.Episodic})
	require.Error(t, err)
	assert.True(t, hsgerr.Is(err, hsgerr.Cancelled))
	assert.Equal(t, []string{"failed"}, logs.updated)
}

func TestFactoryDefaultsToSynthetic(t *testing.T) {
	cfg := config.Defaults()
	emb, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", emb.Name())
}

func TestFactoryUnknownProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.EmbeddingProvider = "nonsense"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestChatFactoryNoKey(t *testing.T) {
	cfg := config.Defaults()
	_, ok := NewChat(cfg)
	assert.False(t, ok)
}

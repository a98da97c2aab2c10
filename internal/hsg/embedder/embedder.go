// Package embedder implements the pluggable C3 embedding backends: the
// mandatory deterministic synthetic default (adapted from this codebase's
// deterministicEmbedder) and the remote-service variants selected by
// configuration. All backends share one capability interface so the
// retrieval and ingest pipelines are agnostic to which is active.
package embedder

import (
	"context"

	"hsg/internal/hsg/sector"
)

// Embedder converts sector-tagged text into a dense vector. It is the Go
// expression of the "capability record" design note: {embed, embed_batch}.
// Chat is optional and only implemented by backends that also expose an LLM
// (used by the user-summary component's richer summarization mode).
type Embedder interface {
	EmbedText(ctx context.Context, text string, sec sector.Sector) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, sec sector.Sector) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// ChatCapable is implemented by backends that can also answer a chat
// completion, used by C12's optional LLM-backed summary mode.
type ChatCapable interface {
	Chat(ctx context.Context, messages []string) (string, error)
}

package embedder

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/retry"
	"hsg/internal/hsg/sector"
)

// geminiEmbedder is the Gemini remote C3 backend, built on the same
// google.golang.org/genai client construction this codebase's internal/llm/google
// client uses.
type geminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGemini constructs the Gemini embedder.
func NewGemini(ctx context.Context, apiKey, model string, dim int) (Embedder, error) {
	if model == "" {
		model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, hsgerr.Unavailable("init gemini client", err)
	}
	return &geminiEmbedder{client: client, model: model, dim: dim}, nil
}

func (e *geminiEmbedder) Name() string   { return "gemini:" + e.model }
func (e *geminiEmbedder) Dimension() int { return e.dim }

func (e *geminiEmbedder) Ping(ctx context.Context) error {
	_, err := e.EmbedText(ctx, "ping", sector.Semantic)
	return err
}

func (e *geminiEmbedder) EmbedText(ctx context.Context, text string, sec sector.Sector) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text}, sec)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *geminiEmbedder) EmbedBatch(ctx context.Context, texts []string, _ sector.Sector) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	var resp *genai.EmbedContentResponse
	err := retry.Do(ctx, 3, retryBase, func(ctx context.Context) error {
		r, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, hsgerr.EmbedFail("gemini embed request failed", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, hsgerr.EmbedFail(fmt.Sprintf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts)), nil)
	}
	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

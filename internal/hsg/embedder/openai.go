package embedder

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/retry"
	"hsg/internal/hsg/sector"
)

// openAIEmbedder is the OpenAI-compatible remote C3 backend, usable against
// OpenAI itself or any server implementing the same /embeddings contract
// (llama.cpp, vLLM, ...), mirroring the option.WithBaseURL override already
// used by this codebase's internal/llm/openai client.
type openAIEmbedder struct {
	client sdk.Client
	model  string
	dim    int
}

// NewOpenAI constructs the OpenAI-compatible embedder. baseURL is optional;
// an empty string uses the default OpenAI endpoint.
func NewOpenAI(apiKey, baseURL, model string, dim int) Embedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openAIEmbedder{client: sdk.NewClient(opts...), model: model, dim: dim}
}

func (e *openAIEmbedder) Name() string  { return "openai:" + e.model }
func (e *openAIEmbedder) Dimension() int { return e.dim }

func (e *openAIEmbedder) Ping(ctx context.Context) error {
	_, err := e.EmbedText(ctx, "ping", sector.Semantic)
	return err
}

func (e *openAIEmbedder) EmbedText(ctx context.Context, text string, sec sector.Sector) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text}, sec)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *openAIEmbedder) EmbedBatch(ctx context.Context, texts []string, _ sector.Sector) ([][]float32, error) {
	var resp *sdk.CreateEmbeddingResponse
	err := retry.Do(ctx, 3, retryBase, func(ctx context.Context) error {
		r, err := e.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
			Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model: sdk.EmbeddingModel(e.model),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("model", e.model).Msg("hsg: openai embed failed")
		return nil, hsgerr.EmbedFail("openai embed request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, hsgerr.EmbedFail(fmt.Sprintf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts)), nil)
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

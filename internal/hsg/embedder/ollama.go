package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/retry"
	"hsg/internal/hsg/sector"
)

// retryBase is the base backoff duration shared by every remote embedder
// backend's retry.Do call.
const retryBase = 200 * time.Millisecond

// ollamaEmbedder reaches Ollama over plain HTTP: no Go SDK for it exists in
// this codebase's dependency set, so it follows the same raw
// net/http.EmbedText pattern used by internal/llm/embeddings.go rather than
// inventing a dependency.
type ollamaEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewOllama constructs the Ollama HTTP embedder.
func NewOllama(baseURL, model string, dim int) Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &ollamaEmbedder{baseURL: baseURL, model: model, dim: dim, client: &http.Client{Timeout: 30 * time.Second}}
}

func (e *ollamaEmbedder) Name() string   { return "ollama:" + e.model }
func (e *ollamaEmbedder) Dimension() int { return e.dim }

func (e *ollamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return hsgerr.Unavailable("ollama ping failed", err)
	}
	defer resp.Body.Close()
	return nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *ollamaEmbedder) EmbedText(ctx context.Context, text string, _ sector.Sector) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, 3, retryBase, func(ctx context.Context) error {
		body, _ := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ollama embed: status %d", resp.StatusCode)
		}
		var out ollamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return err
		}
		vec = out.Embedding
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("model", e.model).Msg("hsg: ollama embed failed")
		return nil, hsgerr.EmbedFail("ollama embed request failed", err)
	}
	return vec, nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string, sec sector.Sector) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := e.EmbedText(ctx, t, sec)
		if err != nil {
			return out, err
		}
		out = append(out, vec)
	}
	return out, nil
}

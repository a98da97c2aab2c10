package embedder

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/retry"
	"hsg/internal/hsg/sector"
)

// bedrockEmbedder calls the Amazon Titan embedding model through
// bedrockruntime.InvokeModel, the same aws-sdk-go-v2 credential-chain
// construction (config.LoadDefaultConfig) this codebase's S3 client uses.
type bedrockEmbedder struct {
	client *bedrockruntime.Client
	model  string
	dim    int
}

// NewBedrock constructs the AWS Bedrock Titan embedder. An empty profile
// uses the default credential chain.
func NewBedrock(ctx context.Context, region, profile, model string, dim int) (Embedder, error) {
	if model == "" {
		model = "amazon.titan-embed-text-v2:0"
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, hsgerr.Unavailable("load aws config", err)
	}
	return &bedrockEmbedder{client: bedrockruntime.NewFromConfig(cfg), model: model, dim: dim}, nil
}

func (e *bedrockEmbedder) Name() string   { return "bedrock:" + e.model }
func (e *bedrockEmbedder) Dimension() int { return e.dim }

func (e *bedrockEmbedder) Ping(ctx context.Context) error {
	_, err := e.EmbedText(ctx, "ping", sector.Semantic)
	return err
}

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *bedrockEmbedder) EmbedText(ctx context.Context, text string, _ sector.Sector) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, hsgerr.Invalid("marshal titan request: " + err.Error())
	}

	var vec []float32
	err = retry.Do(ctx, 3, retryBase, func(ctx context.Context) error {
		out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     &e.model,
			Body:        body,
			ContentType: strPtr("application/json"),
		})
		if err != nil {
			return err
		}
		var resp titanEmbedResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return err
		}
		vec = resp.Embedding
		return nil
	})
	if err != nil {
		return nil, hsgerr.EmbedFail("bedrock titan embed request failed", err)
	}
	return vec, nil
}

func (e *bedrockEmbedder) EmbedBatch(ctx context.Context, texts []string, sec sector.Sector) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, t := range texts {
		vec, err := e.EmbedText(ctx, t, sec)
		if err != nil {
			return out, fmt.Errorf("bedrock embed batch item %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

package embedder

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/retry"
)

// anthropicChat wires Anthropic's SDK as a ChatCapable-only backend: it has
// no embedding endpoint, so it is never registered as the active C3
// Embedder. It backs C12's optional richer, LLM-generated user summary mode.
type anthropicChat struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

const defaultChatMaxTokens int64 = 512

// NewAnthropicChat constructs the Anthropic ChatCapable backend used only by
// the user-summary component's LLM-backed mode.
func NewAnthropicChat(apiKey, model string) ChatCapable {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &anthropicChat{sdk: anthropic.NewClient(opts...), model: model, maxTokens: defaultChatMaxTokens}
}

func (c *anthropicChat) Chat(ctx context.Context, messages []string) (string, error) {
	blocks := make([]anthropic.MessageParam, len(messages))
	for i, m := range messages {
		blocks[i] = anthropic.NewUserMessage(anthropic.NewTextBlock(m))
	}

	var resp *anthropic.Message
	err := retry.Do(ctx, 3, retryBase, func(ctx context.Context) error {
		r, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			Messages:  blocks,
			MaxTokens: c.maxTokens,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", hsgerr.Unavailable("anthropic chat request failed", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// AnthropicTransport implements Transport against the Anthropic messages
// API. Prompt-prefix caching is requested by marking the system block with
// ephemeral cache control; the first call pays a cache write, subsequent
// calls sharing the same prefix pay the discounted cache-read rate.
type AnthropicTransport struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicTransport creates a transport for the given credentials.
// baseURL may be empty for the public endpoint. The SDK's own retries are
// disabled: the Gateway owns retry policy.
func NewAnthropicTransport(apiKey, baseURL, model string) *AnthropicTransport {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicTransport{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// Complete performs one messages API call.
func (t *AnthropicTransport) Complete(ctx context.Context, req Request) (string, Usage, error) {
	system := anthropic.TextBlockParam{Text: req.System}
	if req.CacheSystem {
		system.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}

	message, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       t.model,
		MaxTokens:   req.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System:      []anthropic.TextBlockParam{system},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
			return "", Usage{}, fmt.Errorf("anthropic: %w", ErrRateLimited)
		}
		return "", Usage{}, fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	usage := Usage{
		InputTokens:      message.Usage.InputTokens,
		OutputTokens:     message.Usage.OutputTokens,
		CacheReadTokens:  message.Usage.CacheReadInputTokens,
		CacheWriteTokens: message.Usage.CacheCreationInputTokens,
	}
	return sb.String(), usage, nil
}

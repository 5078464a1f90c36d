package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// AnthropicConfig configures the Anthropic messages backend.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// AnthropicProvider streams messages from the Anthropic API. Safe for
// concurrent use.
type AnthropicProvider struct {
	client anthropic.Client
}

var _ Provider = (*AnthropicProvider)(nil)

// defaultAnthropicMaxTokens applies when the candidate declares no output
// cap; the messages API requires an explicit value.
const defaultAnthropicMaxTokens = 4096

// NewAnthropicProvider creates the provider.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		options = append(options, option.WithBaseURL(base))
	}
	return &AnthropicProvider{client: anthropic.NewClient(options...)}
}

// Name returns the provider tag.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Stream sends a streaming messages request.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request) (<-chan *models.StreamChunk, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, NewError("anthropic", "", errors.New("model is required"))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	chunks := make(chan *models.StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		usage := &models.TokenUsage{Model: req.Model}
		for stream.Next() {
			if ctx.Err() != nil {
				send(ctx, chunks, &models.StreamChunk{Error: ctx.Err(), Done: true})
				return
			}

			event := stream.Current()
			switch event.Type {
			case "message_start":
				messageStart := event.AsMessageStart()
				usage.PromptTokens = int(messageStart.Message.Usage.InputTokens)
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				if delta.Type == "text_delta" && delta.Text != "" {
					if !send(ctx, chunks, &models.StreamChunk{Text: delta.Text}) {
						return
					}
				}
			case "message_delta":
				messageDelta := event.AsMessageDelta()
				if messageDelta.Usage.OutputTokens > 0 {
					usage.CompletionTokens = int(messageDelta.Usage.OutputTokens)
				}
				if messageDelta.Delta.StopReason != "" {
					usage.FinishReason = string(messageDelta.Delta.StopReason)
				}
			case "message_stop":
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				send(ctx, chunks, &models.StreamChunk{Done: true, Usage: usage})
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, chunks, &models.StreamChunk{Error: NewError("anthropic", req.Model, err), Done: true})
			return
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		send(ctx, chunks, &models.StreamChunk{Done: true, Usage: usage})
	}()
	return chunks, nil
}

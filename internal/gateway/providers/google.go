package providers

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// GoogleConfig configures the Gemini backend.
type GoogleConfig struct {
	APIKey string
}

// GoogleProvider streams generative content from the Gemini API using the
// Google Gen AI SDK. Safe for concurrent use.
type GoogleProvider struct {
	client *genai.Client
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider creates the provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError("google", "", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Name returns the provider tag.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Stream sends a streaming generate-content request.
func (p *GoogleProvider) Stream(ctx context.Context, req *Request) (<-chan *models.StreamChunk, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, NewError("google", "", errors.New("model is required"))
	}

	config := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Prompt}}},
	}

	chunks := make(chan *models.StreamChunk)
	go func() {
		defer close(chunks)

		usage := &models.TokenUsage{Model: req.Model}
		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if ctx.Err() != nil {
				send(ctx, chunks, &models.StreamChunk{Error: ctx.Err(), Done: true})
				return
			}
			if err != nil {
				send(ctx, chunks, &models.StreamChunk{Error: NewError("google", req.Model, err), Done: true})
				return
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
				usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil {
					continue
				}
				if candidate.FinishReason != "" {
					usage.FinishReason = string(candidate.FinishReason)
				}
				if candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part != nil && part.Text != "" {
						if !send(ctx, chunks, &models.StreamChunk{Text: part.Text}) {
							return
						}
					}
				}
			}
		}
		send(ctx, chunks, &models.StreamChunk{Done: true, Usage: usage})
	}()
	return chunks, nil
}

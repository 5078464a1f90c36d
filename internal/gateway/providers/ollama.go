package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// OllamaConfig configures a locally hosted ollama backend.
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
}

// OllamaProvider streams generations from ollama over NDJSON. The primary
// endpoint is /api/generate; servers that only expose the chat surface are
// retried via /api/chat. The provider also implements the pull and warm
// calls used by the gateway warmer.
type OllamaProvider struct {
	client  *http.Client
	baseURL string
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates the provider; an empty BaseURL targets the
// default local daemon.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name returns the provider tag.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

type ollamaGenerateRequest struct {
	Model     string         `json:"model"`
	System    string         `json:"system,omitempty"`
	Prompt    string         `json:"prompt"`
	Stream    bool           `json:"stream"`
	Format    string         `json:"format,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	Error           string `json:"error"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	DoneReason      string             `json:"done_reason"`
	Error           string             `json:"error"`
	PromptEvalCount int                `json:"prompt_eval_count"`
	EvalCount       int                `json:"eval_count"`
}

// Stream sends a streaming generate request, falling back to the chat
// endpoint when generate is not served.
func (p *OllamaProvider) Stream(ctx context.Context, req *Request) (<-chan *models.StreamChunk, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, NewError("ollama", "", errors.New("model is required"))
	}

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	format := ""
	if req.JSONMode {
		format = "json"
	}

	payload := ollamaGenerateRequest{
		Model:   req.Model,
		System:  req.System,
		Prompt:  req.Prompt,
		Stream:  true,
		Format:  format,
		Options: options,
	}
	body, err := p.post(ctx, "/api/generate", payload)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Status == http.StatusNotFound {
			return p.streamChat(ctx, req, format, options)
		}
		return nil, err
	}

	chunks := make(chan *models.StreamChunk)
	go p.scanGenerate(ctx, body, chunks, req.Model)
	return chunks, nil
}

func (p *OllamaProvider) streamChat(ctx context.Context, req *Request, format string, options map[string]any) (<-chan *models.StreamChunk, error) {
	messages := make([]ollamaChatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: req.Prompt})

	body, err := p.post(ctx, "/api/chat", ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		Format:   format,
		Options:  options,
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *models.StreamChunk)
	go p.scanChat(ctx, body, chunks, req.Model)
	return chunks, nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError("ollama", "", fmt.Errorf("marshal request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, NewError("ollama", "", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewError("ollama", "", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, NewError("ollama", "",
			fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))).
			WithStatus(resp.StatusCode)
	}
	return resp.Body, nil
}

func (p *OllamaProvider) scanGenerate(ctx context.Context, body io.ReadCloser, out chan<- *models.StreamChunk, model string) {
	defer close(out)
	defer body.Close()

	scanner := newLineScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			send(ctx, out, &models.StreamChunk{Error: ctx.Err(), Done: true})
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp ollamaGenerateResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			send(ctx, out, &models.StreamChunk{Error: NewError("ollama", model, fmt.Errorf("decode response: %w", err)), Done: true})
			return
		}
		if resp.Error != "" {
			send(ctx, out, &models.StreamChunk{Error: NewError("ollama", model, errors.New(resp.Error)), Done: true})
			return
		}
		if resp.Response != "" {
			if !send(ctx, out, &models.StreamChunk{Text: resp.Response}) {
				return
			}
		}
		if resp.Done {
			send(ctx, out, &models.StreamChunk{Done: true, Usage: &models.TokenUsage{
				Model:            model,
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				FinishReason:     resp.DoneReason,
			}})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, out, &models.StreamChunk{Error: NewError("ollama", model, err), Done: true})
	}
}

func (p *OllamaProvider) scanChat(ctx context.Context, body io.ReadCloser, out chan<- *models.StreamChunk, model string) {
	defer close(out)
	defer body.Close()

	scanner := newLineScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			send(ctx, out, &models.StreamChunk{Error: ctx.Err(), Done: true})
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			send(ctx, out, &models.StreamChunk{Error: NewError("ollama", model, fmt.Errorf("decode response: %w", err)), Done: true})
			return
		}
		if resp.Error != "" {
			send(ctx, out, &models.StreamChunk{Error: NewError("ollama", model, errors.New(resp.Error)), Done: true})
			return
		}
		if resp.Message != nil && resp.Message.Content != "" {
			if !send(ctx, out, &models.StreamChunk{Text: resp.Message.Content}) {
				return
			}
		}
		if resp.Done {
			send(ctx, out, &models.StreamChunk{Done: true, Usage: &models.TokenUsage{
				Model:            model,
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				FinishReason:     resp.DoneReason,
			}})
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(ctx, out, &models.StreamChunk{Error: NewError("ollama", model, err), Done: true})
	}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64<<10)
	scanner.Buffer(buf, 1<<20)
	return scanner
}

// Warm issues a no-op generate that keeps model loaded for keepAlive.
func (p *OllamaProvider) Warm(ctx context.Context, model string, keepAlive time.Duration) error {
	body, err := p.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:     model,
		Prompt:    "",
		Stream:    false,
		KeepAlive: fmt.Sprintf("%ds", int(keepAlive.Seconds())),
	})
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = io.Copy(io.Discard, body)
	return err
}

// Pull downloads model onto the host, blocking until the daemon reports
// success. Used by the startup preloader for pool-tagged models.
func (p *OllamaProvider) Pull(ctx context.Context, model string) error {
	body, err := p.post(ctx, "/api/pull", map[string]any{"model": model, "stream": true})
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := newLineScanner(body)
	for scanner.Scan() {
		var status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := json.Unmarshal([]byte(line), &status); err != nil {
			continue
		}
		if status.Error != "" {
			return NewError("ollama", model, errors.New(status.Error))
		}
		if status.Status == "success" {
			return nil
		}
	}
	return scanner.Err()
}

// Show queries model metadata, confirming the model exists on the host.
func (p *OllamaProvider) Show(ctx context.Context, model string) error {
	body, err := p.post(ctx, "/api/show", map[string]any{"model": model})
	if err != nil {
		return err
	}
	defer body.Close()
	_, err = io.Copy(io.Discard, body)
	return err
}

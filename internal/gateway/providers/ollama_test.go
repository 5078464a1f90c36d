package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// An endless NDJSON generate stream; the handler exits when the client
// hangs up.
func endlessGenerateServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer does not support flushing")
			return
		}
		for {
			if _, err := fmt.Fprintln(w, `{"response":"chunk","done":false}`); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaStreamClosesOnCancel(t *testing.T) {
	server := endlessGenerateServer(t)
	provider := NewOllamaProvider(OllamaConfig{BaseURL: server.URL})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks, err := provider.Stream(ctx, &Request{Model: "m", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	chunk, ok := <-chunks
	if !ok || chunk.Text == "" {
		t.Fatalf("expected a text chunk before cancelling, got %+v ok=%v", chunk, ok)
	}

	// Cancel with no reader attached. The producer must bail out instead of
	// parking on the channel send, so the channel is closed by the time a
	// reader comes back.
	cancel()
	time.Sleep(100 * time.Millisecond)

	select {
	case chunk, ok := <-chunks:
		if ok {
			t.Fatalf("stream still producing after cancellation: %+v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream channel not closed after cancellation")
	}
}

func TestOllamaStreamCompletes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"hello","done":false}`)
		fmt.Fprintln(w, `{"response":" world","done":false}`)
		fmt.Fprintln(w, `{"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`)
	}))
	defer server.Close()

	provider := NewOllamaProvider(OllamaConfig{BaseURL: server.URL})
	chunks, err := provider.Stream(context.Background(), &Request{Model: "m", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	text := ""
	var usage int
	for chunk := range chunks {
		if chunk.Error != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Error)
		}
		text += chunk.Text
		if chunk.Done && chunk.Usage != nil {
			usage = chunk.Usage.TotalTokens
		}
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
	if usage != 5 {
		t.Errorf("total tokens = %d, want 5", usage)
	}
}

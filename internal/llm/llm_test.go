package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockProvider is a test provider that records calls and returns canned
// responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) Stream(ctx context.Context, req CompletionRequest, fn StreamFunc) error {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return err
	}
	return fn(resp.Content)
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}

		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.System != "be terse" {
			t.Errorf("system prompt = %q, want folded system message", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want single user message", req.Messages)
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "hello back"}},
			Model:      req.Model,
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 5, OutputTokens: 3},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-sonnet-4-20250514")
	p.SetBaseURL(srv.URL)

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be terse"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello back" {
		t.Errorf("content = %q, want hello back", resp.Content)
	}
	if resp.InputTokens != 5 || resp.OutputTokens != 3 {
		t.Errorf("usage = %d/%d, want 5/3", resp.InputTokens, resp.OutputTokens)
	}
	if resp.FinishReason != "end_turn" {
		t.Errorf("finish reason = %q, want end_turn", resp.FinishReason)
	}
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "invalid_request_error", "message": "bad model"},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "nope")
	p.SetBaseURL(srv.URL)

	_, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Errorf("error = %v, want API error with message", err)
	}
}

func TestAnthropicStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream flag not set on wire request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, "event: content_block_delta\n")
			fmt.Fprintf(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":%q}}`+"\n\n", chunk)
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-sonnet-4-20250514")
	p.SetBaseURL(srv.URL)

	var got strings.Builder
	err := p.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got.String() != "Hello world" {
		t.Errorf("streamed content = %q, want Hello world", got.String())
	}
}

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		var req ollamaChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("Complete should not request streaming")
		}

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "pong"},
			Model:           req.Model,
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 2,
			EvalCount:       1,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "ping"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "pong" || resp.Model != "llama3" {
		t.Errorf("response = %+v", resp)
	}
}

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		for _, chunk := range []string{"a", "b", "c"} {
			enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: chunk}})
		}
		enc.Encode(ollamaChatResponse{Done: true, DoneReason: "stop"})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")

	var got strings.Builder
	err := p.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(delta string) error {
		got.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got.String() != "abc" {
		t.Errorf("streamed content = %q, want abc", got.String())
	}
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		for i := 0; i < 100; i++ {
			enc.Encode(ollamaChatResponse{Message: ollamaMessage{Content: "x"}})
		}
		enc.Encode(ollamaChatResponse{Done: true})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")

	calls := 0
	err := p.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}, func(string) error {
		calls++
		return fmt.Errorf("stop now")
	})
	if err == nil || !strings.Contains(err.Error(), "stop now") {
		t.Errorf("error = %v, want callback error", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times after aborting, want 1", calls)
	}
}

func TestNewProviderUnsupported(t *testing.T) {
	if _, err := NewProvider("cohere", "x"); err == nil {
		t.Error("unsupported provider type should fail")
	}
}

func TestNewProviderOllamaNeedsNoKey(t *testing.T) {
	p, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("NewProvider(ollama): %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name = %q, want ollama", p.Name())
	}
}

func TestRateLimitedProviderDelegates(t *testing.T) {
	mock := NewMockProvider("mock")
	limited := NewRateLimitedProvider(mock, 600)

	resp, err := limited.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("content = %q", resp.Content)
	}
	if limited.Name() != "mock" {
		t.Errorf("Name = %q, want mock", limited.Name())
	}
}

func TestRateLimitedProviderBlocksWhenExhausted(t *testing.T) {
	mock := NewMockProvider("mock")
	limited := NewRateLimitedProvider(mock, 1)

	if _, err := limited.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("first Complete: %v", err)
	}

	// Bucket is empty; a canceled context must unblock the waiter.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := limited.Complete(ctx, CompletionRequest{}); err == nil {
		t.Error("Complete with exhausted bucket and expiring context should fail")
	}
	if mock.CallCount() != 1 {
		t.Errorf("provider called %d times, want 1", mock.CallCount())
	}
}

func TestProvidersConfigureNetworkTimeouts(t *testing.T) {
	clients := map[string]*http.Client{
		"anthropic": NewAnthropicProvider("key", "model").client,
		"ollama":    NewOllamaProvider("http://localhost:11434", "model").client,
	}

	for name, client := range clients {
		transport, ok := client.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("%s: client has no transport with timeouts", name)
		}
		if transport.ResponseHeaderTimeout <= 0 {
			t.Errorf("%s: response header timeout not set", name)
		}
		if transport.TLSHandshakeTimeout <= 0 {
			t.Errorf("%s: TLS handshake timeout not set", name)
		}
		// A whole-request timeout would cut off long streaming responses.
		if client.Timeout != 0 {
			t.Errorf("%s: unexpected whole-request timeout %v", name, client.Timeout)
		}
	}
}

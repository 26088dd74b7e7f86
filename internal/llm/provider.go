package llm

import (
	"context"
	"net"
	"net/http"
	"time"
)

// StreamFunc receives each content delta as the provider produces it.
// Returning an error aborts the stream.
type StreamFunc func(delta string) error

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Stream sends a completion request and delivers the response
	// incrementally through fn.
	Stream(ctx context.Context, req CompletionRequest, fn StreamFunc) error
	// Name returns the name of this provider.
	Name() string
}

// newHTTPClient returns a client with connection and response-header
// timeouts but no whole-request deadline, which would cut off long
// streaming responses.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		},
	}
}

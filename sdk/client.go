// Package hireloop provides the Hireloop interview SDK for Go.
//
// The SDK covers the candidate side of an interview: resolving an interview
// ticket into session metadata and driving the live Q&A session over a
// websocket.
package hireloop

import (
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultBaseURL = "https://api.hireloop.io"

// Client is the main entry point for the SDK.
type Client struct {
	Tickets    *TicketsService
	Interviews *InterviewsService

	// Internal
	baseURL      string
	httpClient   httpDoer
	logger       *slog.Logger
	tracer       trace.Tracer
	maxRetries   int
	retryBackoff time.Duration
}

// NewClient creates a new client. The base URL defaults to the production
// API and can be overridden with WithBaseURL or HIRELOOP_BASE_URL.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		httpClient:   newDefaultHTTPClient(),
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("hireloop"),
		maxRetries:   2,
		retryBackoff: 500 * time.Millisecond,
	}
	if env := os.Getenv("HIRELOOP_BASE_URL"); env != "" {
		c.baseURL = env
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Tickets = &TicketsService{client: c}
	c.Interviews = &InterviewsService{client: c}
	return c
}

package hireloop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hireloop/interview-go/pkg/core"
)

// TicketsService resolves interview tickets into session metadata.
type TicketsService struct {
	client *Client
}

// Ticket is the resolved metadata for one authorized interview attempt. The
// token itself stays opaque; these fields exist for display only.
type Ticket struct {
	Modality  string `json:"modality"`
	Candidate string `json:"candidate_name"`
	JobTitle  string `json:"job_title"`
	Company   string `json:"company_name"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Resolve fetches the metadata behind a ticket token. A 404 or 410 means
// the ticket is invalid, expired or spent and comes back as a terminal
// connection_rejected error.
func (s *TicketsService) Resolve(ctx context.Context, token string) (*Ticket, error) {
	if strings.TrimSpace(token) == "" {
		return nil, core.NewInvalidRequestError("ticket token is empty")
	}

	ctx, span := s.client.tracer.Start(ctx, "tickets.resolve",
		trace.WithAttributes(attribute.String("hireloop.base_url", s.client.baseURL)))
	defer span.End()

	var ticket Ticket
	path := "/v1/interview-tickets/" + url.PathEscape(token)
	if err := s.client.doGET(ctx, path, &ticket); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &ticket, nil
}

func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

func (c *Client) doGET(ctx context.Context, path string, out any) error {
	attempt := 0
	backoff := c.retryBackoff

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL(path), nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if shouldRetry(ctx, attempt, c.maxRetries) {
				time.Sleep(backoff)
				backoff = nextBackoff(backoff)
				attempt++
				continue
			}
			return &TransportError{Op: http.MethodGet, URL: c.apiURL(path), Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("read response: %w", readErr)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			apiErr := parseAPIError(resp.StatusCode, respBody)
			if shouldRetryAPIError(ctx, attempt, c.maxRetries, resp.StatusCode) {
				time.Sleep(backoff)
				backoff = nextBackoff(backoff)
				attempt++
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
}

func parseAPIError(status int, body []byte) error {
	message := ""
	var resp apiErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		message = resp.Error.Message
	} else {
		message = strings.TrimSpace(string(body))
	}

	switch status {
	case http.StatusNotFound, http.StatusGone:
		if message == "" {
			message = "interview ticket is invalid or expired"
		}
		return core.NewConnectionRejectedError(message)
	default:
		if message == "" {
			message = fmt.Sprintf("api error (%d)", status)
		}
		return core.NewServerError(message)
	}
}

func shouldRetryAPIError(ctx context.Context, attempt, maxRetries, status int) bool {
	if !shouldRetry(ctx, attempt, maxRetries) {
		return false
	}
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

func shouldRetry(ctx context.Context, attempt, maxRetries int) bool {
	if ctx.Err() != nil {
		return false
	}
	return attempt < maxRetries
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next == 0 {
		return time.Second
	}
	return next
}

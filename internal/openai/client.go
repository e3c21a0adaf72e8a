// Package openai implements the speech, dialogue and narration services over
// the OpenAI HTTP API. Every call runs through a per-service circuit breaker
// and is attempted exactly once.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
	"github.com/GriffinCanCode/voicerelay/internal/metrics"
	"github.com/GriffinCanCode/voicerelay/internal/resilience"
	"github.com/GriffinCanCode/voicerelay/internal/trace"
)

// Service names, shared by breakers, metrics and health checks.
const (
	ServiceSpeech    = "speech"
	ServiceDialogue  = "dialogue"
	ServiceNarration = "narration"
)

// Services lists every upstream the client guards.
var Services = []string{ServiceSpeech, ServiceDialogue, ServiceNarration}

// Client talks to the OpenAI API.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	models       Models
	systemPrompt string
	breakerCfg   resilience.Config
	hooks        []resilience.Hook
	metrics      *metrics.Metrics

	breakers map[string]*resilience.Breaker
}

// New creates a client. apiKey must be non-empty; callers validate config first.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{},
		models:       DefaultModels(),
		systemPrompt: DefaultSystemPrompt,
		breakerCfg:   resilience.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breakers = make(map[string]*resilience.Breaker, len(Services))
	for _, name := range Services {
		b := resilience.New(name, c.breakerCfg)
		for _, h := range c.hooks {
			b.WithHook(h)
		}
		c.breakers[name] = b
	}
	return c
}

// Breaker returns the breaker guarding service, or nil.
func (c *Client) Breaker(service string) *resilience.Breaker { return c.breakers[service] }

// call runs fn through the service's breaker. Upstream faults (network, 5xx,
// 429) count against the breaker; request faults (other 4xx, bad payloads)
// are returned without tripping it.
func call[T any](ctx context.Context, c *Client, service string, failCode errors.Code, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := trace.StartSpan(ctx, "openai."+service)
	defer span.End()
	start := time.Now()

	var requestErr error
	res, err := resilience.ExecuteWithResult(c.breakers[service], func() (T, error) {
		v, err := fn(ctx)
		if err != nil && !countsAgainstBreaker(err) {
			requestErr = err
			var zero T
			return zero, nil
		}
		return v, err
	})
	if err == nil {
		err = requestErr
	}

	switch {
	case err == nil:
	case resilience.IsRejected(err):
		err = errors.Wrapf(err, errors.CodeUpstreamUnavailable, "The %s service is temporarily unavailable.", service)
	default:
		if _, ok := errors.As(err); !ok {
			err = errors.Wrap(err, failCode, failureMessage(failCode))
		}
	}

	if c.metrics != nil {
		c.metrics.RecordUpstream(service, err, time.Since(start))
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		trace.Logger(ctx).Warn("upstream call failed", "service", service, "error", err)
		var zero T
		return zero, err
	}
	return res, nil
}

func failureMessage(code errors.Code) string {
	switch code {
	case errors.CodeTranscriptionFailed:
		return "Transcription failed."
	case errors.CodeDialogueFailed:
		return "Failed to generate a reply."
	case errors.CodeSynthesisFailed:
		return "Failed to generate audio."
	}
	return "Upstream request failed."
}

// statusError is a non-2xx upstream response.
type statusError struct {
	Status  int
	Type    string
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai: HTTP %d", e.Status)
	}
	return fmt.Sprintf("openai: HTTP %d: %s", e.Status, e.Message)
}

func countsAgainstBreaker(err error) bool {
	var se *statusError
	if stderrors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	if _, ok := errors.As(err); ok {
		// Our own AppErrors describe bad responses, not an unhealthy upstream.
		return false
	}
	return true
}

// post sends body to path and returns the response body of a 2xx reply.
func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if tc, ok := trace.FromContext(ctx); ok {
		req.Header.Set(trace.TraceIDKey, tc.TraceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, parseError(resp)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return b, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(body))
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &statusError{Status: resp.StatusCode}

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		se.Message = payload.Error.Message
		se.Type = payload.Error.Type
	} else {
		se.Message = strings.TrimSpace(string(body))
	}
	return se
}

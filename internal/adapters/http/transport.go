// Package http implements the batch transport over SharePoint REST and Microsoft Graph.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/bft-labs/spbatch/internal/domain"
	"github.com/bft-labs/spbatch/internal/ports"
)

const (
	restBatchPath  = "/_api/$batch"
	graphBatchPath = "/$batch"

	// DefaultGraphURL is the Graph v1.0 service root.
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"
)

// Config holds the endpoints and retry policy of the transport.
type Config struct {
	// SiteURL is the SharePoint site REST calls are relative to.
	SiteURL string

	// GraphURL is the Graph service root Graph calls are relative to.
	GraphURL string

	// MaxRetries bounds retries of throttled batch requests.
	MaxRetries int

	// RetryInitial and RetryMax bound the backoff used when the server
	// does not send Retry-After.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Transport implements ports.Transport using HTTP.
type Transport struct {
	cfg    Config
	client ports.HTTPClient
	logger ports.Logger
	tokens map[domain.Protocol]oauth2.TokenSource

	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Transport.
type Option func(*Transport)

// WithTokenSource authenticates requests on protocol p with bearer tokens from ts.
func WithTokenSource(p domain.Protocol, ts oauth2.TokenSource) Option {
	return func(t *Transport) {
		if ts != nil {
			t.tokens[p] = ts
		}
	}
}

// WithTokenSources installs one token source per protocol.
func WithTokenSources(sources map[domain.Protocol]oauth2.TokenSource) Option {
	return func(t *Transport) {
		for p, ts := range sources {
			if ts != nil {
				t.tokens[p] = ts
			}
		}
	}
}

func withIDs(fn func() string) Option {
	return func(t *Transport) { t.newID = fn }
}

func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(t *Transport) { t.sleep = fn }
}

// NewTransport creates a new HTTP transport.
func NewTransport(cfg Config, client ports.HTTPClient, logger ports.Logger, opts ...Option) *Transport {
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	t := &Transport{
		cfg:    cfg,
		client: client,
		logger: logger,
		tokens: make(map[domain.Protocol]oauth2.TokenSource),
		newID:  func() string { return uuid.NewString() },
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Available implements ports.Availability.
func (t *Transport) Available() bool {
	return t.client != nil && (t.cfg.SiteURL != "" || t.cfg.GraphURL != "")
}

// Send implements ports.Transport.
func (t *Transport) Send(ctx context.Context, protocol domain.Protocol, calls []domain.Call) ([]ports.Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	for i, c := range calls {
		if c.Protocol() != protocol {
			return nil, fmt.Errorf("call %d is %s, sub-batch is %s", i, c.Protocol(), protocol)
		}
	}

	switch protocol {
	case domain.ProtocolREST:
		return t.sendREST(ctx, calls)
	case domain.ProtocolGraph:
		return t.sendGraph(ctx, calls)
	default:
		return nil, fmt.Errorf("unsupported protocol %s", protocol)
	}
}

func (t *Transport) sendREST(ctx context.Context, calls []domain.Call) ([]ports.Result, error) {
	if t.cfg.SiteURL == "" {
		return nil, fmt.Errorf("no site url configured")
	}
	boundary := "batch_" + t.newID()
	body, err := encodeREST(t.cfg.SiteURL, boundary, calls, t.newID)
	if err != nil {
		return nil, err
	}

	resp, err := t.post(ctx, domain.ProtocolREST, joinURL(t.cfg.SiteURL, restBatchPath), "multipart/mixed; boundary="+boundary, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeREST(resp.Header.Get("Content-Type"), resp.Body)
}

// sendGraph posts calls in chunks of graphBatchLimit. A failed chunk fails only
// its own results; the error is returned for the whole sub-batch when every
// chunk failed.
func (t *Transport) sendGraph(ctx context.Context, calls []domain.Call) ([]ports.Result, error) {
	results := make([]ports.Result, 0, len(calls))
	var firstErr error
	chunks, failed := 0, 0
	for start := 0; start < len(calls); start += graphBatchLimit {
		chunk := calls[start:min(start+graphBatchLimit, len(calls))]
		chunks++
		chunkResults, err := t.sendGraphChunk(ctx, chunk)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			failed++
			err = fmt.Errorf("graph batch requests %d-%d: %w", start, start+len(chunk)-1, err)
			for range chunk {
				results = append(results, ports.Result{Err: err})
			}
			continue
		}
		results = append(results, chunkResults...)
	}
	if failed > 0 && failed == chunks {
		return nil, firstErr
	}
	return results, nil
}

func (t *Transport) sendGraphChunk(ctx context.Context, chunk []domain.Call) ([]ports.Result, error) {
	body, err := encodeGraph(chunk)
	if err != nil {
		return nil, err
	}
	resp, err := t.post(ctx, domain.ProtocolGraph, joinURL(t.cfg.GraphURL, graphBatchPath), "application/json", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeGraph(resp.Body, len(chunk))
}

// post sends one batch request. Throttled requests (429, 503) were not processed
// by the server and are retried up to MaxRetries times; any other non-2xx status
// is returned as an error.
func (t *Transport) post(ctx context.Context, protocol domain.Protocol, url, contentType string, body []byte) (*http.Response, error) {
	bo := newBackoff(t.cfg.RetryInitial, t.cfg.RetryMax)
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if ts := t.tokens[protocol]; ts != nil {
			tok, err := ts.Token()
			if err != nil {
				return nil, fmt.Errorf("acquire %s token: %w", protocol, err)
			}
			tok.SetAuthHeader(req)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		if resp.StatusCode/100 == 2 {
			return resp, nil
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		throttled := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable
		if !throttled || attempt >= t.cfg.MaxRetries {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
		}

		wait := parseRetryAfter(resp.Header.Get("Retry-After"), t.now())
		if wait <= 0 {
			wait = bo.Next()
		}
		t.logger.Warn("batch request throttled",
			ports.Stringer("protocol", protocol),
			ports.Int("status", resp.StatusCode),
			ports.Int("attempt", attempt+1),
			ports.Duration("wait", wait),
		)
		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

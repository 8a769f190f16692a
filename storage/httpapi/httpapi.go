// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpapi provides a storage engine which forwards samples to a
// remote time series store over its HTTP API. Requests are retried with
// backoff and sent through a circuit breaker so a struggling backend
// does not tie up every request serving goroutine behind it.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/meterflow/meterflow/storage"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
)

type options struct {
	logHandler slog.Handler
	retryMax   int
	tripCount  uint32
	timeout    time.Duration
}

// Option configures the engine.
type Option func(*options)

// LogHandler sets the slog.Handler used for breaker state changes
// and retry noise. Defaults to discarding everything.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// RetryMax sets the maximum number of retries per request. Default 3.
func RetryMax(n int) Option {
	return func(o *options) {
		o.retryMax = n
	}
}

// TripCount sets the number of consecutive failures required to trip
// the circuit. Default 5.
func TripCount(n uint32) Option {
	return func(o *options) {
		if n == 0 {
			return
		}
		o.tripCount = n
	}
}

// BreakerTimeout sets how long the circuit stays open before allowing
// a probe request through. Default 30s.
func BreakerTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Engine implements storage.Engine for "http" and "https" connection URLs.
type Engine struct {
	opts options
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	o := options{
		logHandler: discardHandler{},
		retryMax:   3,
		tripCount:  5,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{opts: o}
}

// Register adds the engine to the registry for both http and https schemes.
func (e *Engine) Register(r *storage.Registry) {
	r.Register("http", e)
	r.Register("https", e)
}

// Connect implements the storage.Engine interface.
func (e *Engine) Connect(ctx context.Context, cfg storage.Config) (storage.Connection, error) {
	base, err := url.Parse(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("invalid remote store url: %w", err)
	}

	log := slog.New(e.opts.logHandler)

	client := retryablehttp.NewClient()
	client.RetryMax = e.opts.retryMax
	client.Logger = nil

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "storage.httpapi",
		Timeout: e.opts.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= e.opts.tripCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &conn{
		base:    base,
		log:     log,
		client:  client,
		breaker: breaker,
	}, nil
}

type conn struct {
	base    *url.URL
	log     *slog.Logger
	client  *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
}

// StatusError occurs when the remote store responds with an error status.
type StatusError struct {
	Code int
}

// Error implements the [builtin.error] interface.
func (e StatusError) Error() string {
	return fmt.Sprintf("remote store responded with status code: %d", e.Code)
}

// Ingest implements the storage.Connection interface.
func (c *conn) Ingest(ctx context.Context, samples []storage.Sample) error {
	return c.do(ctx, http.MethodPost, "/v1/samples", nil, map[string]any{
		"samples": samples,
	})
}

// Upgrade implements the storage.Connection interface.
func (c *conn) Upgrade(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/schema/upgrade", nil, nil)
}

// PurgeExpired implements the storage.Connection interface.
func (c *conn) PurgeExpired(ctx context.Context, ttl time.Duration) error {
	q := url.Values{}
	q.Set("ttl", strconv.FormatInt(int64(ttl.Seconds()), 10))
	return c.do(ctx, http.MethodDelete, "/v1/samples", q, nil)
}

// Close implements the storage.Connection interface.
func (c *conn) Close() error {
	c.client.HTTPClient.CloseIdleConnections()
	return nil
}

func (c *conn) do(ctx context.Context, method, path string, query url.Values, body any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	_, err := c.breaker.Execute(func() (any, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			return nil, StatusError{Code: resp.StatusCode}
		}
		return nil, nil
	})
	return err
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package storage manages the pluggable time series backends. Engines
// register themselves under a name and are selected by matching the
// URL scheme of the configured connection string against the registry.
// The dispatch pipeline only ever sees the Connection interface; the
// capabilities behind it are opaque to the core.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Sample is one telemetry measurement handed to a backend.
type Sample struct {
	Name      string            `config:"name"`
	Value     float64           `config:"value"`
	Labels    map[string]string `config:"labels"`
	Timestamp time.Time         `config:"timestamp"`
}

// Config carries the backend connection settings.
type Config struct {
	// Connection is a URL whose scheme selects the engine,
	// e.g. "memory://" or "https://tsdb.internal:8086/api".
	Connection string `config:"connection"`

	// TimeToLive is how long samples are kept. Values <= 0 mean forever.
	TimeToLive time.Duration `config:"time_to_live"`
}

// Connection is an open handle to a backend. A Connection is attached
// to a request before its controller action runs and released when the
// response is emitted; it is never shared across concurrent requests.
type Connection interface {
	// Ingest stores a batch of samples.
	Ingest(ctx context.Context, samples []Sample) error

	// Upgrade migrates the backend schema to the current version.
	Upgrade(ctx context.Context) error

	// PurgeExpired removes samples older than ttl.
	PurgeExpired(ctx context.Context, ttl time.Duration) error

	Close() error
}

// Engine produces connections for one backend kind.
type Engine interface {
	Connect(ctx context.Context, cfg Config) (Connection, error)
}

// EngineFunc is a functional implementation of the Engine interface.
type EngineFunc func(context.Context, Config) (Connection, error)

// Connect implements the Engine interface.
func (f EngineFunc) Connect(ctx context.Context, cfg Config) (Connection, error) {
	return f(ctx, cfg)
}

// UnknownEngineError occurs when no registered engine matches the
// scheme of the configured connection string.
type UnknownEngineError struct {
	Scheme string
}

// Error implements the [builtin.error] interface.
func (e UnknownEngineError) Error() string {
	return fmt.Sprintf("no storage engine registered for scheme: %q", e.Scheme)
}

// Registry maps URL schemes to engines. Construct one at startup and
// hand it to whatever assembles the request pipeline; there is no
// ambient package level registry.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// Register adds an engine under the given scheme. Registering the same
// scheme twice panics, mirroring the behaviour of driver registries in
// the standard library.
func (r *Registry) Register(scheme string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.engines[scheme]; ok {
		panic(fmt.Sprintf("storage: engine already registered for scheme %q", scheme))
	}
	r.engines[scheme] = e
}

// Schemes returns the registered scheme names, sorted.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ss := make([]string, 0, len(r.engines))
	for s := range r.engines {
		ss = append(ss, s)
	}
	sort.Strings(ss)
	return ss
}

// Open selects the engine matching cfg.Connection's URL scheme and
// returns an open connection from it.
func (r *Registry) Open(ctx context.Context, cfg Config) (Connection, error) {
	u, err := url.Parse(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("invalid storage connection string: %w", err)
	}

	r.mu.RLock()
	engine, ok := r.engines[u.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, UnknownEngineError{Scheme: u.Scheme}
	}

	return engine.Connect(ctx, cfg)
}

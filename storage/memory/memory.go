// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package memory provides an in-process storage engine. It backs the
// default development configuration and the test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/meterflow/meterflow/storage"
)

// Scheme is the connection URL scheme the engine registers under.
const Scheme = "memory"

// Engine implements storage.Engine. All connections produced by one
// Engine share the same underlying sample store.
type Engine struct {
	store *store
}

// New returns an Engine with an empty store.
func New() *Engine {
	return &Engine{
		store: &store{},
	}
}

// Register adds the engine to the registry under [Scheme].
func (e *Engine) Register(r *storage.Registry) {
	r.Register(Scheme, e)
}

// Connect implements the storage.Engine interface.
func (e *Engine) Connect(ctx context.Context, cfg storage.Config) (storage.Connection, error) {
	return &conn{store: e.store}, nil
}

type store struct {
	mu            sync.Mutex
	samples       []storage.Sample
	schemaVersion int
}

type conn struct {
	store *store
}

// Ingest implements the storage.Connection interface.
func (c *conn) Ingest(ctx context.Context, samples []storage.Sample) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	c.store.samples = append(c.store.samples, samples...)
	return nil
}

// Upgrade implements the storage.Connection interface.
func (c *conn) Upgrade(ctx context.Context) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	c.store.schemaVersion++
	return nil
}

// PurgeExpired implements the storage.Connection interface.
// ttl values <= 0 keep samples forever.
func (c *conn) PurgeExpired(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	kept := c.store.samples[:0]
	for _, s := range c.store.samples {
		if s.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, s)
	}
	c.store.samples = kept
	return nil
}

// Close implements the storage.Connection interface.
func (c *conn) Close() error {
	return nil
}

// Samples returns a snapshot of everything ingested so far.
func (e *Engine) Samples() []storage.Sample {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	out := make([]storage.Sample, len(e.store.samples))
	copy(out, e.store.samples)
	return out
}

// SchemaVersion returns the current schema version of the store.
func (e *Engine) SchemaVersion() int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	return e.store.schemaVersion
}

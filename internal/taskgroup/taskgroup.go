// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package taskgroup runs sets of cooperating tasks which should live
// and die together.
package taskgroup

import (
	"context"

	"github.com/meterflow/meterflow/internal/try"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of work which runs until completion or until
// its context is cancelled.
type Task func(context.Context) error

// Wait runs all tasks concurrently and blocks until every one of them
// has returned. The first task to fail (or panic) cancels the context
// passed to all of the others, and its error is returned.
func Wait(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() (err error) {
			defer try.Recover(&err)

			return task(gctx)
		})
	}
	return g.Wait()
}

// Limiter bounds the number of tasks allowed to run at once. It is
// used to size the per worker request pool.
type Limiter struct {
	sem chan struct{}
}

// NewLimiter returns a Limiter allowing up to n concurrent tasks.
// n values below 1 are treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{
		sem: make(chan struct{}, n),
	}
}

// Do runs f once a slot is available. It returns the context error
// if ctx is cancelled before a slot frees up.
func (l *Limiter) Do(ctx context.Context, f func()) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.sem <- struct{}{}:
	}
	defer func() {
		<-l.sem
	}()

	f()
	return nil
}

// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package taskgroup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/meterflow/meterflow/internal/try"

	"github.com/stretchr/testify/assert"
)

func TestWait(t *testing.T) {
	t.Run("will cancel the remaining tasks", func(t *testing.T) {
		t.Run("if one task fails", func(t *testing.T) {
			taskErr := errors.New("task failed")

			err := Wait(
				context.Background(),
				func(ctx context.Context) error {
					return taskErr
				},
				func(ctx context.Context) error {
					<-ctx.Done()
					return nil
				},
			)

			if !assert.ErrorIs(t, err, taskErr) {
				return
			}
		})

		t.Run("if one task panics", func(t *testing.T) {
			err := Wait(
				context.Background(),
				func(ctx context.Context) error {
					panic("task exploded")
				},
				func(ctx context.Context) error {
					<-ctx.Done()
					return nil
				},
			)

			var perr try.PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			if !assert.Equal(t, "task exploded", perr.Value) {
				return
			}
		})
	})

	t.Run("will return nil", func(t *testing.T) {
		t.Run("if every task succeeds", func(t *testing.T) {
			err := Wait(
				context.Background(),
				func(ctx context.Context) error { return nil },
				func(ctx context.Context) error { return nil },
			)

			if !assert.Nil(t, err) {
				return
			}
		})
	})
}

func TestLimiter(t *testing.T) {
	t.Run("will run the func", func(t *testing.T) {
		t.Run("if a slot is free", func(t *testing.T) {
			l := NewLimiter(1)

			ran := false
			err := l.Do(context.Background(), func() {
				ran = true
			})

			if !assert.Nil(t, err) {
				return
			}
			if !assert.True(t, ran) {
				return
			}
		})
	})

	t.Run("will return the context error", func(t *testing.T) {
		t.Run("if the context is cancelled while every slot is occupied", func(t *testing.T) {
			l := NewLimiter(1)

			release := make(chan struct{})
			occupied := make(chan struct{})
			go func() {
				l.Do(context.Background(), func() {
					close(occupied)
					<-release
				})
			}()
			<-occupied
			defer close(release)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			err := l.Do(ctx, func() {
				t.Error("func should not have run")
			})

			if !assert.ErrorIs(t, err, context.DeadlineExceeded) {
				return
			}
		})
	})
}

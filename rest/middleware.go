// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"context"
	"log/slog"
	"time"

	"github.com/meterflow/meterflow/storage"
)

// Handler is the error aware request handler the pipeline is built
// from. A returned disguised error must be forwarded untouched by any
// middleware so that it reaches the boundary writer and is emitted as
// the literal HTTP response.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc is a functional implementation of the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a Handler with additional behaviour.
type Middleware func(Handler) Handler

// Chain applies the middlewares to h. The first middleware in the list
// is the outermost one.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Logging returns a middleware that logs every request and its
// outcome. Errors, disguised or not, are passed through untouched.
func Logging(log *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next.Handle(ctx, req)

			attrs := []any{
				slog.String("method", req.HTTP.Method),
				slog.String("path", req.HTTP.URL.Path),
				slog.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				log.Info("request failed", append(attrs, slog.Any("error", err))...)
				return resp, err
			}
			log.Info("request served", append(attrs, slog.Int("status", resp.Status))...)
			return resp, nil
		})
	}
}

// AttachStorage returns a middleware that opens a storage connection
// before the controller action runs, attaches it to the request and
// releases it once the response is produced. The connection is owned
// by this one request; concurrent requests each get their own.
func AttachStorage(reg *storage.Registry, cfg storage.Config) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			conn, err := reg.Open(ctx, cfg)
			if err != nil {
				return nil, err
			}
			defer conn.Close()

			req.Conn = conn
			return next.Handle(ctx, req)
		})
	}
}

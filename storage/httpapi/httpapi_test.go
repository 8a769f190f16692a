// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meterflow/meterflow/storage"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_Ingest(t *testing.T) {
	t.Run("will post the sample batch as JSON", func(t *testing.T) {
		var gotPath string
		var gotBody map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path

			b, err := io.ReadAll(r.Body)
			require.Nil(t, err)
			require.Nil(t, json.Unmarshal(b, &gotBody))
		}))
		defer srv.Close()

		conn, err := New().Connect(context.Background(), storage.Config{Connection: srv.URL})
		require.Nil(t, err)
		defer conn.Close()

		err = conn.Ingest(context.Background(), []storage.Sample{
			{Name: "cpu", Value: 0.5, Labels: map[string]string{"host": "a"}},
		})

		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, "/v1/samples", gotPath) {
			return
		}
		samples, ok := gotBody["samples"].([]any)
		if !assert.True(t, ok) {
			return
		}
		if !assert.Len(t, samples, 1) {
			return
		}
	})

	t.Run("will return a StatusError", func(t *testing.T) {
		t.Run("if the remote store responds with an error status", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
			}))
			defer srv.Close()

			conn, err := New(RetryMax(0)).Connect(context.Background(), storage.Config{Connection: srv.URL})
			require.Nil(t, err)
			defer conn.Close()

			err = conn.Ingest(context.Background(), nil)

			var serr StatusError
			if !assert.ErrorAs(t, err, &serr) {
				return
			}
			if !assert.Equal(t, http.StatusConflict, serr.Code) {
				return
			}
		})
	})
}

func TestConn_PurgeExpired(t *testing.T) {
	t.Run("will carry the ttl in seconds", func(t *testing.T) {
		var gotMethod, gotTTL string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotTTL = r.URL.Query().Get("ttl")
		}))
		defer srv.Close()

		conn, err := New().Connect(context.Background(), storage.Config{Connection: srv.URL})
		require.Nil(t, err)
		defer conn.Close()

		err = conn.PurgeExpired(context.Background(), 2*time.Minute)

		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, http.MethodDelete, gotMethod) {
			return
		}
		if !assert.Equal(t, "120", gotTTL) {
			return
		}
	})
}

func TestConn_Upgrade(t *testing.T) {
	t.Run("will post to the schema upgrade endpoint", func(t *testing.T) {
		var gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
		}))
		defer srv.Close()

		conn, err := New().Connect(context.Background(), storage.Config{Connection: srv.URL})
		require.Nil(t, err)
		defer conn.Close()

		err = conn.Upgrade(context.Background())

		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, "/v1/schema/upgrade", gotPath) {
			return
		}
	})
}

func TestConn_CircuitBreaker(t *testing.T) {
	t.Run("will trip after consecutive failures", func(t *testing.T) {
		var requests atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			w.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		conn, err := New(RetryMax(0), TripCount(2)).Connect(context.Background(), storage.Config{Connection: srv.URL})
		require.Nil(t, err)
		defer conn.Close()

		for i := 0; i < 2; i++ {
			err = conn.Upgrade(context.Background())
			var serr StatusError
			require.ErrorAs(t, err, &serr)
		}

		// the circuit is open now, requests fail without reaching the store
		err = conn.Upgrade(context.Background())

		if !assert.ErrorIs(t, err, gobreaker.ErrOpenState) {
			return
		}
		if !assert.Equal(t, int64(2), requests.Load()) {
			return
		}
	})
}

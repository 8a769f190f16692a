// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/meterflow/meterflow/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	t.Run("will share the store across connections", func(t *testing.T) {
		e := New()

		c1, err := e.Connect(context.Background(), storage.Config{})
		require.Nil(t, err)
		c2, err := e.Connect(context.Background(), storage.Config{})
		require.Nil(t, err)

		err = c1.Ingest(context.Background(), []storage.Sample{
			{Name: "cpu", Value: 0.5, Timestamp: time.Now()},
		})
		require.Nil(t, err)
		err = c2.Ingest(context.Background(), []storage.Sample{
			{Name: "mem", Value: 0.9, Timestamp: time.Now()},
		})
		require.Nil(t, err)

		if !assert.Len(t, e.Samples(), 2) {
			return
		}
	})
}

func TestConn_PurgeExpired(t *testing.T) {
	t.Run("will keep everything", func(t *testing.T) {
		t.Run("if the ttl is not positive", func(t *testing.T) {
			e := New()
			conn, err := e.Connect(context.Background(), storage.Config{})
			require.Nil(t, err)

			err = conn.Ingest(context.Background(), []storage.Sample{
				{Name: "cpu", Timestamp: time.Now().Add(-time.Hour)},
			})
			require.Nil(t, err)

			err = conn.PurgeExpired(context.Background(), 0)
			require.Nil(t, err)

			if !assert.Len(t, e.Samples(), 1) {
				return
			}
		})
	})

	t.Run("will drop samples older than the ttl", func(t *testing.T) {
		e := New()
		conn, err := e.Connect(context.Background(), storage.Config{})
		require.Nil(t, err)

		err = conn.Ingest(context.Background(), []storage.Sample{
			{Name: "old", Timestamp: time.Now().Add(-time.Hour)},
			{Name: "fresh", Timestamp: time.Now()},
		})
		require.Nil(t, err)

		err = conn.PurgeExpired(context.Background(), time.Minute)
		require.Nil(t, err)

		samples := e.Samples()
		if !assert.Len(t, samples, 1) {
			return
		}
		if !assert.Equal(t, "fresh", samples[0].Name) {
			return
		}
	})
}

func TestConn_Upgrade(t *testing.T) {
	t.Run("will bump the schema version", func(t *testing.T) {
		e := New()
		conn, err := e.Connect(context.Background(), storage.Config{})
		require.Nil(t, err)

		err = conn.Upgrade(context.Background())
		require.Nil(t, err)

		if !assert.Equal(t, 1, e.SchemaVersion()) {
			return
		}
	})
}

// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meterflow/meterflow/httperr"
	"github.com/meterflow/meterflow/rest"
	"github.com/meterflow/meterflow/storage"
	"github.com/meterflow/meterflow/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingestRequest(t *testing.T, contentType, body string) *rest.Request {
	t.Helper()

	r := httptest.NewRequest("POST", "/v1/metrics", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return &rest.Request{
		HTTP:        r,
		Action:      "ingest",
		ContentType: rest.Negotiate(r),
	}
}

func TestMetricsDeserializer_Ingest(t *testing.T) {
	deserializer := MetricsDeserializer{}

	t.Run("will parse a JSON sample batch", func(t *testing.T) {
		req := ingestRequest(t, "application/json", `{
			"samples": [
				{"name": "cpu", "value": 0.5, "labels": {"host": "a"}, "timestamp": "2026-01-02T03:04:05Z"}
			]
		}`)

		args, err := deserializer.Ingest(context.Background(), req)
		if !assert.Nil(t, err) {
			return
		}

		samples, ok := args["samples"].([]storage.Sample)
		if !assert.True(t, ok) {
			return
		}
		if !assert.Len(t, samples, 1) {
			return
		}
		if !assert.Equal(t, "cpu", samples[0].Name) {
			return
		}
		if !assert.Equal(t, 0.5, samples[0].Value) {
			return
		}
		if !assert.Equal(t, map[string]string{"host": "a"}, samples[0].Labels) {
			return
		}
		if !assert.Equal(t, time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC), samples[0].Timestamp) {
			return
		}
	})

	t.Run("will default the timestamp", func(t *testing.T) {
		t.Run("if a JSON sample carries none", func(t *testing.T) {
			req := ingestRequest(t, "application/json", `{"samples": [{"name": "cpu", "value": 1}]}`)

			args, err := deserializer.Ingest(context.Background(), req)
			require.Nil(t, err)

			samples := args["samples"].([]storage.Sample)
			if !assert.False(t, samples[0].Timestamp.IsZero()) {
				return
			}
		})
	})

	t.Run("will parse the text exposition format", func(t *testing.T) {
		body := strings.Join([]string{
			"# HELP http_requests_total Total requests served.",
			"# TYPE http_requests_total counter",
			`http_requests_total{code="200"} 1027 1395066363000`,
			"# TYPE queue_depth gauge",
			"queue_depth 7",
			"",
		}, "\n")
		req := ingestRequest(t, "text/plain; version=0.0.4", body)

		args, err := deserializer.Ingest(context.Background(), req)
		if !assert.Nil(t, err) {
			return
		}

		samples, ok := args["samples"].([]storage.Sample)
		if !assert.True(t, ok) {
			return
		}
		if !assert.Len(t, samples, 2) {
			return
		}

		byName := make(map[string]storage.Sample, len(samples))
		for _, s := range samples {
			byName[s.Name] = s
		}
		if !assert.Equal(t, float64(1027), byName["http_requests_total"].Value) {
			return
		}
		if !assert.Equal(t, map[string]string{"code": "200"}, byName["http_requests_total"].Labels) {
			return
		}
		if !assert.Equal(t, time.UnixMilli(1395066363000).UTC(), byName["http_requests_total"].Timestamp) {
			return
		}
		if !assert.Equal(t, float64(7), byName["queue_depth"].Value) {
			return
		}
	})

	t.Run("will return a malformed request error", func(t *testing.T) {
		testCases := []struct {
			Name string
			Body string
		}{
			{
				Name: "if the body is empty",
				Body: "",
			},
			{
				Name: "if the JSON does not parse",
				Body: `{"samples": [`,
			},
			{
				Name: "if the exposition text does not parse",
				Body: "http_requests_total{ 1027",
			},
			{
				Name: "if no samples are provided",
				Body: `{"samples": []}`,
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				req := ingestRequest(t, "", testCase.Body)

				_, err := deserializer.Ingest(context.Background(), req)

				he, ok := httperr.FromError(err)
				if !assert.True(t, ok) {
					return
				}
				if !assert.Equal(t, http.StatusBadRequest, he.Code) {
					return
				}
			})
		}
	})
}

func TestMetricsController_Ingest(t *testing.T) {
	t.Run("will store the samples on the attached connection", func(t *testing.T) {
		engine := memory.New()
		conn, err := engine.Connect(context.Background(), storage.Config{})
		require.Nil(t, err)

		req := ingestRequest(t, "application/json", "")
		req.Conn = conn

		result, err := MetricsController{}.Ingest(context.Background(), req, rest.Args{
			"samples": []storage.Sample{
				{Name: "cpu", Value: 0.5},
				{Name: "mem", Value: 0.9},
			},
		})
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Len(t, engine.Samples(), 2) {
			return
		}
		if !assert.Equal(t, map[string]any{"ingest": map[string]any{"received": 2}}, result) {
			return
		}
	})

	t.Run("will return an argument error", func(t *testing.T) {
		t.Run("if the samples argument is missing", func(t *testing.T) {
			req := ingestRequest(t, "application/json", "")

			_, err := MetricsController{}.Ingest(context.Background(), req, rest.Args{})

			var aerr rest.ArgumentError
			if !assert.ErrorAs(t, err, &aerr) {
				return
			}
		})
	})
}

func TestMetricsController_Default(t *testing.T) {
	t.Run("will answer not found", func(t *testing.T) {
		_, err := MetricsController{}.Default(context.Background(), &rest.Request{}, rest.Args{})

		he, ok := httperr.FromError(err)
		if !assert.True(t, ok) {
			return
		}
		if !assert.Equal(t, http.StatusNotFound, he.Code) {
			return
		}
	})
}

func TestQuerySerializer_Create(t *testing.T) {
	t.Run("will answer 201 with a Location header", func(t *testing.T) {
		resp := rest.NewResponse()

		err := QuerySerializer{}.Create(context.Background(), resp, map[string]any{
			"location": "/v1/metrics/cpu",
			"name":     "cpu",
		})
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, http.StatusCreated, resp.Status) {
			return
		}
		if !assert.Equal(t, "/v1/metrics/cpu", resp.Header.Get("Location")) {
			return
		}
		if !assert.JSONEq(t, `{"name": "cpu"}`, string(resp.Body)) {
			return
		}
	})

	t.Run("will reject non mapping results", func(t *testing.T) {
		err := QuerySerializer{}.Create(context.Background(), rest.NewResponse(), "nope")

		if !assert.NotNil(t, err) {
			return
		}
	})
}

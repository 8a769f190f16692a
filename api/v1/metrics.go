// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package v1 implements the v1 metrics API: the controller, request
// parsing and response rendering for the telemetry ingest surface.
package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/meterflow/meterflow/httperr"
	"github.com/meterflow/meterflow/rest"
	"github.com/meterflow/meterflow/storage"
)

// MetricsController executes the metrics resource actions against the
// storage connection attached to the request.
type MetricsController struct{}

// Controller returns the action registry for the metrics resource.
// Unimplemented actions fall back to a 404.
func (c MetricsController) Controller() *rest.Controller {
	return rest.NewController(c.Default).
		Action("ingest", c.Ingest)
}

// Ingest stores the samples extracted by the deserializer.
func (c MetricsController) Ingest(ctx context.Context, req *rest.Request, args rest.Args) (any, error) {
	samples, ok := args["samples"].([]storage.Sample)
	if !ok {
		return nil, rest.ArgumentError{
			Action: req.Action,
			Reason: "missing required argument: samples",
		}
	}
	if req.Conn == nil {
		return nil, fmt.Errorf("no storage connection attached to the request")
	}

	err := req.Conn.Ingest(ctx, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to store samples: %w", err)
	}

	return map[string]any{
		"ingest": map[string]any{
			"received": len(samples),
		},
	}, nil
}

// Default is the fallback controller method. A routed action with no
// implementation behaves exactly like a route that does not exist.
func (c MetricsController) Default(ctx context.Context, req *rest.Request, args rest.Args) (any, error) {
	return nil, httperr.NotFound()
}

// NewMetricsResource assembles the metrics resource triad.
func NewMetricsResource(opts ...rest.ResourceOption) *rest.Resource {
	return rest.NewResource(
		MetricsController{}.Controller(),
		MetricsDeserializer{}.Deserializer(),
		opts...,
	)
}

// Register adds the v1 routes to rt, dispatching them to h. h is
// typically the metrics resource wrapped in the middleware chain.
func Register(rt *rest.Router, h rest.Handler) {
	rt.Handle(http.MethodPost, "/v1/metrics", "ingest", h)
	rt.Handle(http.MethodGet, "/v1/metrics/{name}", "show", h)
}

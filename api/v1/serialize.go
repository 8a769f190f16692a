// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package v1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/meterflow/meterflow/rest"
)

// QuerySerializer renders query API results as JSON. The create action
// answers 201 Created with a Location header pointing at the stored
// resource; every other action uses the plain JSON rendering.
type QuerySerializer struct {
	json rest.JSONSerializer
}

// Serializer returns the role registry for the query surface.
func (s QuerySerializer) Serializer() *rest.Serializer {
	return rest.NewSerializer(s.json.Default).
		Action("create", s.Create)
}

// Create renders a creation result. The result mapping's "location"
// value, when present, is promoted to the Location header and removed
// from the body.
func (s QuerySerializer) Create(ctx context.Context, resp *rest.Response, result any) error {
	m, ok := result.(map[string]any)
	if !ok {
		return fmt.Errorf("create result must be a mapping, got %T", result)
	}

	body := make(map[string]any, len(m))
	for k, v := range m {
		body[k] = v
	}
	if loc, ok := body["location"].(string); ok {
		resp.Header.Set("Location", loc)
		delete(body, "location")
	}

	err := s.json.Default(ctx, resp, body)
	if err != nil {
		return err
	}
	resp.Status = http.StatusCreated
	return nil
}

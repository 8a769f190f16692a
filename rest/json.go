// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"context"
	"encoding/json"
)

// JSONSerializer renders action results as JSON. Date and time values
// are emitted as ISO-8601 strings, which [encoding/json] already
// guarantees for [time.Time] values (RFC 3339 is the timestamp profile
// of ISO-8601).
type JSONSerializer struct{}

// ToJSON encodes v.
func (JSONSerializer) ToJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Default is the fallback serialize method.
func (s JSONSerializer) Default(ctx context.Context, resp *Response, result any) error {
	b, err := s.ToJSON(result)
	if err != nil {
		return err
	}
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = b
	return nil
}

// Serializer returns the role registry backed by this serializer's
// default method.
func (s JSONSerializer) Serializer() *Serializer {
	return NewSerializer(s.Default)
}

// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"context"
	"encoding/json"

	"github.com/meterflow/meterflow/httperr"
)

// JSONDeserializer parses JSON request bodies. Its default method
// returns {"body": <parsed body>} when the request carries a JSON body
// and an empty mapping otherwise.
type JSONDeserializer struct{}

// FromJSON parses b, converting any parse failure into a 400 carrying
// the parser's message.
func (JSONDeserializer) FromJSON(b []byte) (any, error) {
	var v any
	err := json.Unmarshal(b, &v)
	if err != nil {
		return nil, httperr.MalformedRequest(err.Error())
	}
	return v, nil
}

// Default is the fallback deserialize method.
func (d JSONDeserializer) Default(ctx context.Context, req *Request) (Args, error) {
	if !req.HasBody() {
		return Args{}, nil
	}

	body, err := req.Body()
	if err != nil {
		return nil, httperr.MalformedRequest(err.Error())
	}
	v, err := d.FromJSON(body)
	if err != nil {
		return nil, err
	}
	return Args{"body": v}, nil
}

// Deserializer returns the role registry backed by this deserializer's
// default method.
func (d JSONDeserializer) Deserializer() *Deserializer {
	return NewDeserializer(d.Default)
}

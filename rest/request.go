// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"context"
	"io"
	"net/http"

	"github.com/meterflow/meterflow/storage"
)

// RouteMatch is the route resolution data attached to a request by the
// router before the dispatch pipeline runs. Params holds the path
// parameters the route pattern captured.
type RouteMatch struct {
	Action string
	Params map[string]string
}

type routeMatchKey struct{}

// NewRouteContext returns a context carrying the given route match.
func NewRouteContext(parent context.Context, m RouteMatch) context.Context {
	return context.WithValue(parent, routeMatchKey{}, m)
}

// RouteFromContext extracts the route match attached by the router.
func RouteFromContext(ctx context.Context) (RouteMatch, bool) {
	m, ok := ctx.Value(routeMatchKey{}).(RouteMatch)
	return m, ok
}

// Request is the per request state flowing through the dispatch
// pipeline. It is created when a request enters the pipeline, owned
// exclusively by the handling goroutine and destroyed once the
// response has been emitted.
type Request struct {
	// HTTP is the underlying request.
	HTTP *http.Request

	// Action and Params come from route resolution.
	Action string
	Params map[string]string

	// ContentType is the negotiated response serialization.
	ContentType ContentType

	// Locale is the response language, matched once before
	// serialization begins.
	Locale string

	// Conn is the storage connection attached for the duration of
	// this request, or nil if no storage is needed.
	Conn storage.Connection

	body     []byte
	bodyRead bool
	bodyErr  error
}

// Body reads and caches the request body. Repeated calls return the
// same bytes.
func (r *Request) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, r.bodyErr
	}
	r.bodyRead = true

	if r.HTTP.Body == nil {
		return nil, nil
	}
	defer r.HTTP.Body.Close()

	r.body, r.bodyErr = io.ReadAll(io.LimitReader(r.HTTP.Body, maxBodyBytes))
	return r.body, r.bodyErr
}

// maxBodyBytes caps how much of a request body is buffered.
const maxBodyBytes = 16 << 20

// HasBody reports whether the request carries an entity body the JSON
// deserializer should parse: a positive Content-Length and a JSON-like
// content type.
func (r *Request) HasBody() bool {
	if r.HTTP.ContentLength <= 0 {
		return false
	}
	body, err := r.Body()
	if err != nil {
		return false
	}
	return isJSONContentType(r.HTTP, body)
}

// Response is the buffered response a resource produces. It is written
// to the wire only at the dispatch boundary, after all middleware has
// run.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse returns a Response defaulting to 200 OK.
func NewResponse() *Response {
	return &Response{
		Status: http.StatusOK,
		Header: make(http.Header),
	}
}

// WriteTo emits the buffered response on w.
func (resp *Response) WriteTo(w http.ResponseWriter) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

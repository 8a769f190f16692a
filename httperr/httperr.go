// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httperr defines the HTTP status carrying error type used
// across the dispatch pipeline, along with the translation and
// disguising rules applied when an error crosses the dispatch boundary.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds of per request failures. Startup failures (bad config, bind)
// have their own types in internal/socket since they are fatal and
// never serialized to a client.
const (
	KindRouteNotFound    = "RouteNotFound"
	KindMalformedRequest = "MalformedRequest"
	KindUpstream         = "UpstreamError"
)

// Error is an error carrying everything needed to render it as an
// HTTP response: status code, user facing message and optional
// explanation/detail texts plus response headers.
//
// Message is set by whoever raises the error. Explanation is what is
// shown when the error is rendered; when it is left empty the generic
// per status default applies and the translation step will swap the
// localized message in its place.
type Error struct {
	Kind        string
	Code        int
	Message     string
	Explanation string
	Detail      string
	Locale      string

	header http.Header
	body   map[string]any
}

// New returns an Error for the given status code and message.
func New(code int, msg string) *Error {
	return &Error{
		Code:    code,
		Message: msg,
	}
}

// NotFound returns the 404 error produced when no route matched.
func NotFound() *Error {
	e := New(http.StatusNotFound, "The resource could not be found.")
	e.Kind = KindRouteNotFound
	return e
}

// MalformedRequest returns a 400 error. msg is carried as the user
// facing message, e.g. a JSON parser's complaint.
func MalformedRequest(msg string) *Error {
	e := New(http.StatusBadRequest, msg)
	e.Kind = KindMalformedRequest
	return e
}

// Internal returns the generic 500 error any uncaught controller
// failure is converted into.
func Internal(msg string) *Error {
	e := New(http.StatusInternalServerError, msg)
	e.Kind = KindUpstream
	return e
}

// Error implements the [builtin.error] interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// Success reports whether the error represents a success or
// redirection response (2xx/3xx). Such errors are legitimate
// responses and must never be translated or disguised.
func (e *Error) Success() bool {
	return e.Code >= 200 && e.Code < 400
}

// WithHeader returns e after adding a response header to it.
func (e *Error) WithHeader(k, v string) *Error {
	if e.header == nil {
		e.header = make(http.Header)
	}
	e.header.Set(k, v)
	return e
}

// Header returns the response headers to emit with the error, or nil.
func (e *Error) Header() http.Header {
	return e.header
}

// WithBody returns e after attaching a pre-serialized response body.
// The body must be a single key mapping so that it remains renderable
// as either JSON or XML.
func (e *Error) WithBody(body map[string]any) *Error {
	e.body = body
	return e
}

// PresetBody returns the explicitly attached response body, if any.
func (e *Error) PresetBody() (map[string]any, bool) {
	return e.body, e.body != nil
}

// ResponseBody returns the mapping to serialize when the error is
// emitted as the literal HTTP response. An explicitly attached body
// wins; otherwise a single key "error" mapping is derived.
func (e *Error) ResponseBody() map[string]any {
	if e.body != nil {
		return e.body
	}

	inner := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if e.Kind != "" {
		inner["type"] = e.Kind
	}
	if e.Explanation != "" {
		inner["explanation"] = e.Explanation
	}
	if e.Detail != "" {
		inner["detail"] = e.Detail
	}
	return map[string]any{"error": inner}
}

// FromError extracts an *Error from err's chain.
func FromError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

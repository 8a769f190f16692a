// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package rest implements the request dispatch pipeline: route matched
// requests flow through a deserializer, a controller action and a
// serializer, with failures converted into typed HTTP responses in the
// negotiated content type.
package rest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/meterflow/meterflow/httperr"
	"github.com/meterflow/meterflow/i18n"
	"github.com/meterflow/meterflow/internal/try"

	"go.opentelemetry.io/otel"
)

// malformedRequestMsg is the fixed message carried by the 400 produced
// for argument mismatches.
const malformedRequestMsg = "The server could not comply with the request since " +
	"it is either malformed or otherwise incorrect."

// Resource drives (de)serialization and controller dispatch for one
// route. It holds no per request state: everything mutable lives in
// the Request, so a single Resource serves concurrent requests.
type Resource struct {
	controller   *Controller
	deserializer *Deserializer
	serializer   *Serializer
	cat          *i18n.Catalog
	log          *slog.Logger
}

// ResourceOption configures a Resource.
type ResourceOption func(*Resource)

// WithSerializer pins the serializer role instead of selecting one
// per request from the negotiated content type.
func WithSerializer(s *Serializer) ResourceOption {
	return func(r *Resource) {
		r.serializer = s
	}
}

// WithCatalog sets the message catalog used to localize errors.
func WithCatalog(cat *i18n.Catalog) ResourceOption {
	return func(r *Resource) {
		r.cat = cat
	}
}

// LogHandler sets the slog.Handler for pipeline logging.
func LogHandler(h slog.Handler) ResourceOption {
	return func(r *Resource) {
		r.log = slog.New(h)
	}
}

// NewResource returns a Resource dispatching to the given controller
// and deserializer roles.
func NewResource(controller *Controller, deserializer *Deserializer, opts ...ResourceOption) *Resource {
	r := &Resource{
		controller:   controller,
		deserializer: deserializer,
		cat:          i18n.NewCatalog(nil, nil),
		log:          slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle implements the Handler interface. It resolves the route
// supplied action, runs deserialize, controller and serialize in order
// and converts any failure into a typed HTTP response error.
func (r *Resource) Handle(ctx context.Context, req *Request) (*Response, error) {
	match, ok := RouteFromContext(ctx)
	if !ok {
		return nil, httperr.Disguise(httperr.Translate(httperr.NotFound(), req.Locale, r.cat))
	}
	req.Action = match.Action
	req.Params = match.Params

	result, err := r.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return r.serialize(ctx, req, result)
}

// execute runs the deserialize and controller stages, applying the
// error conversion rules shared by both.
func (r *Resource) execute(ctx context.Context, req *Request) (result any, err error) {
	// conversion is registered first so the panic recovery above it in
	// the defer stack has already populated err by the time it runs
	defer func() {
		if err != nil {
			err = r.convertError(req, err)
		}
	}()
	defer try.Recover(&err)

	tracer := otel.Tracer("rest")

	spanCtx, span := tracer.Start(ctx, "Resource.deserialize")
	deserialized, err := r.deserializer.dispatch(req.Action)(spanCtx, req)
	span.End()
	if err != nil {
		return nil, err
	}

	args := make(Args, len(req.Params)+len(deserialized))
	for k, v := range req.Params {
		args[k] = v
	}
	for k, v := range deserialized {
		args[k] = v
	}

	spanCtx, span = tracer.Start(ctx, "Resource.controller")
	result, err = r.controller.dispatch(req.Action)(spanCtx, req, args)
	span.End()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// convertError applies the dispatch error rules:
//
//   - argument mismatches are malformed requests: logged, converted to
//     a fixed message 400, translated and disguised
//   - HTTP status errors representing success or redirection pass
//     through unchanged, they are legitimate responses
//   - any other HTTP status error is logged, translated and disguised
//   - everything else is logged and translated into a generic server error
//
// Disguising keeps translated errors from being intercepted by
// middleware between here and the boundary writer.
func (r *Resource) convertError(req *Request, err error) error {
	var argErr ArgumentError
	if errors.As(err, &argErr) {
		r.log.Error("exception handling resource", slog.Any("error", err))
		he := httperr.MalformedRequest(malformedRequestMsg)
		return httperr.Disguise(httperr.Translate(he, req.Locale, r.cat))
	}

	if he, ok := httperr.FromError(err); ok {
		if he.Success() {
			return he
		}
		r.log.Error("returning error to user",
			slog.Int("code", he.Code),
			slog.String("explanation", he.Explanation),
		)
		return httperr.Disguise(httperr.Translate(he, req.Locale, r.cat))
	}

	r.log.Error("unexpected error occurred serving API", slog.Any("error", err))
	return httperr.Translate(httperr.Internal(err.Error()), req.Locale, r.cat)
}

// serialize renders the action result. When serialization fails the
// result is typically an error object carrying its own pre-serialized
// body: for JSON that body is re-encoded, any secondary failure is
// swallowed and logged, and the response is returned either way so the
// caller still receives something.
func (r *Resource) serialize(ctx context.Context, req *Request, result any) (*Response, error) {
	serializer := r.serializer
	if serializer == nil {
		if req.ContentType == ContentTypeJSON {
			serializer = JSONSerializer{}.Serializer()
		} else {
			serializer = XMLSerializer{}.Serializer()
		}
	}

	spanCtx, span := otel.Tracer("rest").Start(ctx, "Resource.serialize")
	defer span.End()

	resp := NewResponse()
	err := serializer.dispatch(req.Action)(spanCtx, resp, result)
	if err == nil {
		return resp, nil
	}

	if he, ok := result.(*httperr.Error); ok {
		resp.Status = he.Code
		for k, vs := range he.Header() {
			for _, v := range vs {
				resp.Header.Set(k, v)
			}
		}
	}

	if req.ContentType == ContentTypeJSON {
		rb, ok := result.(interface{ ResponseBody() map[string]any })
		if !ok {
			r.log.Warn("unable to serialize exception response")
			return resp, nil
		}

		b, jerr := (JSONSerializer{}).ToJSON(rb.ResponseBody())
		if jerr != nil {
			r.log.Warn("unable to serialize exception response", slog.Any("error", jerr))
			return resp, nil
		}
		resp.Header.Set("Content-Type", "application/json")
		resp.Body = b
	}
	return resp, nil
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

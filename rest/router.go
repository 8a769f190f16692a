// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meterflow/meterflow/httperr"
	"github.com/meterflow/meterflow/i18n"
)

// Router maps method/pattern pairs to resource actions and sits at the
// dispatch boundary: it builds the per request state, attaches the
// route match for the pipeline to consume and writes whatever comes
// back, response or error, to the wire.
type Router struct {
	mux *http.ServeMux
	cat *i18n.Catalog
	log *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// RouterLogHandler sets the slog.Handler used for boundary logging.
func RouterLogHandler(h slog.Handler) RouterOption {
	return func(rt *Router) {
		rt.log = slog.New(h)
	}
}

// NewRouter returns a Router localizing error messages with the given catalog.
func NewRouter(cat *i18n.Catalog, opts ...RouterOption) *Router {
	rt := &Router{
		mux: http.NewServeMux(),
		cat: cat,
		log: slog.New(discardHandler{}),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Handle registers h for the given method and pattern, dispatching to
// the named action. Path parameters captured by {name} segments in the
// pattern become route params.
func (rt *Router) Handle(method, pattern, action string, h Handler) {
	params := patternParams(pattern)

	rt.mux.Handle(fmt.Sprintf("%s %s", method, pattern), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps := make(map[string]string, len(params))
		for _, name := range params {
			ps[name] = r.PathValue(name)
		}

		req := &Request{
			HTTP:        r,
			ContentType: Negotiate(r),
			Locale:      rt.cat.BestMatch(r.Header.Get("Accept-Language")),
		}
		ctx := NewRouteContext(r.Context(), RouteMatch{
			Action: action,
			Params: ps,
		})

		resp, err := h.Handle(ctx, req)
		if err != nil {
			rt.writeError(w, req, err)
			return
		}
		resp.WriteTo(w)
	}))
}

// ServeHTTP implements the [http.Handler] interface. Requests whose
// URL exceeds MaxURLLength fail like any other malformed request and
// unmatched routes produce a 404 in the negotiated content type,
// without any resource being invoked.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := &Request{
		HTTP:        r,
		ContentType: Negotiate(r),
		Locale:      rt.cat.BestMatch(r.Header.Get("Accept-Language")),
	}

	if len(r.RequestURI) > MaxURLLength {
		he := httperr.MalformedRequest("request URL exceeds the maximum allowed length")
		rt.writeTranslated(w, req, httperr.Translate(he, req.Locale, rt.cat))
		return
	}

	_, pattern := rt.mux.Handler(r)
	if pattern == "" {
		rt.writeTranslated(w, req, httperr.Translate(httperr.NotFound(), req.Locale, rt.cat))
		return
	}

	rt.mux.ServeHTTP(w, r)
}

// writeError emits an error returned by the pipeline as the literal
// HTTP response. Disguised errors are unwrapped here, at the boundary,
// and rendered exactly as translated. Success and redirection statuses
// pass through with their headers and optional preset body. Anything
// else was already translated into a generic server error, or is an
// unexpected plain error which falls back to a generic English 500.
func (rt *Router) writeError(w http.ResponseWriter, req *Request, err error) {
	if he, ok := httperr.AsDisguised(err); ok {
		rt.writeTranslated(w, req, he)
		return
	}

	he, ok := httperr.FromError(err)
	if !ok {
		rt.log.Error("unhandled error reached the dispatch boundary", slog.Any("error", err))
		he = httperr.Internal("The server has either erred or is incapable of performing the requested operation.")
		rt.writeTranslated(w, req, httperr.Translate(he, req.Locale, rt.cat))
		return
	}

	if he.Success() {
		body, ok := he.PresetBody()
		if !ok {
			for k, vs := range he.Header() {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(he.Code)
			return
		}
		rt.writeBody(w, req, he.Code, he.Header(), body)
		return
	}

	rt.writeTranslated(w, req, he)
}

func (rt *Router) writeTranslated(w http.ResponseWriter, req *Request, he *httperr.Error) {
	rt.writeBody(w, req, he.Code, he.Header(), he.ResponseBody())
}

func (rt *Router) writeBody(w http.ResponseWriter, req *Request, status int, header http.Header, body map[string]any) {
	var (
		b           []byte
		err         error
		contentType string
	)
	if req.ContentType == ContentTypeJSON {
		b, err = (JSONSerializer{}).ToJSON(body)
		contentType = "application/json"
	} else {
		b, err = (XMLSerializer{}).ToXML(body)
		contentType = "application/xml"
	}
	if err != nil {
		rt.log.Warn("unable to serialize error response", slog.Any("error", err))
		b = nil
	}

	for k, vs := range header {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// patternParams extracts the {name} wildcard segments from a pattern.
func patternParams(pattern string) []string {
	var names []string
	for _, seg := range strings.Split(pattern, "/") {
		if len(seg) < 2 || seg[0] != '{' || seg[len(seg)-1] != '}' {
			continue
		}
		name := seg[1 : len(seg)-1]
		name = strings.TrimSuffix(name, "...")
		if name == "" || name == "$" {
			continue
		}
		names = append(names, name)
	}
	return names
}

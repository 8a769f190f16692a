// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meterflow/meterflow/httperr"
	"github.com/meterflow/meterflow/i18n"

	"github.com/stretchr/testify/assert"
)

func TestRouter_ServeHTTP(t *testing.T) {
	t.Run("will answer 404 without invoking any handler", func(t *testing.T) {
		t.Run("if no route matches", func(t *testing.T) {
			invoked := false
			rt := NewRouter(i18n.NewCatalog(nil, nil))
			rt.Handle("GET", "/v1/metrics", "index", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				invoked = true
				return NewResponse(), nil
			}))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest("GET", "/nope", nil))

			if !assert.False(t, invoked) {
				return
			}
			if !assert.Equal(t, http.StatusNotFound, w.Code) {
				return
			}
			if !assert.Equal(t, "application/xml", w.Header().Get("Content-Type")) {
				return
			}
			if !assert.Contains(t, w.Body.String(), "<error>") {
				return
			}
		})

		t.Run("in JSON when the query asks for it", func(t *testing.T) {
			rt := NewRouter(i18n.NewCatalog(nil, nil))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest("GET", "/nope?ContentType=JSON", nil))

			if !assert.Equal(t, http.StatusNotFound, w.Code) {
				return
			}
			if !assert.Equal(t, "application/json", w.Header().Get("Content-Type")) {
				return
			}
			if !assert.Contains(t, w.Body.String(), `"code":404`) {
				return
			}
		})
	})

	t.Run("will reject over long URLs as malformed requests", func(t *testing.T) {
		rt := NewRouter(i18n.NewCatalog(nil, nil))
		rt.Handle("GET", "/v1/metrics", "index", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			return NewResponse(), nil
		}))

		target := "/v1/metrics?pad=" + strings.Repeat("x", MaxURLLength)
		w := httptest.NewRecorder()
		rt.ServeHTTP(w, httptest.NewRequest("GET", target, nil))

		if !assert.Equal(t, http.StatusBadRequest, w.Code) {
			return
		}
	})

	t.Run("will attach the route match", func(t *testing.T) {
		t.Run("with the action and captured path params", func(t *testing.T) {
			var gotMatch RouteMatch
			rt := NewRouter(i18n.NewCatalog(nil, nil))
			rt.Handle("GET", "/v1/metrics/{name}", "show", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				gotMatch, _ = RouteFromContext(ctx)
				return NewResponse(), nil
			}))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest("GET", "/v1/metrics/cpu", nil))

			if !assert.Equal(t, http.StatusOK, w.Code) {
				return
			}
			if !assert.Equal(t, "show", gotMatch.Action) {
				return
			}
			if !assert.Equal(t, map[string]string{"name": "cpu"}, gotMatch.Params) {
				return
			}
		})
	})

	t.Run("will write the buffered response", func(t *testing.T) {
		rt := NewRouter(i18n.NewCatalog(nil, nil))
		rt.Handle("GET", "/v1/metrics", "index", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			resp := NewResponse()
			resp.Status = http.StatusAccepted
			resp.Header.Set("Content-Type", "application/json")
			resp.Body = []byte(`{"ok": true}`)
			return resp, nil
		}))

		w := httptest.NewRecorder()
		rt.ServeHTTP(w, httptest.NewRequest("GET", "/v1/metrics", nil))

		if !assert.Equal(t, http.StatusAccepted, w.Code) {
			return
		}
		if !assert.JSONEq(t, `{"ok": true}`, w.Body.String()) {
			return
		}
	})
}

func TestRouter_writeError(t *testing.T) {
	t.Run("will emit a disguised error as the literal response", func(t *testing.T) {
		rt := NewRouter(i18n.NewCatalog(nil, nil))
		rt.Handle("GET", "/v1/metrics", "show", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			he := httperr.Translate(httperr.NotFound(), req.Locale, i18n.NewCatalog(nil, nil))
			return nil, httperr.Disguise(he)
		}))

		w := httptest.NewRecorder()
		rt.ServeHTTP(w, httptest.NewRequest("GET", "/v1/metrics", nil))

		if !assert.Equal(t, http.StatusNotFound, w.Code) {
			return
		}
		if !assert.Contains(t, w.Body.String(), "The resource could not be found.") {
			return
		}
	})

	t.Run("will pass success status errors through", func(t *testing.T) {
		t.Run("with only status and headers when no body is attached", func(t *testing.T) {
			rt := NewRouter(i18n.NewCatalog(nil, nil))
			rt.Handle("POST", "/v1/metrics", "create", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				return nil, httperr.New(http.StatusCreated, "created").
					WithHeader("Location", "/v1/metrics/cpu")
			}))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest("POST", "/v1/metrics", nil))

			if !assert.Equal(t, http.StatusCreated, w.Code) {
				return
			}
			if !assert.Equal(t, "/v1/metrics/cpu", w.Header().Get("Location")) {
				return
			}
			if !assert.Empty(t, w.Body.String()) {
				return
			}
		})

		t.Run("with the attached body serialized in the negotiated type", func(t *testing.T) {
			rt := NewRouter(i18n.NewCatalog(nil, nil))
			rt.Handle("POST", "/v1/metrics", "create", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				return nil, httperr.New(http.StatusCreated, "created").
					WithHeader("Location", "/v1/metrics/cpu").
					WithBody(map[string]any{"result": map[string]any{"name": "cpu"}})
			}))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest("POST", "/v1/metrics?ContentType=JSON", nil))

			if !assert.Equal(t, http.StatusCreated, w.Code) {
				return
			}
			if !assert.Equal(t, "/v1/metrics/cpu", w.Header().Get("Location")) {
				return
			}
			if !assert.JSONEq(t, `{"result": {"name": "cpu"}}`, w.Body.String()) {
				return
			}
		})
	})

	t.Run("will fall back to a generic server error", func(t *testing.T) {
		t.Run("if a plain error reaches the boundary", func(t *testing.T) {
			rt := NewRouter(i18n.NewCatalog(nil, nil))
			rt.Handle("GET", "/v1/metrics", "show", HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				return nil, context.DeadlineExceeded
			}))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest("GET", "/v1/metrics", nil))

			if !assert.Equal(t, http.StatusInternalServerError, w.Code) {
				return
			}
			if !assert.Contains(t, w.Body.String(), "<error>") {
				return
			}
		})
	})
}

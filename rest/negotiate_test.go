// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiate(t *testing.T) {
	t.Run("will select JSON", func(t *testing.T) {
		t.Run("if the ContentType query value is exactly JSON", func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/metrics?ContentType=JSON", nil)

			if !assert.Equal(t, ContentTypeJSON, Negotiate(r)) {
				return
			}
		})
	})

	t.Run("will select XML", func(t *testing.T) {
		testCases := []struct {
			Name   string
			Target string
		}{
			{
				Name:   "if the ContentType query parameter is absent",
				Target: "/v1/metrics",
			},
			{
				Name:   "if the ContentType query value is lowercase json",
				Target: "/v1/metrics?ContentType=json",
			},
			{
				Name:   "if the ContentType query value is a media type",
				Target: "/v1/metrics?ContentType=application%2Fjson",
			},
			{
				Name:   "if only an Accept header asks for JSON",
				Target: "/v1/metrics",
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				r := httptest.NewRequest("GET", testCase.Target, nil)
				r.Header.Set("Accept", "application/json")

				if !assert.Equal(t, ContentTypeXML, Negotiate(r)) {
					return
				}
			})
		}
	})
}

func TestRequest_HasBody(t *testing.T) {
	t.Run("will report true", func(t *testing.T) {
		testCases := []struct {
			Name        string
			Method      string
			Target      string
			ContentType string
			Body        string
		}{
			{
				Name:        "if the content type is application/json",
				Method:      "POST",
				Target:      "/v1/metrics",
				ContentType: "application/json",
				Body:        `{"samples": []}`,
			},
			{
				Name:        "if the content type carries a charset parameter",
				Method:      "POST",
				Target:      "/v1/metrics",
				ContentType: "application/json; charset=utf-8",
				Body:        `{"samples": []}`,
			},
			{
				Name:   "if the content type is empty",
				Method: "POST",
				Target: "/v1/metrics",
				Body:   `{"samples": []}`,
			},
			{
				Name:        "if the content type is text/plain",
				Method:      "POST",
				Target:      "/v1/metrics",
				ContentType: "text/plain",
				Body:        `{"samples": []}`,
			},
			{
				Name:        "if a GET declares JSON via the query parameter",
				Method:      "GET",
				Target:      "/v1/metrics?ContentType=JSON",
				ContentType: "application/xml",
				Body:        `{"samples": []}`,
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				r := httptest.NewRequest(testCase.Method, testCase.Target, strings.NewReader(testCase.Body))
				if testCase.ContentType != "" {
					r.Header.Set("Content-Type", testCase.ContentType)
				}
				req := &Request{HTTP: r}

				if !assert.True(t, req.HasBody()) {
					return
				}
			})
		}
	})

	t.Run("will report false", func(t *testing.T) {
		testCases := []struct {
			Name        string
			Method      string
			Target      string
			ContentType string
			Body        string
		}{
			{
				Name:   "if there is no body",
				Method: "POST",
				Target: "/v1/metrics",
			},
			{
				Name:        "if the content type is not JSON like",
				Method:      "POST",
				Target:      "/v1/metrics",
				ContentType: "application/xml",
				Body:        `{"samples": []}`,
			},
			{
				Name:        "if the body does not start with a brace",
				Method:      "POST",
				Target:      "/v1/metrics",
				ContentType: "application/json",
				Body:        `[1, 2, 3]`,
			},
			{
				Name:        "if a GET query parameter overrides a JSON header",
				Method:      "GET",
				Target:      "/v1/metrics?ContentType=XML",
				ContentType: "application/json",
				Body:        `{"samples": []}`,
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				var r = httptest.NewRequest(testCase.Method, testCase.Target, strings.NewReader(testCase.Body))
				if testCase.Body == "" {
					r = httptest.NewRequest(testCase.Method, testCase.Target, nil)
				}
				if testCase.ContentType != "" {
					r.Header.Set("Content-Type", testCase.ContentType)
				}
				req := &Request{HTTP: r}

				if !assert.False(t, req.HasBody()) {
					return
				}
			})
		}
	})
}

func TestRequest_Body(t *testing.T) {
	t.Run("will return the same bytes on repeated calls", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/v1/metrics", strings.NewReader(`{"a": 1}`))
		req := &Request{HTTP: r}

		first, err := req.Body()
		if !assert.Nil(t, err) {
			return
		}
		second, err := req.Body()
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, first, second) {
			return
		}
		if !assert.JSONEq(t, `{"a": 1}`, string(first)) {
			return
		}
	})
}

// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"bytes"
	"mime"
	"net/http"
)

// ContentType is the negotiated response serialization for one request.
type ContentType string

const (
	ContentTypeJSON ContentType = "JSON"
	ContentTypeXML  ContentType = "XML"
)

// MaxURLLength is the longest request URL accepted by the server.
// Anything longer fails the same way as a malformed request.
const MaxURLLength = 50000

// contentTypeParam is the query parameter controlling response
// serialization. It has no effect on how the request body is parsed.
const contentTypeParam = "ContentType"

// Negotiate determines the response content type for a request.
//
// The default is XML; only an exact ContentType=JSON query value
// switches to JSON. This inverts the usual Accept header negotiation
// on purpose: downstream clients depend on the query parameter
// behaviour, so it is preserved as a wire compatibility contract.
func Negotiate(r *http.Request) ContentType {
	if r.URL.Query().Get(contentTypeParam) == string(ContentTypeJSON) {
		return ContentTypeJSON
	}
	return ContentTypeXML
}

// isJSONContentType reports whether the request body should be treated
// as JSON. GET requests may declare it via the ContentType query
// parameter, which wins over the header when both are present. Empty
// and text/plain content types are treated as JSON for backward
// compatibility. In every case the body must actually start with '{'.
func isJSONContentType(r *http.Request, body []byte) bool {
	contentType := headerContentType(r)
	if r.Method == http.MethodGet {
		if q := r.URL.Query().Get(contentTypeParam); q != "" {
			contentType = q
		}
	}

	if contentType == "" || contentType == "text/plain" {
		contentType = "application/json"
	}
	if contentType != "JSON" && contentType != "application/json" {
		return false
	}
	return bytes.HasPrefix(body, []byte("{"))
}

func headerContentType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mediaType
}

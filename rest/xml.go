// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// jsonOnlyKeys are escaped from XML serialization: the wire contract
// defines these response fields as JSON inside XML when the response
// format is XML.
var jsonOnlyKeys = map[string]struct{}{
	"TemplateBody": {},
	"Metadata":     {},
}

// XMLSerializer renders action results as XML. The result is assumed
// to be a mapping with a single key, which becomes the root element.
// Sequences become repeated <member> children and nested mappings
// recurse by key.
type XMLSerializer struct{}

// ToXML encodes data.
func (s XMLSerializer) ToXML(data map[string]any) ([]byte, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("xml serialization expects a single key mapping, got %d keys", len(data))
	}

	var buf bytes.Buffer
	for root, v := range data {
		err := writeElement(&buf, root, v)
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Default is the fallback serialize method.
func (s XMLSerializer) Default(ctx context.Context, resp *Response, result any) error {
	data, ok := result.(map[string]any)
	if !ok {
		return fmt.Errorf("xml serialization expects a mapping result, got %T", result)
	}

	b, err := s.ToXML(data)
	if err != nil {
		return err
	}
	resp.Header.Set("Content-Type", "application/xml")
	resp.Body = b
	return nil
}

// Serializer returns the role registry backed by this serializer's
// default method.
func (s XMLSerializer) Serializer() *Serializer {
	return NewSerializer(s.Default)
}

func writeElement(buf *bytes.Buffer, name string, v any) error {
	buf.WriteString("<")
	buf.WriteString(name)
	buf.WriteString(">")

	err := writeValue(buf, v)
	if err != nil {
		return err
	}

	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteString(">")
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		// sorted for deterministic output
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if _, ok := jsonOnlyKeys[k]; ok {
				err := writeJSONElement(buf, k, x[k])
				if err != nil {
					return err
				}
				continue
			}
			err := writeElement(buf, k, x[k])
			if err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := 0; i < rv.Len(); i++ {
			err := writeElement(buf, "member", rv.Index(i).Interface())
			if err != nil {
				return err
			}
		}
		return nil
	}

	return writeText(buf, v)
}

// writeJSONElement holds the value as an embedded JSON string. Encoding
// through the JSON encoder keeps quotes intact so clients can reparse
// the text.
func writeJSONElement(buf *bytes.Buffer, name string, v any) error {
	buf.WriteString("<")
	buf.WriteString(name)
	buf.WriteString(">")

	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		err = xml.EscapeText(buf, b)
		if err != nil {
			return err
		}
	}

	buf.WriteString("</")
	buf.WriteString(name)
	buf.WriteString(">")
	return nil
}

func writeText(buf *bytes.Buffer, v any) error {
	var s string
	switch x := v.(type) {
	case time.Time:
		s = x.Format(time.RFC3339)
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	return xml.EscapeText(buf, []byte(s))
}

// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/meterflow/meterflow/httperr"
	"github.com/meterflow/meterflow/rest"
	"github.com/meterflow/meterflow/storage"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MetricsDeserializer parses ingest payloads. A JSON body carries an
// explicit sample batch; anything else is treated as the prometheus
// text exposition format.
type MetricsDeserializer struct {
	json rest.JSONDeserializer
}

// Deserializer returns the role registry for the metrics resource.
func (d MetricsDeserializer) Deserializer() *rest.Deserializer {
	return rest.NewDeserializer(d.json.Default).
		Action("ingest", d.Ingest)
}

type samplePayload struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
}

type ingestPayload struct {
	Samples []samplePayload `json:"samples"`
}

// Ingest extracts the sample batch from the request body.
func (d MetricsDeserializer) Ingest(ctx context.Context, req *rest.Request) (rest.Args, error) {
	body, err := req.Body()
	if err != nil {
		return nil, httperr.MalformedRequest(err.Error())
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, httperr.MalformedRequest("request body is empty")
	}

	var samples []storage.Sample
	if trimmed[0] == '{' {
		samples, err = parseJSONSamples(body)
	} else {
		samples, err = parseTextSamples(body)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, httperr.MalformedRequest("no samples provided")
	}

	return rest.Args{"samples": samples}, nil
}

func parseJSONSamples(body []byte) ([]storage.Sample, error) {
	var payload ingestPayload
	err := json.Unmarshal(body, &payload)
	if err != nil {
		return nil, httperr.MalformedRequest(err.Error())
	}

	samples := make([]storage.Sample, 0, len(payload.Samples))
	for _, p := range payload.Samples {
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		samples = append(samples, storage.Sample{
			Name:      p.Name,
			Value:     p.Value,
			Labels:    p.Labels,
			Timestamp: ts,
		})
	}
	return samples, nil
}

// parseTextSamples flattens a text exposition payload into samples.
// Summary and histogram families carry composite values and are not
// part of the ingest surface, so their series are skipped.
func parseTextSamples(body []byte) ([]storage.Sample, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(bytes.NewReader(body))
	if err != nil {
		return nil, httperr.MalformedRequest(err.Error())
	}

	var samples []storage.Sample
	for name, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
			case dto.MetricType_UNTYPED:
				value = m.GetUntyped().GetValue()
			default:
				continue
			}

			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}

			ts := time.Now().UTC()
			if ms := m.GetTimestampMs(); ms != 0 {
				ts = time.UnixMilli(ms).UTC()
			}

			samples = append(samples, storage.Sample{
				Name:      name,
				Value:     value,
				Labels:    labels,
				Timestamp: ts,
			})
		}
	}
	return samples, nil
}

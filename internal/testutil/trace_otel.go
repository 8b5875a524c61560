// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package testutil

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// OpenTelemetryTestExporter is a test utility exporter. It should be created
// with NewOpenTelemetryTestExporter.
type OpenTelemetryTestExporter struct {
	exporter *tracetest.InMemoryExporter
	tp       *sdktrace.TracerProvider
}

// NewOpenTelemetryTestExporter creates a OpenTelemetryTestExporter with
// underlying InMemoryExporter and TracerProvider from OpenTelemetry, and
// installs the provider globally.
func NewOpenTelemetryTestExporter() *OpenTelemetryTestExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return &OpenTelemetryTestExporter{
		exporter: exporter,
		tp:       tp,
	}
}

// Spans returns the current in-memory stored spans.
func (te *OpenTelemetryTestExporter) Spans() tracetest.SpanStubs {
	return te.exporter.GetSpans()
}

// Unregister shuts down the underlying OpenTelemetry TracerProvider.
func (te *OpenTelemetryTestExporter) Unregister(ctx context.Context) {
	te.tp.Shutdown(ctx)
}

// MetricReader collects metrics recorded through its MeterProvider on demand.
type MetricReader struct {
	reader   *sdkmetric.ManualReader
	Provider *sdkmetric.MeterProvider
}

// NewMetricReader returns a MetricReader backed by a manual reader. The
// provider is not installed globally; pass it to the code under test.
func NewMetricReader() *MetricReader {
	reader := sdkmetric.NewManualReader()
	return &MetricReader{
		reader:   reader,
		Provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// Int64Sum returns the total recorded for the named int64 counter across data
// points whose attributes contain every attribute in match.
func (mr *MetricReader) Int64Sum(ctx context.Context, name string, match ...attribute.KeyValue) (int64, error) {
	var rm metricdata.ResourceMetrics
	if err := mr.reader.Collect(ctx, &rm); err != nil {
		return 0, err
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, match) {
					total += dp.Value
				}
			}
		}
	}
	return total, nil
}

func hasAll(set attribute.Set, match []attribute.KeyValue) bool {
	for _, kv := range match {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}

// Shutdown releases the meter provider.
func (mr *MetricReader) Shutdown(ctx context.Context) {
	mr.Provider.Shutdown(ctx)
}

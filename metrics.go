// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package streamreader

import (
	"context"

	"cloud.google.com/go/streamreader/internal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc/codes"
)

const (
	meterName = "cloud.google.com/go/streamreader"

	metricAttemptCount   = "streamreader/attempt_count"
	metricOperationCount = "streamreader/operation_count"
	metricRetryCount     = "streamreader/retry_count"

	attrMethod = "method"
	attrStatus = "status"
)

type readerMetrics struct {
	attempts   metric.Int64Counter
	operations metric.Int64Counter
	retries    metric.Int64Counter
}

func newReaderMetrics(mp metric.MeterProvider) *readerMetrics {
	meter := mp.Meter(meterName, metric.WithInstrumentationVersion(internal.Version))
	m := &readerMetrics{}
	// Instrument creation only fails on invalid names; the noop instruments
	// returned alongside the error are still usable.
	m.attempts, _ = meter.Int64Counter(metricAttemptCount,
		metric.WithDescription("Number of stream attempts opened."),
		metric.WithUnit("1"))
	m.operations, _ = meter.Int64Counter(metricOperationCount,
		metric.WithDescription("Number of streams that reached a terminal state."),
		metric.WithUnit("1"))
	m.retries, _ = meter.Int64Counter(metricRetryCount,
		metric.WithDescription("Number of times a stream was resumed after a failure."),
		metric.WithUnit("1"))
	return m
}

func (m *readerMetrics) recordAttempt(ctx context.Context, method string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(attrMethod, method)))
}

func (m *readerMetrics) recordRetry(ctx context.Context, method string, code codes.Code) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, code.String())))
}

func (m *readerMetrics) recordOperation(ctx context.Context, method string, code codes.Code) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrStatus, code.String())))
}

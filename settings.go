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
	"log/slog"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultMaxRetries is the number of consecutive retryable failures
	// without progress tolerated before a Reader gives up.
	DefaultMaxRetries = 10

	// DefaultMaxBytesBetweenResumeTokens is the default number of bytes a
	// Reader buffers while waiting for a resume token.
	DefaultMaxBytesBetweenResumeTokens = 128 * 1024 * 1024
)

// DefaultBackoff is the pause policy used between attempts when the server
// does not say how long to wait.
var DefaultBackoff = gax.Backoff{
	Initial:    20 * time.Millisecond,
	Max:        32 * time.Second,
	Multiplier: 1.3,
}

// Settings configures a Reader. The zero value of every field selects its
// default.
type Settings struct {
	// AllowImmediateTimeouts makes a timeout of zero seconds expire each
	// attempt immediately instead of disabling the deadline.
	AllowImmediateTimeouts bool

	// Logger receives diagnostic records. It is wrapped with the gax
	// environment-driven logger, so a nil Logger logs only when
	// GOOGLE_SDK_GO_LOGGING_LEVEL is set.
	Logger *slog.Logger

	// Backoff controls the pause between attempts.
	Backoff gax.Backoff

	// MaxRetries bounds consecutive retryable failures that make no progress.
	// A negative value removes the bound.
	MaxRetries int

	// MaxRetryElapsed bounds how long a streak of failures may last. Zero
	// means unbounded.
	MaxRetryElapsed time.Duration

	// MaxBytesBetweenResumeTokens is how much data is buffered while waiting
	// for a resume token before the Reader gives up on being resumable.
	MaxBytesBetweenResumeTokens int

	// IsRetryable reports whether a failed attempt may be resumed.
	IsRetryable func(error) bool

	// MeterProvider receives the Reader's metrics.
	MeterProvider metric.MeterProvider

	// Clock measures MaxRetryElapsed.
	Clock clockwork.Clock
}

// DefaultSettings returns the settings a Reader uses when none are given.
func DefaultSettings() *Settings {
	return &Settings{
		Backoff:                     DefaultBackoff,
		MaxRetries:                  DefaultMaxRetries,
		MaxBytesBetweenResumeTokens: DefaultMaxBytesBetweenResumeTokens,
		IsRetryable:                 DefaultRetryable,
		MeterProvider:               otel.GetMeterProvider(),
		Clock:                       clockwork.NewRealClock(),
	}
}

// Copy returns a copy of s.
func (s *Settings) Copy() *Settings {
	if s == nil {
		return DefaultSettings()
	}
	c := *s
	return &c
}

// resolve returns a copy of s with zero fields replaced by defaults.
func (s *Settings) resolve() Settings {
	d := DefaultSettings()
	if s == nil {
		d.Logger = internallog.New(nil)
		return *d
	}
	r := *s
	r.Logger = internallog.New(s.Logger)
	if r.Backoff == (gax.Backoff{}) {
		r.Backoff = d.Backoff
	}
	switch {
	case r.MaxRetries == 0:
		r.MaxRetries = d.MaxRetries
	case r.MaxRetries < 0:
		r.MaxRetries = 0
	}
	if r.MaxBytesBetweenResumeTokens <= 0 {
		r.MaxBytesBetweenResumeTokens = d.MaxBytesBetweenResumeTokens
	}
	if r.IsRetryable == nil {
		r.IsRetryable = d.IsRetryable
	}
	if r.MeterProvider == nil {
		r.MeterProvider = d.MeterProvider
	}
	if r.Clock == nil {
		r.Clock = d.Clock
	}
	return r
}

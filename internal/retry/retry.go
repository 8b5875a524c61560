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

// Package retry tracks how much retrying an operation is still allowed to do.
package retry

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Budget bounds a streak of consecutive retryable failures, both by count and
// by the time elapsed since the first failure of the streak. A zero limit
// disables that bound. A Budget is not safe for concurrent use.
type Budget struct {
	// MaxRetries is the number of retryable failures tolerated in one streak.
	MaxRetries int
	// MaxElapsed is how long a streak may last, measured from its first failure.
	MaxElapsed time.Duration

	clock clockwork.Clock
	start time.Time
	errs  []error
}

// NewBudget returns a Budget that measures elapsed time with clock. A nil
// clock means the wall clock.
func NewBudget(maxRetries int, maxElapsed time.Duration, clock clockwork.Clock) *Budget {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Budget{
		MaxRetries: maxRetries,
		MaxElapsed: maxElapsed,
		clock:      clock,
	}
}

// Record registers a retryable failure. It returns nil while the streak is
// within budget and a *RetryExhaustedError once either bound is reached.
func (b *Budget) Record(err error) error {
	now := b.clock.Now()
	if len(b.errs) == 0 {
		b.start = now
	}
	b.errs = append(b.errs, err)
	elapsed := now.Sub(b.start)
	if (b.MaxRetries > 0 && len(b.errs) > b.MaxRetries) ||
		(b.MaxElapsed > 0 && elapsed >= b.MaxElapsed) {
		return &RetryExhaustedError{
			MaxRetries: b.MaxRetries,
			Elapsed:    elapsed,
			Errors:     b.AllErrors(),
		}
	}
	return nil
}

// Reset ends the current streak. Callers invoke it once the operation makes
// progress again.
func (b *Budget) Reset() {
	b.errs = nil
	b.start = time.Time{}
}

// Failures reports the length of the current streak.
func (b *Budget) Failures() int {
	return len(b.errs)
}

// AllErrors returns a copy of the errors recorded in the current streak.
func (b *Budget) AllErrors() []error {
	if b.errs == nil {
		return nil
	}
	result := make([]error, len(b.errs))
	copy(result, b.errs)
	return result
}

// RetryExhaustedError is returned when a retry budget has been spent. It
// contains all the errors of the streak, which is useful for debugging the
// root cause of persistent failures.
type RetryExhaustedError struct {
	// MaxRetries is the configured maximum number of retries.
	MaxRetries int
	// Elapsed is the time between the first and the last failure.
	Elapsed time.Duration
	// Errors contains the consecutive errors, oldest first.
	Errors []error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("retry exhausted after %d attempts with no errors recorded", e.MaxRetries)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("retry exhausted after %d attempts in %v; errors:\n", len(e.Errors), e.Elapsed))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  [%d]: %v\n", i+1, err))
	}
	return sb.String()
}

// Unwrap returns the last error in the chain, allowing errors.Is and errors.As
// to work with the most recent error.
func (e *RetryExhaustedError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// FirstError returns the first error that occurred, or nil if no errors
// were collected.
func (e *RetryExhaustedError) FirstError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}

// WrapContextError returns an error which allows introspection of both the
// context error that interrupted a retry and the last error from the service.
// It returns ctxErr unchanged when there is no last error.
func WrapContextError(ctxErr, last error) error {
	if last == nil {
		return ctxErr
	}
	return wrappedCallErr{ctxErr: ctxErr, wrappedErr: last}
}

type wrappedCallErr struct {
	ctxErr     error
	wrappedErr error
}

func (e wrappedCallErr) Error() string {
	return fmt.Sprintf("retry failed with %v; last error: %v", e.ctxErr, e.wrappedErr)
}

func (e wrappedCallErr) Unwrap() error {
	return e.wrappedErr
}

// Is allows errors.Is to match the error from the call as well as context
// sentinel errors.
func (e wrappedCallErr) Is(err error) bool {
	return e.ctxErr == err || e.wrappedErr == err
}

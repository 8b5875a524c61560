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
	"time"
)

// Expiration describes how long a single attempt of a call may run before it
// is treated as failed. The zero value never expires.
type Expiration struct {
	timeout time.Duration
	set     bool
}

// ExpirationNone returns an Expiration that never expires.
func ExpirationNone() Expiration {
	return Expiration{}
}

// ExpirationFromTimeout returns an Expiration that expires d after each
// attempt starts. A d of zero or less expires immediately.
func ExpirationFromTimeout(d time.Duration) Expiration {
	if d < 0 {
		d = 0
	}
	return Expiration{timeout: d, set: true}
}

// ConvertTimeoutToExpiration converts a timeout in seconds into an
// Expiration. A timeout of zero means an infinite timeout, unless
// allowImmediateTimeouts is true, in which case it means an immediate one.
func ConvertTimeoutToExpiration(timeoutSeconds int, allowImmediateTimeouts bool) Expiration {
	if timeoutSeconds == 0 && !allowImmediateTimeouts {
		return ExpirationNone()
	}
	return ExpirationFromTimeout(time.Duration(timeoutSeconds) * time.Second)
}

// Timeout returns the per-attempt timeout, and false if e never expires.
func (e Expiration) Timeout() (time.Duration, bool) {
	return e.timeout, e.set
}

// String implements fmt.Stringer.
func (e Expiration) String() string {
	if !e.set {
		return "none"
	}
	return e.timeout.String()
}

// immediate reports whether every attempt expires as soon as it starts.
func (e Expiration) immediate() bool {
	return e.set && e.timeout <= 0
}

// attemptContext derives the context of one attempt from parent.
func (e Expiration) attemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	if !e.set {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, e.timeout)
}

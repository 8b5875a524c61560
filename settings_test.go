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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/googleapis/gax-go/v2"
)

func TestSettingsDefaults(t *testing.T) {
	got := (*Settings)(nil).resolve()
	if got.Logger == nil || got.IsRetryable == nil || got.MeterProvider == nil || got.Clock == nil {
		t.Fatalf("nil fields after resolve: %+v", got)
	}
	if got.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries: got %d, want %d", got.MaxRetries, DefaultMaxRetries)
	}
	if got.MaxBytesBetweenResumeTokens != DefaultMaxBytesBetweenResumeTokens {
		t.Errorf("MaxBytesBetweenResumeTokens: got %d", got.MaxBytesBetweenResumeTokens)
	}
	if got.Backoff != DefaultBackoff {
		t.Errorf("Backoff: got %+v, want %+v", got.Backoff, DefaultBackoff)
	}
	if got.MaxRetryElapsed != 0 || got.AllowImmediateTimeouts {
		t.Errorf("got %+v, want unbounded elapsed and no immediate timeouts", got)
	}
}

func TestSettingsResolveKeepsCallerValues(t *testing.T) {
	s := &Settings{
		AllowImmediateTimeouts:      true,
		Backoff:                     gax.Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2},
		MaxRetries:                  3,
		MaxRetryElapsed:             time.Minute,
		MaxBytesBetweenResumeTokens: 1024,
	}
	got := s.resolve()
	want := *s
	opts := cmp.Options{
		cmp.AllowUnexported(gax.Backoff{}),
		cmpopts.IgnoreFields(Settings{}, "Logger", "IsRetryable", "MeterProvider", "Clock"),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("resolve mismatch (-want +got):\n%s", diff)
	}

	if got := (&Settings{MaxRetries: -1}).resolve().MaxRetries; got != 0 {
		t.Errorf("negative MaxRetries resolved to %d, want 0 (unbounded)", got)
	}
}

func TestSettingsCopy(t *testing.T) {
	s := DefaultSettings()
	c := s.Copy()
	c.MaxRetries = 1
	if s.MaxRetries == c.MaxRetries {
		t.Error("Copy shares state with its source")
	}
	if (*Settings)(nil).Copy() == nil {
		t.Error("Copy of nil settings returned nil")
	}
}

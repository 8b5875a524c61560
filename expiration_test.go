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
)

func TestConvertTimeoutToExpiration(t *testing.T) {
	for _, test := range []struct {
		seconds        int
		allowImmediate bool
		want           Expiration
	}{
		{0, false, ExpirationNone()},
		{0, true, ExpirationFromTimeout(0)},
		{1, false, ExpirationFromTimeout(time.Second)},
		{1, true, ExpirationFromTimeout(time.Second)},
		{60, false, ExpirationFromTimeout(time.Minute)},
	} {
		if got := ConvertTimeoutToExpiration(test.seconds, test.allowImmediate); got != test.want {
			t.Errorf("ConvertTimeoutToExpiration(%d, %t) = %v, want %v", test.seconds, test.allowImmediate, got, test.want)
		}
	}
}

func TestExpirationImmediate(t *testing.T) {
	for _, test := range []struct {
		e    Expiration
		want bool
	}{
		{ExpirationNone(), false},
		{ExpirationFromTimeout(0), true},
		{ExpirationFromTimeout(-time.Second), true},
		{ExpirationFromTimeout(time.Millisecond), false},
	} {
		if got := test.e.immediate(); got != test.want {
			t.Errorf("%v.immediate() = %t, want %t", test.e, got, test.want)
		}
	}
}

func TestExpirationTimeout(t *testing.T) {
	if _, ok := ExpirationNone().Timeout(); ok {
		t.Error("ExpirationNone has a timeout")
	}
	if d, ok := ExpirationFromTimeout(-time.Second).Timeout(); !ok || d != 0 {
		t.Errorf("negative timeout: got (%v, %t), want (0, true)", d, ok)
	}
	if got, want := ExpirationNone().String(), "none"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := ExpirationFromTimeout(90*time.Second).String(), "1m30s"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

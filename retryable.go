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
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Messages of INTERNAL errors caused by the connection being reset rather
// than by the server rejecting the call.
var retryableInternalErrMsgs = []string{
	"stream terminated by RST_STREAM",
	"Received Rst stream",
	"RST_STREAM closed stream",
	"Received RST_STREAM",
	"Received unexpected EOS on DATA frame from server",
	"transport is closing",
}

// DefaultRetryable reports whether err is a transient transport failure
// after which a stream may be resumed.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	case codes.ResourceExhausted:
		_, ok := retryDelay(err)
		return ok
	case codes.Internal:
		for _, msg := range retryableInternalErrMsgs {
			if strings.Contains(s.Message(), msg) {
				return true
			}
		}
	case codes.Unknown:
		return strings.Contains(s.Message(), "unexpected EOF")
	}
	return false
}

// retryDelay extracts the delay the server asked for in a RetryInfo detail.
func retryDelay(err error) (time.Duration, bool) {
	ae, ok := apierror.FromError(err)
	if !ok {
		return 0, false
	}
	info := ae.Details().RetryInfo
	if info == nil || info.GetRetryDelay() == nil {
		return 0, false
	}
	d := info.GetRetryDelay().AsDuration()
	if d < 0 {
		return 0, false
	}
	return d, true
}

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
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/streamreader/internal/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrClosed is wrapped by the error Next returns after Close.
var ErrClosed = errors.New("streamreader: reader closed")

// ErrorKind classifies the errors a Reader reports.
type ErrorKind int

const (
	// KindRetryable is a transient transport failure. The Reader resumes
	// after it, so it is never returned to callers.
	KindRetryable ErrorKind = iota
	// KindFatal is a failure that cannot be resumed.
	KindFatal
	// KindCancelled means the caller cancelled or closed the stream.
	KindCancelled
	// KindRetryBudgetExhausted means retryable failures kept happening
	// until the retry budget ran out.
	KindRetryBudgetExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "Retryable"
	case KindFatal:
		return "Fatal"
	case KindCancelled:
		return "Cancelled"
	case KindRetryBudgetExhausted:
		return "RetryBudgetExhausted"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the terminal error of a Reader.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Code is the canonical gRPC code of the failure.
	Code codes.Code
	// Desc is the description of the failure.
	Desc string
	// RequestID identifies the logical stream in server logs.
	RequestID string
	// Attempts is the number of attempts the Reader made.
	Attempts int

	err error
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return "streamreader: OK"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "streamreader: code = %q, desc = %q", e.Code, e.Desc)
	if e.Kind == KindRetryBudgetExhausted {
		fmt.Fprintf(&b, ", retry budget exhausted after %d attempts", e.Attempts)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, ", requestID = %q", e.RequestID)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.err
}

// GRPCStatus returns the status of the failure so that status.FromError and
// status.Code work on an *Error.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Desc)
}

// ErrCode extracts the canonical error code from an error.
func ErrCode(err error) codes.Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return status.Code(err)
}

// ErrDesc extracts the description from an error.
func ErrDesc(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Desc
	}
	if s, ok := status.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}

func errorf(code codes.Code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindFatal, Code: code, Desc: fmt.Sprintf(format, args...)}
}

// toError wraps cause into the terminal error of a reader.
func toError(kind ErrorKind, cause error, requestID string, attempts int) *Error {
	e := &Error{
		Kind:      kind,
		RequestID: requestID,
		Attempts:  attempts,
		err:       cause,
	}
	switch {
	case errors.Is(cause, ErrClosed):
		e.Code, e.Desc = codes.Canceled, ErrClosed.Error()
	case kind == KindCancelled && errors.Is(cause, context.DeadlineExceeded):
		e.Code, e.Desc = codes.DeadlineExceeded, context.DeadlineExceeded.Error()
	case kind == KindCancelled && errors.Is(cause, context.Canceled):
		e.Code, e.Desc = codes.Canceled, context.Canceled.Error()
	default:
		last := cause
		var re *retry.RetryExhaustedError
		if errors.As(cause, &re) && re.Unwrap() != nil {
			last = re.Unwrap()
		}
		if s, ok := status.FromError(last); ok {
			e.Code, e.Desc = s.Code(), s.Message()
		} else {
			e.Code, e.Desc = status.Code(last), last.Error()
		}
	}
	return e
}

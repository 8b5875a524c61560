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
	"io"
	"log/slog"

	"cloud.google.com/go/streamreader/internal/retry"
	"cloud.google.com/go/streamreader/internal/trace"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// Receiver is one attempt of a server-streaming call. Recv returns io.EOF
// when the server has sent everything. Every grpc.ServerStreamingClient
// implements Receiver.
type Receiver[Resp proto.Message] interface {
	Recv() (Resp, error)
}

// Stream tells a Reader how to open attempts of a call and how to resume
// it. All function fields are required.
type Stream[Req, Resp proto.Message] struct {
	// Method names the call in logs, spans and metrics.
	Method string

	// Open starts one attempt. The attempt must stop when ctx is done.
	Open func(ctx context.Context, req Req) (Receiver[Resp], error)

	// WithResumeToken returns a request that continues the stream after
	// the result that carried token. It may modify and return req, which
	// is always the Reader's private copy.
	WithResumeToken func(req Req, token []byte) Req

	// ResumeToken returns the resume token carried by resp, if any.
	ResumeToken func(resp Resp) []byte
}

// State is the lifecycle state of a Reader.
type State int

const (
	// StateCreated means no attempt has been opened yet.
	StateCreated State = iota
	// StateActive means an attempt is open and results are being received.
	StateActive
	// StateReconnecting means the last attempt failed and a new one will be
	// opened after a backoff.
	StateReconnecting
	// StateExhausted means the server ended the stream normally.
	StateExhausted
	// StateFailed means the stream ended with an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateActive:
		return "Active"
	case StateReconnecting:
		return "Reconnecting"
	case StateExhausted:
		return "Exhausted"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Reader pulls results of a server-streaming call one at a time, resuming
// the call transparently after transient failures.
type Reader[Req, Resp proto.Message] struct {
	ctx        context.Context
	stream     Stream[Req, Resp]
	req        Req
	expiration Expiration
	settings   Settings
	logger     *slog.Logger
	backoff    gax.Backoff
	budget     *retry.Budget
	metrics    *readerMetrics
	id         string

	state         State
	recv          Receiver[Resp]
	attemptCtx    context.Context
	cancelAttempt context.CancelFunc
	attempts      int

	// resumable is false when results were released without a resume token
	// covering them, so a new attempt could not skip them.
	resumable                bool
	resumeToken              []byte
	bytesBetweenResumeTokens int
	q                        chunkQueue[Resp]
	// ready is the number of leading results in q that may be handed out.
	ready int

	lastErr error
	err     error

	// stateWitness, if set, is called on every state change. For testing.
	stateWitness func(State)
}

// New returns a Reader that streams the results of req. Each attempt runs
// under the expiration derived from timeoutSeconds by
// ConvertTimeoutToExpiration. A nil settings selects the defaults.
//
// The Reader keeps its own copy of req; later changes by the caller have no
// effect. Nothing is sent until the first call to Next.
func New[Req, Resp proto.Message](ctx context.Context, req Req, stream Stream[Req, Resp], settings *Settings, timeoutSeconds int) (*Reader[Req, Resp], error) {
	if timeoutSeconds < 0 {
		return nil, errorf(codes.InvalidArgument, "timeout must not be negative, got %d", timeoutSeconds)
	}
	allowImmediate := settings != nil && settings.AllowImmediateTimeouts
	return NewWithExpiration(ctx, req, stream, settings, ConvertTimeoutToExpiration(timeoutSeconds, allowImmediate))
}

// NewWithExpiration is like New but takes the per-attempt Expiration
// directly.
func NewWithExpiration[Req, Resp proto.Message](ctx context.Context, req Req, stream Stream[Req, Resp], settings *Settings, exp Expiration) (*Reader[Req, Resp], error) {
	if isNil(req) {
		return nil, errorf(codes.InvalidArgument, "request must not be nil")
	}
	if stream.Open == nil || stream.WithResumeToken == nil || stream.ResumeToken == nil {
		return nil, errorf(codes.InvalidArgument, "stream must define Open, WithResumeToken and ResumeToken")
	}
	s := settings.resolve()
	r := &Reader[Req, Resp]{
		ctx:        trace.StartSpan(ctx, "cloud.google.com/go/streamreader.Reader/"+stream.Method),
		stream:     stream,
		req:        proto.Clone(req).(Req),
		expiration: exp,
		settings:   s,
		logger:     s.Logger,
		backoff:    s.Backoff,
		budget:     retry.NewBudget(s.MaxRetries, s.MaxRetryElapsed, s.Clock),
		metrics:    newReaderMetrics(s.MeterProvider),
		id:         newRequestID(),
		resumable:  true,
	}
	return r, nil
}

func isNil(m proto.Message) bool {
	return m == nil || !m.ProtoReflect().IsValid()
}

// Next returns the next result. It returns iterator.Done once the stream has
// ended, and keeps returning it afterwards. If the stream fails, every
// result that was already safe to deliver is returned first, followed by
// the same *Error on this and every later call.
func (r *Reader[Req, Resp]) Next() (Resp, error) {
	var zero Resp
	for {
		if r.ready > 0 {
			r.ready--
			return r.q.pop(), nil
		}
		switch r.state {
		case StateExhausted:
			return zero, iterator.Done
		case StateFailed:
			return zero, r.err
		case StateCreated:
			r.open()
		case StateReconnecting:
			r.reconnect()
		case StateActive:
			r.receive()
		}
	}
}

// Do calls f for each result until the stream ends, f returns an error, or
// the stream fails. It closes the Reader before returning. A stream that
// ends normally makes Do return nil.
func (r *Reader[Req, Resp]) Do(f func(Resp) error) error {
	defer r.Close()
	for {
		resp, err := r.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err = f(resp); err != nil {
			return err
		}
	}
}

// Close stops the stream and releases the in-flight attempt. After Close,
// Next returns an error wrapping ErrClosed, unless the stream had already
// ended or failed. Close must not be called concurrently with Next; cancel
// the context given to New to interrupt a blocked Next.
func (r *Reader[Req, Resp]) Close() {
	if r.state == StateExhausted || r.state == StateFailed {
		r.release()
		return
	}
	r.q.clear()
	r.ready = 0
	r.fail(KindCancelled, ErrClosed)
}

// State returns the current lifecycle state.
func (r *Reader[Req, Resp]) State() State {
	return r.state
}

// ResumeToken returns the most recent resume token received from the server.
func (r *Reader[Req, Resp]) ResumeToken() []byte {
	return r.resumeToken
}

// Attempts returns the number of attempts opened so far.
func (r *Reader[Req, Resp]) Attempts() int {
	return r.attempts
}

// RequestID returns the identifier sent with every attempt of the stream.
func (r *Reader[Req, Resp]) RequestID() string {
	return r.id
}

func (r *Reader[Req, Resp]) changeState(target State) {
	r.state = target
	if r.stateWitness != nil {
		r.stateWitness(target)
	}
}

// open starts a new attempt from the last resume token.
func (r *Reader[Req, Resp]) open() {
	if err := r.ctx.Err(); err != nil {
		r.fail(KindCancelled, retry.WrapContextError(err, r.lastErr))
		return
	}
	if r.expiration.immediate() {
		// No attempt can outlive its deadline, so there is nothing to retry.
		r.fail(KindFatal, status.Errorf(codes.DeadlineExceeded, "attempt timeout of %v expired before the stream was opened", r.expiration))
		return
	}
	r.attempts++
	actx, cancel := r.expiration.attemptContext(r.ctx)
	actx = withRequestID(actx, r.id, r.attempts)
	r.attemptCtx, r.cancelAttempt = actx, cancel
	req := r.req
	if len(r.resumeToken) > 0 {
		req = r.stream.WithResumeToken(r.req, r.resumeToken)
	}
	r.changeState(StateActive)
	r.metrics.recordAttempt(r.ctx, r.stream.Method)
	r.logger.DebugContext(r.ctx, "streamreader: opening stream",
		"method", r.stream.Method,
		"requestID", attemptRequestID(r.id, r.attempts),
		"expiration", r.expiration.String(),
		"resumed", len(r.resumeToken) > 0)

	var err error
	if aerr := actx.Err(); aerr != nil {
		// The attempt expired before it started; don't bother the server.
		err = status.FromContextError(aerr).Err()
	} else {
		r.recv, err = r.stream.Open(actx, req)
	}
	if err != nil {
		r.recv = nil
		r.handleError(err)
	}
}

// receive reads one result from the current attempt.
func (r *Reader[Req, Resp]) receive() {
	resp, err := r.recv.Recv()
	if err == io.EOF {
		r.finish()
		return
	}
	if err != nil {
		r.handleError(err)
		return
	}
	r.q.push(resp)
	if token := r.stream.ResumeToken(resp); len(token) > 0 {
		r.resumeToken = token
		r.bytesBetweenResumeTokens = 0
		r.resumable = true
		r.ready = r.q.len()
		r.budget.Reset()
		r.backoff = r.settings.Backoff
		return
	}
	if !r.resumable {
		r.ready = r.q.len()
		return
	}
	r.bytesBetweenResumeTokens += proto.Size(resp)
	if r.bytesBetweenResumeTokens > r.settings.MaxBytesBetweenResumeTokens {
		r.logger.WarnContext(r.ctx, "streamreader: too much data without a resume token, stream can no longer be resumed",
			"method", r.stream.Method,
			"requestID", r.id,
			"bytes", r.bytesBetweenResumeTokens)
		r.resumable = false
		r.ready = r.q.len()
	}
}

// handleError decides what follows a failed attempt.
func (r *Reader[Req, Resp]) handleError(err error) {
	r.cancelAttempt()
	if perr := r.ctx.Err(); perr != nil {
		r.fail(KindCancelled, retry.WrapContextError(perr, err))
		return
	}
	if errors.Is(r.attemptCtx.Err(), context.DeadlineExceeded) && status.Code(err) != codes.DeadlineExceeded {
		err = status.FromContextError(r.attemptCtx.Err()).Err()
	}
	if !r.settings.IsRetryable(err) {
		r.fail(KindFatal, err)
		return
	}
	if !r.resumable {
		r.logger.DebugContext(r.ctx, "streamreader: cannot resume stream without a resume token",
			"method", r.stream.Method, "requestID", r.id, "error", err)
		r.fail(KindFatal, err)
		return
	}
	if exhausted := r.budget.Record(err); exhausted != nil {
		r.fail(KindRetryBudgetExhausted, exhausted)
		return
	}
	// Results after the last resume token will be sent again.
	r.q.truncate(r.ready)
	r.bytesBetweenResumeTokens = 0
	r.lastErr = err
	r.changeState(StateReconnecting)
}

// reconnect waits out the backoff and opens the next attempt.
func (r *Reader[Req, Resp]) reconnect() {
	delay, ok := retryDelay(r.lastErr)
	if !ok {
		delay = r.backoff.Pause()
	}
	code := status.Code(r.lastErr)
	r.metrics.recordRetry(r.ctx, r.stream.Method, code)
	trace.TracePrintf(r.ctx, map[string]interface{}{
		"attempt": r.attempts,
		"code":    code.String(),
		"delay":   delay.String(),
	}, "Retrying stream after %v", code)
	r.logger.WarnContext(r.ctx, "streamreader: retrying stream",
		"method", r.stream.Method,
		"requestID", r.id,
		"attempt", r.attempts,
		"delay", delay,
		"error", r.lastErr)
	if err := gax.Sleep(r.ctx, delay); err != nil {
		r.fail(KindCancelled, retry.WrapContextError(err, r.lastErr))
		return
	}
	r.open()
}

// finish ends the stream after the server closed it normally.
func (r *Reader[Req, Resp]) finish() {
	r.ready = r.q.len()
	r.changeState(StateExhausted)
	r.release()
	r.metrics.recordOperation(r.ctx, r.stream.Method, codes.OK)
	trace.EndSpan(r.ctx, nil)
	r.logger.DebugContext(r.ctx, "streamreader: stream finished",
		"method", r.stream.Method, "requestID", r.id, "attempts", r.attempts)
}

// fail ends the stream with a terminal error. Results that are already
// safe to deliver are kept.
func (r *Reader[Req, Resp]) fail(kind ErrorKind, cause error) {
	r.q.truncate(r.ready)
	e := toError(kind, cause, r.id, r.attempts)
	r.err = e
	r.changeState(StateFailed)
	r.release()
	r.metrics.recordOperation(r.ctx, r.stream.Method, e.Code)
	trace.EndSpan(r.ctx, e)
	r.logger.DebugContext(r.ctx, "streamreader: stream failed",
		"method", r.stream.Method,
		"requestID", r.id,
		"kind", kind.String(),
		"error", e)
}

func (r *Reader[Req, Resp]) release() {
	if r.cancelAttempt != nil {
		r.cancelAttempt()
	}
	r.recv = nil
}

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
package sqlstream

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"cloud.google.com/go/streamreader"
	"cloud.google.com/go/streamreader/internal"
	"github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/googleapis/gax-go/v2/internallog/grpclog"
	"google.golang.org/api/option"
	"google.golang.org/api/option/internaloption"
	gtransport "google.golang.org/api/transport/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

const (
	serviceName = "google.spanner.v1.Spanner"

	// resourcePrefixHeader is the name of the metadata header used to
	// indicate the resource being operated on.
	resourcePrefixHeader = "google-cloud-resource-prefix"
)

// SqlReader is the reader returned by SqlStreamReader.
type SqlReader = streamreader.Reader[*spannerpb.ExecuteSqlRequest, *spannerpb.PartialResultSet]

// DefaultAuthScopes reports the default set of authentication scopes to use
// with this package.
func DefaultAuthScopes() []string {
	return []string{
		"https://www.googleapis.com/auth/cloud-platform",
		"https://www.googleapis.com/auth/spanner.data",
	}
}

func defaultGRPCClientOptions() []option.ClientOption {
	return []option.ClientOption{
		internaloption.WithDefaultEndpoint("spanner.googleapis.com:443"),
		internaloption.WithDefaultEndpointTemplate("spanner.UNIVERSE_DOMAIN:443"),
		internaloption.WithDefaultMTLSEndpoint("spanner.mtls.googleapis.com:443"),
		internaloption.WithDefaultUniverseDomain("googleapis.com"),
		internaloption.WithDefaultAudience("https://spanner.googleapis.com/"),
		internaloption.WithDefaultScopes(DefaultAuthScopes()...),
		internaloption.EnableJwtWithScope(),
		option.WithGRPCDialOption(grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(math.MaxInt32))),
	}
}

// Client issues streaming SQL queries against Cloud Spanner.
type Client struct {
	conn     *grpc.ClientConn
	client   spannerpb.SpannerClient
	settings *Settings
	logger   *slog.Logger

	// The x-goog-* metadata to be sent with each request.
	xGoogHeaders []string
}

// NewClient creates a new Client. A nil settings selects DefaultSettings.
//
// If the environment variable SPANNER_EMULATOR_HOST is set, the client
// connects to the emulator at that address without TLS or credentials.
func NewClient(ctx context.Context, settings *Settings, opts ...option.ClientOption) (*Client, error) {
	allOpts := defaultGRPCClientOptions()
	if emulatorAddr := os.Getenv("SPANNER_EMULATOR_HOST"); emulatorAddr != "" {
		allOpts = append(allOpts,
			option.WithEndpoint(emulatorAddr),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			option.WithoutAuthentication(),
			internaloption.SkipDialSettingsValidation(),
		)
	}
	allOpts = append(allOpts, opts...)
	conn, err := gtransport.Dial(ctx, allOpts...)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = DefaultSettings()
	} else {
		settings = settings.Copy()
	}
	if settings.Logger == nil {
		settings.Logger = internaloption.GetLogger(opts)
	}
	return NewClientWithConn(conn, settings), nil
}

// NewClientWithConn creates a Client that uses conn. The Client takes
// ownership of conn and closes it in Close.
func NewClientWithConn(conn *grpc.ClientConn, settings *Settings) *Client {
	if settings == nil {
		settings = DefaultSettings()
	} else {
		settings = settings.Copy()
	}
	settings.Logger = internallog.New(settings.Logger)
	c := &Client{
		conn:     conn,
		client:   spannerpb.NewSpannerClient(conn),
		settings: settings,
		logger:   settings.Logger,
	}
	c.setGoogleClientInfo()
	return c
}

// setGoogleClientInfo sets the name and version of the application in
// the `x-goog-api-client` header passed on each request. Intended for
// use by Google-written clients.
func (c *Client) setGoogleClientInfo(keyval ...string) {
	kv := append([]string{"gl-go", gax.GoVersion}, keyval...)
	kv = append(kv, "gccl", internal.Version, "gax", gax.Version, "grpc", grpc.Version)
	c.xGoogHeaders = []string{
		"x-goog-api-client", gax.XGoogHeader(kv...),
	}
}

// Connection returns the underlying connection.
func (c *Client) Connection() *grpc.ClientConn {
	return c.conn
}

// Settings returns a copy of the client's settings.
func (c *Client) Settings() *Settings {
	return c.settings.Copy()
}

// Close closes the connection to the API service. The user should invoke
// this when the client is no longer required.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ExecuteSqlStream starts a streaming SQL query. Unlike SqlStreamReader the
// returned stream is not resumed after failures. The call runs under
// Settings.ExecuteSqlStreamTimeout unless ctx already has a deadline.
//
// The timeout is released when Recv returns an error, including io.EOF.
// Callers that stop reading early must cancel ctx to release it.
func (c *Client) ExecuteSqlStream(ctx context.Context, req *spannerpb.ExecuteSqlRequest, opts ...gax.CallOption) (spannerpb.Spanner_ExecuteStreamingSqlClient, error) {
	return c.executeSqlStream(ctx, req, c.settings.ExecuteSqlStreamTimeout, opts...)
}

func (c *Client) executeSqlStream(ctx context.Context, req *spannerpb.ExecuteSqlRequest, timeout time.Duration, opts ...gax.CallOption) (spannerpb.Spanner_ExecuteStreamingSqlClient, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "sqlstream: nil ExecuteSqlRequest")
	}
	hds := []string{"x-goog-request-params", fmt.Sprintf("%s=%v", "session", url.QueryEscape(req.GetSession()))}
	if db := databaseName(req.GetSession()); db != "" {
		hds = append(hds, resourcePrefixHeader, db)
	}
	hds = append(c.xGoogHeaders, hds...)
	ctx = gax.InsertMetadataIntoOutgoingContext(ctx, hds...)
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	callOpts := c.settings.ExecuteSqlStreamSettings
	opts = append(callOpts[0:len(callOpts):len(callOpts)], opts...)
	var resp spannerpb.Spanner_ExecuteStreamingSqlClient
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		c.logger.DebugContext(ctx, "api streaming client request", "serviceName", serviceName, "rpcName", "ExecuteStreamingSql", "request", grpclog.ProtoMessageRequest(ctx, req))
		resp, err = c.client.ExecuteStreamingSql(ctx, req, settings.GRPC...)
		return err
	}, opts...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnEnd{ServerStreamingClient: resp, cancel: cancel}, nil
}

// cancelOnEnd releases the call's timeout once the stream has ended.
type cancelOnEnd struct {
	grpc.ServerStreamingClient[spannerpb.PartialResultSet]
	cancel context.CancelFunc
}

func (s *cancelOnEnd) Recv() (*spannerpb.PartialResultSet, error) {
	prs, err := s.ServerStreamingClient.Recv()
	if err != nil {
		s.cancel()
	}
	return prs, err
}

// SqlStreamReader returns a Reader that runs req within session and resumes
// it after transient failures. Each attempt may run for timeoutSeconds; see
// Settings.ConvertTimeoutToExpiration for the meaning of zero. The caller's
// req is not modified.
func (c *Client) SqlStreamReader(ctx context.Context, req *spannerpb.ExecuteSqlRequest, session *spannerpb.Session, timeoutSeconds int) (*SqlReader, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "sqlstream: nil ExecuteSqlRequest")
	}
	if session == nil {
		return nil, status.Error(codes.InvalidArgument, "sqlstream: nil Session")
	}
	req = proto.Clone(req).(*spannerpb.ExecuteSqlRequest)
	req.Session = session.GetName()
	return streamreader.New(ctx, req, c.sqlStream(), c.settings.readerSettings(), timeoutSeconds)
}

func (c *Client) sqlStream() streamreader.Stream[*spannerpb.ExecuteSqlRequest, *spannerpb.PartialResultSet] {
	return streamreader.Stream[*spannerpb.ExecuteSqlRequest, *spannerpb.PartialResultSet]{
		Method: "ExecuteStreamingSql",
		Open: func(ctx context.Context, req *spannerpb.ExecuteSqlRequest) (streamreader.Receiver[*spannerpb.PartialResultSet], error) {
			// The reader owns the attempt deadline.
			stream, err := c.executeSqlStream(ctx, req, 0)
			if err != nil {
				return nil, err
			}
			return stream, nil
		},
		WithResumeToken: func(req *spannerpb.ExecuteSqlRequest, token []byte) *spannerpb.ExecuteSqlRequest {
			req.ResumeToken = token
			return req
		},
		ResumeToken: (*spannerpb.PartialResultSet).GetResumeToken,
	}
}

// CreateSession creates a session in database, of the form
// projects/P/instances/I/databases/D.
func (c *Client) CreateSession(ctx context.Context, database string, opts ...gax.CallOption) (*spannerpb.Session, error) {
	req := &spannerpb.CreateSessionRequest{Database: database}
	hds := []string{"x-goog-request-params", fmt.Sprintf("%s=%v", "database", url.QueryEscape(req.GetDatabase())), resourcePrefixHeader, database}
	hds = append(c.xGoogHeaders, hds...)
	ctx = gax.InsertMetadataIntoOutgoingContext(ctx, hds...)
	var resp *spannerpb.Session
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = executeRPC(ctx, c.client.CreateSession, req, settings.GRPC, c.logger, "CreateSession")
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteSession ends the named session.
func (c *Client) DeleteSession(ctx context.Context, name string, opts ...gax.CallOption) error {
	req := &spannerpb.DeleteSessionRequest{Name: name}
	hds := []string{"x-goog-request-params", fmt.Sprintf("%s=%v", "name", url.QueryEscape(req.GetName()))}
	if db := databaseName(name); db != "" {
		hds = append(hds, resourcePrefixHeader, db)
	}
	hds = append(c.xGoogHeaders, hds...)
	ctx = gax.InsertMetadataIntoOutgoingContext(ctx, hds...)
	return gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		_, err := executeRPC(ctx, c.client.DeleteSession, req, settings.GRPC, c.logger, "DeleteSession")
		return err
	}, opts...)
}

// databaseName returns the database part of a session name.
func databaseName(session string) string {
	if i := strings.Index(session, "/sessions/"); i >= 0 {
		return session[:i]
	}
	return ""
}

func executeRPC[I proto.Message, O proto.Message](ctx context.Context, fn func(context.Context, I, ...grpc.CallOption) (O, error), req I, opts []grpc.CallOption, logger *slog.Logger, rpc string) (O, error) {
	var zero O
	logger.DebugContext(ctx, "api request", "serviceName", serviceName, "rpcName", rpc, "request", grpclog.ProtoMessageRequest(ctx, req))
	resp, err := fn(ctx, req, opts...)
	if err != nil {
		return zero, err
	}
	logger.DebugContext(ctx, "api response", "serviceName", serviceName, "rpcName", rpc, "response", grpclog.ProtoMessageResponse(resp))
	return resp, err
}

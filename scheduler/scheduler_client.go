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
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"time"

	"cloud.google.com/go/scheduler/apiv1beta1/schedulerpb"
	"cloud.google.com/go/streamreader/internal"
	"github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/internallog/grpclog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/api/option/internaloption"
	gtransport "google.golang.org/api/transport/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

const serviceName = "google.cloud.scheduler.v1beta1.CloudScheduler"

// CallOptions contains the retry settings for each method of Client.
type CallOptions struct {
	ListJobs  []gax.CallOption
	GetJob    []gax.CallOption
	CreateJob []gax.CallOption
	UpdateJob []gax.CallOption
	DeleteJob []gax.CallOption
	PauseJob  []gax.CallOption
	ResumeJob []gax.CallOption
	RunJob    []gax.CallOption
}

func defaultGRPCClientOptions() []option.ClientOption {
	return []option.ClientOption{
		internaloption.WithDefaultEndpoint("cloudscheduler.googleapis.com:443"),
		internaloption.WithDefaultEndpointTemplate("cloudscheduler.UNIVERSE_DOMAIN:443"),
		internaloption.WithDefaultMTLSEndpoint("cloudscheduler.mtls.googleapis.com:443"),
		internaloption.WithDefaultUniverseDomain("googleapis.com"),
		internaloption.WithDefaultAudience("https://cloudscheduler.googleapis.com/"),
		internaloption.WithDefaultScopes(DefaultAuthScopes()...),
		internaloption.EnableJwtWithScope(),
		option.WithGRPCDialOption(grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(math.MaxInt32))),
	}
}

// DefaultAuthScopes reports the default set of authentication scopes to use
// with this package.
func DefaultAuthScopes() []string {
	return []string{
		"https://www.googleapis.com/auth/cloud-platform",
	}
}

func idempotent() []gax.CallOption {
	return []gax.CallOption{
		gax.WithTimeout(600000 * time.Millisecond),
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{
				codes.DeadlineExceeded,
				codes.Unavailable,
			}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        60000 * time.Millisecond,
				Multiplier: 1.30,
			})
		}),
	}
}

func nonIdempotent() []gax.CallOption {
	return []gax.CallOption{
		gax.WithTimeout(600000 * time.Millisecond),
	}
}

func defaultCallOptions() *CallOptions {
	return &CallOptions{
		ListJobs:  idempotent(),
		GetJob:    idempotent(),
		CreateJob: nonIdempotent(),
		UpdateJob: nonIdempotent(),
		DeleteJob: idempotent(),
		PauseJob:  nonIdempotent(),
		ResumeJob: nonIdempotent(),
		RunJob:    nonIdempotent(),
	}
}

// Client is a client for interacting with Cloud Scheduler.
//
// Methods, except Close, may be called concurrently. However, fields must not
// be modified concurrently with method calls.
type Client struct {
	connPool gtransport.ConnPool
	client   schedulerpb.CloudSchedulerClient
	logger   *slog.Logger

	// The x-goog-* metadata to be sent with each request.
	xGoogHeaders []string

	// The call options for this service.
	CallOptions *CallOptions
}

// NewClient creates a new Cloud Scheduler client.
//
// The Cloud Scheduler API allows external entities to reliably schedule
// asynchronous jobs.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	connPool, err := gtransport.DialPool(ctx, append(defaultGRPCClientOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	c := &Client{
		connPool:    connPool,
		client:      schedulerpb.NewCloudSchedulerClient(connPool),
		logger:      internaloption.GetLogger(opts),
		CallOptions: defaultCallOptions(),
	}
	c.setGoogleClientInfo()
	return c, nil
}

// Connection returns a connection to the API service.
//
// Deprecated: Connections are now pooled so this method does not always
// return the same resource.
func (c *Client) Connection() *grpc.ClientConn {
	return c.connPool.Conn()
}

func (c *Client) setGoogleClientInfo(keyval ...string) {
	kv := append([]string{"gl-go", gax.GoVersion}, keyval...)
	kv = append(kv, "gapic", internal.Version, "gax", gax.Version, "grpc", grpc.Version)
	c.xGoogHeaders = []string{
		"x-goog-api-client", gax.XGoogHeader(kv...),
	}
}

// Close closes the connection to the API service. The user should invoke
// this when the client is no longer required.
func (c *Client) Close() error {
	return c.connPool.Close()
}

// ListJobs lists jobs.
func (c *Client) ListJobs(ctx context.Context, req *schedulerpb.ListJobsRequest, opts ...gax.CallOption) *JobIterator {
	hds := []string{"x-goog-request-params", fmt.Sprintf("%s=%v", "parent", url.QueryEscape(req.GetParent()))}

	hds = append(c.xGoogHeaders, hds...)
	ctx = gax.InsertMetadataIntoOutgoingContext(ctx, hds...)
	opts = append(c.CallOptions.ListJobs[0:len(c.CallOptions.ListJobs):len(c.CallOptions.ListJobs)], opts...)
	it := &JobIterator{}
	req = proto.Clone(req).(*schedulerpb.ListJobsRequest)
	it.InternalFetch = func(pageSize int, pageToken string) ([]*schedulerpb.Job, string, error) {
		resp := &schedulerpb.ListJobsResponse{}
		if pageToken != "" {
			req.PageToken = pageToken
		}
		if pageSize > math.MaxInt32 {
			req.PageSize = math.MaxInt32
		} else if pageSize != 0 {
			req.PageSize = int32(pageSize)
		}
		err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
			var err error
			resp, err = executeRPC(ctx, c.client.ListJobs, req, settings.GRPC, c.logger, "ListJobs")
			return err
		}, opts...)
		if err != nil {
			return nil, "", err
		}

		it.Response = resp
		return resp.GetJobs(), resp.GetNextPageToken(), nil
	}
	fetch := func(pageSize int, pageToken string) (string, error) {
		items, nextPageToken, err := it.InternalFetch(pageSize, pageToken)
		if err != nil {
			return "", err
		}
		it.items = append(it.items, items...)
		return nextPageToken, nil
	}

	it.pageInfo, it.nextFunc = iterator.NewPageInfo(fetch, it.bufLen, it.takeBuf)
	it.pageInfo.MaxSize = int(req.GetPageSize())
	it.pageInfo.Token = req.GetPageToken()

	return it
}

// ListJobsIn lists the jobs of the location parent.
func (c *Client) ListJobsIn(ctx context.Context, parent string, opts ...gax.CallOption) *JobIterator {
	return c.ListJobs(ctx, &schedulerpb.ListJobsRequest{Parent: parent}, opts...)
}

// GetJob gets a job.
func (c *Client) GetJob(ctx context.Context, req *schedulerpb.GetJobRequest, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return callJob(ctx, c, "GetJob", "name", req.GetName(), req, c.client.GetJob, c.CallOptions.GetJob, opts)
}

// GetJobByName gets the named job.
func (c *Client) GetJobByName(ctx context.Context, name string, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return c.GetJob(ctx, &schedulerpb.GetJobRequest{Name: name}, opts...)
}

// CreateJob creates a job.
func (c *Client) CreateJob(ctx context.Context, req *schedulerpb.CreateJobRequest, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return callJob(ctx, c, "CreateJob", "parent", req.GetParent(), req, c.client.CreateJob, c.CallOptions.CreateJob, opts)
}

// CreateJobIn creates job in the location parent.
func (c *Client) CreateJobIn(ctx context.Context, parent string, job *schedulerpb.Job, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return c.CreateJob(ctx, &schedulerpb.CreateJobRequest{Parent: parent, Job: job}, opts...)
}

// UpdateJob updates a job.
//
// If successful, the updated Job is returned. If the job does not exist,
// NOT_FOUND is returned.
//
// If UpdateJob does not successfully return, it is possible for the job to be
// in an Job.State.UPDATE_FAILED state. A job in this state may not be
// executed. If this happens, retry the UpdateJob request until a successful
// response is received.
func (c *Client) UpdateJob(ctx context.Context, req *schedulerpb.UpdateJobRequest, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return callJob(ctx, c, "UpdateJob", "job.name", req.GetJob().GetName(), req, c.client.UpdateJob, c.CallOptions.UpdateJob, opts)
}

// UpdateJobFields updates the fields of job named in updateMask.
func (c *Client) UpdateJobFields(ctx context.Context, job *schedulerpb.Job, updateMask *fieldmaskpb.FieldMask, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return c.UpdateJob(ctx, &schedulerpb.UpdateJobRequest{Job: job, UpdateMask: updateMask}, opts...)
}

// DeleteJob deletes a job.
func (c *Client) DeleteJob(ctx context.Context, req *schedulerpb.DeleteJobRequest, opts ...gax.CallOption) error {
	hds := []string{"x-goog-request-params", fmt.Sprintf("%s=%v", "name", url.QueryEscape(req.GetName()))}

	hds = append(c.xGoogHeaders, hds...)
	ctx = gax.InsertMetadataIntoOutgoingContext(ctx, hds...)
	opts = append(c.CallOptions.DeleteJob[0:len(c.CallOptions.DeleteJob):len(c.CallOptions.DeleteJob)], opts...)
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		_, err = executeRPC(ctx, c.client.DeleteJob, req, settings.GRPC, c.logger, "DeleteJob")
		return err
	}, opts...)
	return err
}

// DeleteJobByName deletes the named job.
func (c *Client) DeleteJobByName(ctx context.Context, name string, opts ...gax.CallOption) error {
	return c.DeleteJob(ctx, &schedulerpb.DeleteJobRequest{Name: name}, opts...)
}

// PauseJob pauses a job.
//
// If a job is paused then the system will stop executing the job until it is
// re-enabled via ResumeJob. The state of the job is stored in state; if
// paused it will be set to Job.State.PAUSED. A job must be in
// Job.State.ENABLED to be paused.
func (c *Client) PauseJob(ctx context.Context, req *schedulerpb.PauseJobRequest, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return callJob(ctx, c, "PauseJob", "name", req.GetName(), req, c.client.PauseJob, c.CallOptions.PauseJob, opts)
}

// PauseJobByName pauses the named job.
func (c *Client) PauseJobByName(ctx context.Context, name string, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return c.PauseJob(ctx, &schedulerpb.PauseJobRequest{Name: name}, opts...)
}

// ResumeJob resumes a job.
//
// This method reenables a job after it has been Job.State.PAUSED. The state of
// a job is stored in Job.state; after calling this method it will be set to
// Job.State.ENABLED. A job must be in Job.State.PAUSED to be resumed.
func (c *Client) ResumeJob(ctx context.Context, req *schedulerpb.ResumeJobRequest, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return callJob(ctx, c, "ResumeJob", "name", req.GetName(), req, c.client.ResumeJob, c.CallOptions.ResumeJob, opts)
}

// ResumeJobByName resumes the named job.
func (c *Client) ResumeJobByName(ctx context.Context, name string, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return c.ResumeJob(ctx, &schedulerpb.ResumeJobRequest{Name: name}, opts...)
}

// RunJob forces a job to run now.
//
// When this method is called, Cloud Scheduler will dispatch the job, even
// if the job is already running.
func (c *Client) RunJob(ctx context.Context, req *schedulerpb.RunJobRequest, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return callJob(ctx, c, "RunJob", "name", req.GetName(), req, c.client.RunJob, c.CallOptions.RunJob, opts)
}

// RunJobByName forces the named job to run now.
func (c *Client) RunJobByName(ctx context.Context, name string, opts ...gax.CallOption) (*schedulerpb.Job, error) {
	return c.RunJob(ctx, &schedulerpb.RunJobRequest{Name: name}, opts...)
}

// callJob invokes a unary method that returns a Job, routing on the request
// parameter key=value.
func callJob[I proto.Message](ctx context.Context, c *Client, rpc, key, value string, req I, fn func(context.Context, I, ...grpc.CallOption) (*schedulerpb.Job, error), defaults, opts []gax.CallOption) (*schedulerpb.Job, error) {
	hds := []string{"x-goog-request-params", fmt.Sprintf("%s=%v", key, url.QueryEscape(value))}

	hds = append(c.xGoogHeaders, hds...)
	ctx = gax.InsertMetadataIntoOutgoingContext(ctx, hds...)
	opts = append(defaults[0:len(defaults):len(defaults)], opts...)
	var resp *schedulerpb.Job
	err := gax.Invoke(ctx, func(ctx context.Context, settings gax.CallSettings) error {
		var err error
		resp, err = executeRPC(ctx, fn, req, settings.GRPC, c.logger, rpc)
		return err
	}, opts...)
	if err != nil {
		return nil, err
	}
	return resp, nil
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

// JobIterator manages a stream of *schedulerpb.Job.
type JobIterator struct {
	items    []*schedulerpb.Job
	pageInfo *iterator.PageInfo
	nextFunc func() error

	// Response is the raw response for the current page.
	// It must be cast to the RPC response type.
	// Calling Next() or InternalFetch() updates this value.
	Response interface{}

	// InternalFetch is for use by the Google Cloud Libraries only.
	// It is not part of the stable interface of this package.
	//
	// InternalFetch returns results from a single call to the underlying RPC.
	// The number of results is no greater than pageSize.
	// If there are no more results, nextPageToken is empty and err is nil.
	InternalFetch func(pageSize int, pageToken string) (results []*schedulerpb.Job, nextPageToken string, err error)
}

// PageInfo supports pagination. See the google.golang.org/api/iterator package for details.
func (it *JobIterator) PageInfo() *iterator.PageInfo {
	return it.pageInfo
}

// Next returns the next result. Its second return value is iterator.Done if there are no more
// results. Once Next returns Done, all subsequent calls will return Done.
func (it *JobIterator) Next() (*schedulerpb.Job, error) {
	var item *schedulerpb.Job
	if err := it.nextFunc(); err != nil {
		return item, err
	}
	item = it.items[0]
	it.items = it.items[1:]
	return item, nil
}

func (it *JobIterator) bufLen() int {
	return len(it.items)
}

func (it *JobIterator) takeBuf() interface{} {
	b := it.items
	it.items = nil
	return b
}

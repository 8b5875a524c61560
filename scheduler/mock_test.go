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
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"

	"cloud.google.com/go/scheduler/apiv1beta1/schedulerpb"
	"cloud.google.com/go/streamreader/internal/testutil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	gstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/fieldmaskpb"
)

type mockCloudSchedulerServer struct {
	schedulerpb.UnimplementedCloudSchedulerServer

	mu   sync.Mutex
	reqs []proto.Message
	mds  []metadata.MD

	// If set, all calls return this error.
	err error

	// responses to return if err == nil
	resps []proto.Message
}

func (s *mockCloudSchedulerServer) record(ctx context.Context, req proto.Message) (proto.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md, _ := metadata.FromIncomingContext(ctx)
	if xg := md["x-goog-api-client"]; len(xg) == 0 {
		return nil, fmt.Errorf("x-goog-api-client = %v, expected gapic header", xg)
	}
	s.reqs = append(s.reqs, req)
	s.mds = append(s.mds, md)
	if s.err != nil {
		return nil, s.err
	}
	resp := s.resps[0]
	if len(s.resps) > 1 {
		s.resps = s.resps[1:]
	}
	return resp, nil
}

func (s *mockCloudSchedulerServer) ListJobs(ctx context.Context, req *schedulerpb.ListJobsRequest) (*schedulerpb.ListJobsResponse, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.ListJobsResponse), nil
}

func (s *mockCloudSchedulerServer) GetJob(ctx context.Context, req *schedulerpb.GetJobRequest) (*schedulerpb.Job, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.Job), nil
}

func (s *mockCloudSchedulerServer) CreateJob(ctx context.Context, req *schedulerpb.CreateJobRequest) (*schedulerpb.Job, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.Job), nil
}

func (s *mockCloudSchedulerServer) UpdateJob(ctx context.Context, req *schedulerpb.UpdateJobRequest) (*schedulerpb.Job, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.Job), nil
}

func (s *mockCloudSchedulerServer) DeleteJob(ctx context.Context, req *schedulerpb.DeleteJobRequest) (*emptypb.Empty, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*emptypb.Empty), nil
}

func (s *mockCloudSchedulerServer) PauseJob(ctx context.Context, req *schedulerpb.PauseJobRequest) (*schedulerpb.Job, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.Job), nil
}

func (s *mockCloudSchedulerServer) ResumeJob(ctx context.Context, req *schedulerpb.ResumeJobRequest) (*schedulerpb.Job, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.Job), nil
}

func (s *mockCloudSchedulerServer) RunJob(ctx context.Context, req *schedulerpb.RunJobRequest) (*schedulerpb.Job, error) {
	resp, err := s.record(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.(*schedulerpb.Job), nil
}

// reset clears recorded requests and sets the next responses.
func (s *mockCloudSchedulerServer) reset(err error, resps ...proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs, s.mds, s.err, s.resps = nil, nil, err, resps
}

func (s *mockCloudSchedulerServer) requests() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Message(nil), s.reqs...)
}

// clientOpt is the option tests should use to connect to the test server.
// It is initialized by TestMain.
var clientOpt option.ClientOption

var mockCloudScheduler mockCloudSchedulerServer

func TestMain(m *testing.M) {
	flag.Parse()

	srv, err := testutil.NewServer()
	if err != nil {
		log.Fatal(err)
	}
	schedulerpb.RegisterCloudSchedulerServer(srv.Gsrv, &mockCloudScheduler)
	srv.Start()

	conn, err := srv.Dial()
	if err != nil {
		log.Fatal(err)
	}
	clientOpt = option.WithGRPCConn(conn)

	code := m.Run()
	conn.Close()
	srv.Close()
	os.Exit(code)
}

var (
	formattedJobName = JobName{Project: "[PROJECT]", Location: "[LOCATION]", Job: "[JOB]"}.String()
	formattedParent  = LocationName{Project: "[PROJECT]", Location: "[LOCATION]"}.String()
)

func expectedJob() *schedulerpb.Job {
	return &schedulerpb.Job{
		Name:        "name2-1052831874",
		Description: "description-1724546052",
		Schedule:    "schedule-697920873",
		TimeZone:    "timeZone36848094",
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), clientOpt)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func checkRequest(t *testing.T, want proto.Message) {
	t.Helper()
	reqs := mockCloudScheduler.requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if !proto.Equal(want, reqs[0]) {
		t.Errorf("wrong request %q, want %q", reqs[0], want)
	}
}

func TestJobMethods(t *testing.T) {
	ctx := context.Background()
	job := expectedJob()
	mask := &fieldmaskpb.FieldMask{Paths: []string{"schedule"}}
	for _, test := range []struct {
		desc    string
		wantReq proto.Message
		call    func(c *Client) (*schedulerpb.Job, error)
	}{
		{"GetJob", &schedulerpb.GetJobRequest{Name: formattedJobName}, func(c *Client) (*schedulerpb.Job, error) {
			return c.GetJob(ctx, &schedulerpb.GetJobRequest{Name: formattedJobName})
		}},
		{"GetJobByName", &schedulerpb.GetJobRequest{Name: formattedJobName}, func(c *Client) (*schedulerpb.Job, error) {
			return c.GetJobByName(ctx, formattedJobName)
		}},
		{"CreateJobIn", &schedulerpb.CreateJobRequest{Parent: formattedParent, Job: job}, func(c *Client) (*schedulerpb.Job, error) {
			return c.CreateJobIn(ctx, formattedParent, job)
		}},
		{"UpdateJobFields", &schedulerpb.UpdateJobRequest{Job: job, UpdateMask: mask}, func(c *Client) (*schedulerpb.Job, error) {
			return c.UpdateJobFields(ctx, job, mask)
		}},
		{"PauseJobByName", &schedulerpb.PauseJobRequest{Name: formattedJobName}, func(c *Client) (*schedulerpb.Job, error) {
			return c.PauseJobByName(ctx, formattedJobName)
		}},
		{"ResumeJobByName", &schedulerpb.ResumeJobRequest{Name: formattedJobName}, func(c *Client) (*schedulerpb.Job, error) {
			return c.ResumeJobByName(ctx, formattedJobName)
		}},
		{"RunJobByName", &schedulerpb.RunJobRequest{Name: formattedJobName}, func(c *Client) (*schedulerpb.Job, error) {
			return c.RunJobByName(ctx, formattedJobName)
		}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			var expectedResponse = expectedJob()
			mockCloudScheduler.reset(nil, expectedResponse)
			c := newTestClient(t)
			resp, err := test.call(c)
			if err != nil {
				t.Fatal(err)
			}
			checkRequest(t, test.wantReq)
			if want, got := expectedResponse, resp; !proto.Equal(want, got) {
				t.Errorf("wrong response %q, want %q)", got, want)
			}
		})
	}
}

func TestJobMethodsError(t *testing.T) {
	ctx := context.Background()
	errCode := codes.PermissionDenied
	for _, test := range []struct {
		desc string
		call func(c *Client) error
	}{
		{"GetJob", func(c *Client) error {
			_, err := c.GetJobByName(ctx, formattedJobName)
			return err
		}},
		{"CreateJob", func(c *Client) error {
			_, err := c.CreateJobIn(ctx, formattedParent, expectedJob())
			return err
		}},
		{"UpdateJob", func(c *Client) error {
			_, err := c.UpdateJobFields(ctx, expectedJob(), &fieldmaskpb.FieldMask{})
			return err
		}},
		{"DeleteJob", func(c *Client) error {
			return c.DeleteJobByName(ctx, formattedJobName)
		}},
		{"PauseJob", func(c *Client) error {
			_, err := c.PauseJobByName(ctx, formattedJobName)
			return err
		}},
		{"ResumeJob", func(c *Client) error {
			_, err := c.ResumeJobByName(ctx, formattedJobName)
			return err
		}},
		{"RunJob", func(c *Client) error {
			_, err := c.RunJobByName(ctx, formattedJobName)
			return err
		}},
		{"ListJobs", func(c *Client) error {
			_, err := c.ListJobsIn(ctx, formattedParent).Next()
			return err
		}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			mockCloudScheduler.reset(gstatus.Error(errCode, "test error"))
			c := newTestClient(t)
			err := test.call(c)
			if st, ok := gstatus.FromError(err); !ok {
				t.Errorf("got error %v, expected grpc error", err)
			} else if c := st.Code(); c != errCode {
				t.Errorf("got error code %q, want %q", c, errCode)
			}
		})
	}
}

func TestDeleteJob(t *testing.T) {
	mockCloudScheduler.reset(nil, &emptypb.Empty{})
	c := newTestClient(t)
	if err := c.DeleteJobByName(context.Background(), formattedJobName); err != nil {
		t.Fatal(err)
	}
	checkRequest(t, &schedulerpb.DeleteJobRequest{Name: formattedJobName})
}

func TestListJobs(t *testing.T) {
	page1 := &schedulerpb.ListJobsResponse{
		Jobs:          []*schedulerpb.Job{{Name: "job-1"}, {Name: "job-2"}},
		NextPageToken: "page-2",
	}
	page2 := &schedulerpb.ListJobsResponse{
		Jobs: []*schedulerpb.Job{{Name: "job-3"}},
	}
	mockCloudScheduler.reset(nil, page1, page2)
	c := newTestClient(t)
	it := c.ListJobsIn(context.Background(), formattedParent)
	var names []string
	for {
		job, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, job.GetName())
	}
	if got, want := fmt.Sprint(names), "[job-1 job-2 job-3]"; got != want {
		t.Errorf("got jobs %s, want %s", got, want)
	}
	reqs := mockCloudScheduler.requests()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	want := []*schedulerpb.ListJobsRequest{
		{Parent: formattedParent},
		{Parent: formattedParent, PageToken: "page-2"},
	}
	for i, req := range reqs {
		if !proto.Equal(want[i], req) {
			t.Errorf("request %d: got %v, want %v", i, req, want[i])
		}
	}
	if got := it.Response.(*schedulerpb.ListJobsResponse); !proto.Equal(got, page2) {
		t.Errorf("Response: got %v, want last page", got)
	}
}

func TestRequestParams(t *testing.T) {
	mockCloudScheduler.reset(nil, expectedJob())
	c := newTestClient(t)
	job := &schedulerpb.Job{Name: formattedJobName}
	if _, err := c.UpdateJobFields(context.Background(), job, nil); err != nil {
		t.Fatal(err)
	}
	mockCloudScheduler.mu.Lock()
	md := mockCloudScheduler.mds[0]
	mockCloudScheduler.mu.Unlock()
	want := "job.name=projects%2F%5BPROJECT%5D%2Flocations%2F%5BLOCATION%5D%2Fjobs%2F%5BJOB%5D"
	if got := md.Get("x-goog-request-params"); len(got) != 1 || got[0] != want {
		t.Errorf("x-goog-request-params: got %v, want %q", got, want)
	}
}

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
// Package scheduler is a client for the Cloud Scheduler API (v1beta1).
//
// Cloud Scheduler creates and manages cron jobs:
//
//	ctx := context.Background()
//	c, err := scheduler.NewClient(ctx)
//	if err != nil {
//		// TODO: Handle error.
//	}
//	defer c.Close()
//	job, err := c.GetJobByName(ctx, scheduler.JobName{Project: "p", Location: "l", Job: "j"}.String())
//	if err != nil {
//		// TODO: Handle error.
//	}
//	_ = job
package scheduler // import "cloud.google.com/go/streamreader/scheduler"

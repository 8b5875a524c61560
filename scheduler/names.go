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
	"fmt"
	"strings"
)

// LocationName identifies a Cloud Scheduler location.
type LocationName struct {
	Project  string
	Location string
}

func (n LocationName) String() string {
	return fmt.Sprintf("projects/%s/locations/%s", n.Project, n.Location)
}

// JobName identifies a Cloud Scheduler job.
type JobName struct {
	Project  string
	Location string
	Job      string
}

func (n JobName) String() string {
	return fmt.Sprintf("projects/%s/locations/%s/jobs/%s", n.Project, n.Location, n.Job)
}

// Parent returns the location that contains the job.
func (n JobName) Parent() LocationName {
	return LocationName{Project: n.Project, Location: n.Location}
}

// ParseLocationName parses a name of the form
// projects/{project}/locations/{location}.
func ParseLocationName(s string) (LocationName, error) {
	parts, err := parseName(s, "projects", "locations")
	if err != nil {
		return LocationName{}, err
	}
	return LocationName{Project: parts[0], Location: parts[1]}, nil
}

// ParseJobName parses a name of the form
// projects/{project}/locations/{location}/jobs/{job}.
func ParseJobName(s string) (JobName, error) {
	parts, err := parseName(s, "projects", "locations", "jobs")
	if err != nil {
		return JobName{}, err
	}
	return JobName{Project: parts[0], Location: parts[1], Job: parts[2]}, nil
}

// parseName matches s against collection/id pairs and returns the ids.
func parseName(s string, collections ...string) ([]string, error) {
	segs := strings.Split(s, "/")
	if len(segs) != 2*len(collections) {
		return nil, fmt.Errorf("scheduler: malformed resource name %q", s)
	}
	var ids []string
	for i, c := range collections {
		if segs[2*i] != c || segs[2*i+1] == "" {
			return nil, fmt.Errorf("scheduler: malformed resource name %q: want %s/{id} at segment %d", s, c, 2*i)
		}
		ids = append(ids, segs[2*i+1])
	}
	return ids, nil
}

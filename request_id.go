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
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key carrying the request ID of an attempt.
const RequestIDHeader = "x-goog-stream-request-id"

const requestIDVersion = 1

func newRequestID() string {
	return uuid.NewString()
}

// attemptRequestID formats the header value of attempt number attempt.
func attemptRequestID(id string, attempt int) string {
	return fmt.Sprintf("%d.%s.%d", requestIDVersion, id, attempt)
}

func withRequestID(ctx context.Context, id string, attempt int) context.Context {
	return metadata.AppendToOutgoingContext(ctx, RequestIDHeader, attemptRequestID(id, attempt))
}

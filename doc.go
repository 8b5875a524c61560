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

/*
Package streamreader reads server-streaming RPCs that deliver an ordered
sequence of partial results, and transparently resumes them after transient
transport failures.

A Reader wraps one logical stream. The caller describes how to open an attempt
and how resume tokens flow between responses and requests with a Stream, and
then pulls results with Next until it returns iterator.Done:

	r, err := streamreader.New(ctx, req, streamreader.Stream[*pb.Req, *pb.Chunk]{
		Method: "ExecuteStreamingSql",
		Open: func(ctx context.Context, req *pb.Req) (streamreader.Receiver[*pb.Chunk], error) {
			return client.ExecuteStreamingSql(ctx, req)
		},
		WithResumeToken: func(req *pb.Req, token []byte) *pb.Req {
			req.ResumeToken = token
			return req
		},
		ResumeToken: (*pb.Chunk).GetResumeToken,
	}, nil, 30)
	if err != nil {
		// TODO: Handle error.
	}
	defer r.Close()
	for {
		chunk, err := r.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			// TODO: Handle error.
		}
		_ = chunk
	}

# Resumption

Results received from the server are handed to the caller only once a later
(or the same) result carries a resume token, so a retried attempt that
restarts from the last token never re-delivers anything. When more than
Settings.MaxBytesBetweenResumeTokens bytes arrive without a token, buffered
results are released and the stream cannot be resumed until the next token;
a transport failure in that window is reported to the caller.

# Timeouts

Each attempt runs under its own Expiration. A timeout of zero seconds means
"no timeout" unless Settings.AllowImmediateTimeouts is set, in which case the
attempt expires immediately: the first Next fails with codes.DeadlineExceeded
without opening a stream or retrying.

A Reader is not safe for concurrent use. Cancel the context passed to New to
interrupt a blocked Next.
*/
package streamreader // import "cloud.google.com/go/streamreader"

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
// Package sqlstream streams the results of Cloud Spanner SQL queries and
// resumes them after transient failures.
//
// ExecuteSqlStream exposes the raw ExecuteStreamingSql call. SqlStreamReader
// wraps the same call in a streamreader.Reader, which replays the query from
// the last resume token when the connection breaks:
//
//	client, err := sqlstream.NewClient(ctx, nil)
//	if err != nil {
//		// TODO: Handle error.
//	}
//	defer client.Close()
//	session, err := client.CreateSession(ctx, "projects/P/instances/I/databases/D")
//	if err != nil {
//		// TODO: Handle error.
//	}
//	r, err := client.SqlStreamReader(ctx, &spannerpb.ExecuteSqlRequest{Sql: "SELECT 1"}, session, 30)
//	if err != nil {
//		// TODO: Handle error.
//	}
//	err = r.Do(func(prs *spannerpb.PartialResultSet) error {
//		fmt.Println(prs.GetValues())
//		return nil
//	})
//
// Set SPANNER_EMULATOR_HOST to connect to the Cloud Spanner emulator.
package sqlstream // import "cloud.google.com/go/streamreader/sqlstream"

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
// Command sqlstream runs a SQL query against Cloud Spanner and prints every
// partial result set as JSON, resuming the stream after transient failures.
//
// Configuration comes from the environment and may be overridden by flags:
//
//	SPANNER_DATABASE                  -database  projects/P/instances/I/databases/D
//	SPANNER_SQL                       -sql       the query
//	SPANNER_TIMEOUT_SECONDS           -timeout   per-attempt timeout, 0 for none
//	SPANNER_ALLOW_IMMEDIATE_TIMEOUTS  -immediate make a zero timeout expire at once
//	SPANNER_MAX_RETRIES               -retries   retries without progress, -1 for no limit
//	SPANNER_ACCESS_TOKEN              -token     OAuth2 access token instead of default credentials
//	OUTPUT                            -output    file or gs://bucket/object to write to, default stdout
//	LOG_LEVEL                         -log-level debug, info, warn or error
//
// A file or Cloud Storage object is only written if the query succeeds.
// Set SPANNER_EMULATOR_HOST to use the Cloud Spanner emulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"cloud.google.com/go/spanner/apiv1/spannerpb"
	"cloud.google.com/go/storage"
	"cloud.google.com/go/streamreader/sqlstream"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"
)

type envConfig struct {
	Database               string `envconfig:"SPANNER_DATABASE"`
	SQL                    string `envconfig:"SPANNER_SQL"`
	TimeoutSeconds         int    `envconfig:"SPANNER_TIMEOUT_SECONDS" default:"60"`
	AllowImmediateTimeouts bool   `envconfig:"SPANNER_ALLOW_IMMEDIATE_TIMEOUTS"`
	MaxRetries             int    `envconfig:"SPANNER_MAX_RETRIES"`
	AccessToken            string `envconfig:"SPANNER_ACCESS_TOKEN"`
	Output                 string `envconfig:"OUTPUT"`
	LogLevel               string `envconfig:"LOG_LEVEL" default:"info"`
}

func loadConfig(args []string) (envConfig, error) {
	var env envConfig
	if err := envconfig.Process("", &env); err != nil {
		return env, fmt.Errorf("failed to process env var: %w", err)
	}
	fs := flag.NewFlagSet("sqlstream", flag.ContinueOnError)
	fs.StringVar(&env.Database, "database", env.Database, "database to query")
	fs.StringVar(&env.SQL, "sql", env.SQL, "SQL query to run")
	fs.IntVar(&env.TimeoutSeconds, "timeout", env.TimeoutSeconds, "per-attempt timeout in seconds")
	fs.BoolVar(&env.AllowImmediateTimeouts, "immediate", env.AllowImmediateTimeouts, "treat a zero timeout as an immediate one")
	fs.IntVar(&env.MaxRetries, "retries", env.MaxRetries, "retries without progress before giving up")
	fs.StringVar(&env.AccessToken, "token", env.AccessToken, "OAuth2 access token")
	fs.StringVar(&env.Output, "output", env.Output, "file or gs://bucket/object to write results to")
	fs.StringVar(&env.LogLevel, "log-level", env.LogLevel, "log level")
	if err := fs.Parse(args); err != nil {
		return env, err
	}
	if env.Database == "" || env.SQL == "" {
		return env, errors.New("both a database and a SQL query are required")
	}
	return env, nil
}

// clientOptions returns the options shared by the Spanner and Storage
// clients.
func (env envConfig) clientOptions() []option.ClientOption {
	if env.AccessToken == "" {
		return nil
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: env.AccessToken})
	return []option.ClientOption{option.WithTokenSource(ts)}
}

// parseGCSURL splits gs://bucket/object.
func parseGCSURL(s string) (bucket, object string, ok bool) {
	rest, ok := strings.CutPrefix(s, "gs://")
	if !ok {
		return "", "", false
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

// output is the destination of the results. Close publishes what was
// written; Abort discards it.
type output interface {
	io.WriteCloser
	Abort() error
}

// stdoutOutput cannot take back lines that were already printed.
type stdoutOutput struct {
	io.Writer
}

func (stdoutOutput) Close() error { return nil }
func (stdoutOutput) Abort() error { return nil }

// fileOutput writes to a temporary file in the directory of path and
// renames it to path on Close.
type fileOutput struct {
	*os.File
	path string
}

func createFileOutput(path string) (*fileOutput, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &fileOutput{File: f, path: path}, nil
}

func (o *fileOutput) Close() error {
	if err := o.File.Close(); err != nil {
		os.Remove(o.File.Name())
		return err
	}
	return os.Rename(o.File.Name(), o.path)
}

func (o *fileOutput) Abort() error {
	o.File.Close()
	return os.Remove(o.File.Name())
}

// gcsOutput writes to a Cloud Storage object. The object is committed on
// Close. Abort cancels the upload's context, which keeps the object from
// being created.
type gcsOutput struct {
	*storage.Writer
	cancel context.CancelFunc
	client *storage.Client
}

func (o *gcsOutput) Close() error {
	err := o.Writer.Close()
	o.cancel()
	if cerr := o.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (o *gcsOutput) Abort() error {
	o.cancel()
	// Close reports the cancellation.
	o.Writer.Close()
	return o.client.Close()
}

// openOutput opens the destination of the results.
func openOutput(ctx context.Context, dest string, opts ...option.ClientOption) (output, error) {
	if dest == "" || dest == "-" {
		return stdoutOutput{os.Stdout}, nil
	}
	if strings.HasPrefix(dest, "gs://") {
		bucket, object, ok := parseGCSURL(dest)
		if !ok {
			return nil, fmt.Errorf("malformed Cloud Storage URL %q", dest)
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		wctx, cancel := context.WithCancel(ctx)
		w := client.Bucket(bucket).Object(object).NewWriter(wctx)
		w.ContentType = "application/x-ndjson"
		return &gcsOutput{Writer: w, cancel: cancel, client: client}, nil
	}
	f, err := createFileOutput(dest)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	env, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	zl, err := newLogger(env.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	logger := slog.New(zapslog.NewHandler(zl.Core()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = runToOutput(ctx, env, logger)
	stop()
	if err != nil {
		zl.Error("query failed", zap.Error(err))
		zl.Sync()
		os.Exit(1)
	}
	zl.Sync()
}

// runToOutput runs the query in env and publishes the results to
// env.Output only if the whole query succeeds.
func runToOutput(ctx context.Context, env envConfig, logger *slog.Logger) error {
	opts := env.clientOptions()
	out, err := openOutput(ctx, env.Output, opts...)
	if err != nil {
		return err
	}
	if err := run(ctx, env, out, logger, opts...); err != nil {
		if aerr := out.Abort(); aerr != nil {
			logger.WarnContext(ctx, "failed to discard partial output", "output", env.Output, "error", aerr)
		}
		return err
	}
	return out.Close()
}

// run streams the query in env and writes one JSON line per partial result
// set to out.
func run(ctx context.Context, env envConfig, out io.Writer, logger *slog.Logger, opts ...option.ClientOption) error {
	settings := sqlstream.DefaultSettings()
	settings.AllowImmediateTimeouts = env.AllowImmediateTimeouts
	settings.Logger = logger
	settings.Reader.MaxRetries = env.MaxRetries

	client, err := sqlstream.NewClient(ctx, settings, opts...)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	session, err := client.CreateSession(ctx, env.Database)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		if err := client.DeleteSession(context.WithoutCancel(ctx), session.GetName()); err != nil {
			logger.WarnContext(ctx, "failed to delete session", "session", session.GetName(), "error", err)
		}
	}()

	r, err := client.SqlStreamReader(ctx, &spannerpb.ExecuteSqlRequest{Sql: env.SQL}, session, env.TimeoutSeconds)
	if err != nil {
		return err
	}
	n := 0
	err = r.Do(func(prs *spannerpb.PartialResultSet) error {
		b, err := protojson.Marshal(prs)
		if err != nil {
			return err
		}
		n++
		_, err = fmt.Fprintln(out, string(b))
		return err
	})
	logger.InfoContext(ctx, "query finished",
		"partialResultSets", n,
		"attempts", r.Attempts(),
		"requestID", r.RequestID())
	return err
}

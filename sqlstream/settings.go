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
	"log/slog"
	"time"

	"cloud.google.com/go/streamreader"
	"github.com/googleapis/gax-go/v2"
)

const defaultExecuteSqlStreamTimeout = 60 * time.Second

// Settings configures a Client.
type Settings struct {
	// ExecuteSqlStreamSettings are the call options of ExecuteSqlStream. Do
	// not set a timeout here: gax cancels it when the call is set up, which
	// ends the stream. Use ExecuteSqlStreamTimeout instead.
	ExecuteSqlStreamSettings []gax.CallOption

	// ExecuteSqlStreamTimeout bounds a whole ExecuteSqlStream call when the
	// caller's context has no deadline. Zero means no timeout.
	ExecuteSqlStreamTimeout time.Duration

	// AllowImmediateTimeouts makes a timeout of zero seconds given to
	// SqlStreamReader expire immediately instead of meaning "no timeout".
	AllowImmediateTimeouts bool

	// Logger receives request and retry diagnostics. When nil, NewClient
	// uses the logger of its client options.
	Logger *slog.Logger

	// Reader configures the readers returned by SqlStreamReader. Its
	// AllowImmediateTimeouts is replaced by the field above.
	Reader *streamreader.Settings
}

// DefaultSettings returns the settings used when a Client is created
// without any.
func DefaultSettings() *Settings {
	return &Settings{
		ExecuteSqlStreamTimeout: defaultExecuteSqlStreamTimeout,
		Reader:                  streamreader.DefaultSettings(),
	}
}

// Copy returns a deep copy of s.
func (s *Settings) Copy() *Settings {
	c := *s
	if s.ExecuteSqlStreamSettings != nil {
		c.ExecuteSqlStreamSettings = append([]gax.CallOption(nil), s.ExecuteSqlStreamSettings...)
	}
	if s.Reader != nil {
		c.Reader = s.Reader.Copy()
	}
	return &c
}

// ConvertTimeoutToExpiration converts a timeout in seconds into the
// per-attempt expiration of a stream, honouring AllowImmediateTimeouts.
func (s *Settings) ConvertTimeoutToExpiration(timeoutSeconds int) streamreader.Expiration {
	return streamreader.ConvertTimeoutToExpiration(timeoutSeconds, s.AllowImmediateTimeouts)
}

func (s *Settings) readerSettings() *streamreader.Settings {
	rs := s.Reader.Copy()
	rs.AllowImmediateTimeouts = s.AllowImmediateTimeouts
	if rs.Logger == nil {
		rs.Logger = s.Logger
	}
	return rs
}

// Copyright 2026 Gravitational, Inc.
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

// Package writer implements the CLI's output sinks: stdout, a file
// path, /dev/null, or an s3:// object. Unlike the teacher's encoder
// wrapped writers (one JSON record at a time), this module's core
// emits whole byte buffers (a packed stream, a readable transcript, a
// serialized aggregate store), so a Sink here is a plain io.WriteCloser.
package writer

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/daeho-ro/test-results-parser/meta"
	"github.com/gravitational/trace"
)

// New opens the sink named by path. path may be "-" or "" for stdout,
// "/dev/null" to discard, an s3://bucket/key URL, or a filesystem
// path. "{{COMMIT}}" and "{{TIMESTAMP}}" placeholders in path are
// substituted from run, the same way the teacher's writer.New
// resolves a Jinja-style path template from run metadata.
func New(ctx context.Context, path string, run *meta.RunMeta) (io.WriteCloser, error) {
	path = renderPathTemplate(path, run)

	switch path {
	case "-", "":
		return nopCloser{os.Stdout}, nil
	case "/dev/null":
		return nopCloser{io.Discard}, nil
	}

	if strings.HasPrefix(path, "s3://") {
		w, err := newS3Writer(ctx, path)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		return w, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, trace.Wrap(err, "creating output file %q", path)
	}
	return f, nil
}

func renderPathTemplate(template string, run *meta.RunMeta) string {
	if template == "" || run == nil {
		return template
	}

	ts := time.Now().UTC()
	if run.Timestamp != 0 {
		ts = time.Unix(run.Timestamp, 0).UTC()
	}

	replacements := map[string]string{
		"COMMIT":    run.CommitHash,
		"TIMESTAMP": ts.Format("20060102T150405Z"),
	}

	path := template
	for k, v := range replacements {
		path = strings.ReplaceAll(path, "{{"+k+"}}", v)
	}
	return path
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

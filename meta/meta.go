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

// Package meta sources the CI run metadata (commit hash, upload
// flags) that aggregate.Writer.AddTestruns needs but that a bare
// JUnit XML document never carries.
package meta

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/gravitational/trace"
)

// RunMeta identifies the commit and upload flags a batch of testruns
// should be recorded against.
type RunMeta struct {
	CommitHash string
	Flags      []string
	Timestamp  int64
}

// githubEnv mirrors the GitHub Actions environment variables relevant
// to identifying a run, the same way the teacher's GithubMeta does
// for its own canonical-id fields.
type githubEnv struct {
	GitSHA string   `env:"GITHUB_SHA"`
	Flags  []string `env:"TRP_FLAGS" envSeparator:","`
}

// New builds a RunMeta from explicit overrides, falling back to
// GitHub Actions environment variables for whichever fields are left
// unset. commitHash/flags are the values a CLI flag would supply;
// pass the zero value to defer to the environment.
func New(commitHash string, flags []string) (*RunMeta, error) {
	var gh githubEnv
	if err := env.Parse(&gh); err != nil {
		return nil, trace.Wrap(err, "reading CI metadata from environment")
	}

	m := &RunMeta{Timestamp: time.Now().Unix()}

	m.CommitHash = commitHash
	if m.CommitHash == "" {
		m.CommitHash = strings.ToLower(gh.GitSHA)
	}

	if len(flags) > 0 {
		m.Flags = flags
	} else {
		m.Flags = gh.Flags
	}

	if m.CommitHash == "" {
		return nil, trace.BadParameter("no commit hash supplied and GITHUB_SHA is unset")
	}

	return m, nil
}

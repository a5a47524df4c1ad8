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

// Package dispatch fans one byte stream out to many output sinks
// concurrently. It is ambient CLI glue, never part of the single-
// threaded parse/aggregate core: spec.md's "no concurrency within a
// single upload parse" binds the core, not the harness flushing the
// core's already-computed bytes to disk/stdout/S3.
package dispatch

import (
	"io"

	"github.com/gravitational/trace"
	"golang.org/x/sync/errgroup"
)

// Sink is one output destination a Dispatcher writes the same bytes
// to.
type Sink = io.WriteCloser

// Dispatcher writes one payload to every registered sink
// concurrently and closes them concurrently, matching the teacher's
// errgroup-based bufferedWriter fan-out shape, generalized from
// per-record-type channels to a single list of byte sinks (this
// module has no record-type distinction to fan out by).
type Dispatcher struct {
	sinks []Sink
}

// New registers sinks. At least one sink is required.
func New(sinks ...Sink) (*Dispatcher, error) {
	if len(sinks) == 0 {
		return nil, trace.BadParameter("no sinks provided")
	}
	return &Dispatcher{sinks: sinks}, nil
}

// Write sends payload to every sink concurrently, returning the first
// write error, if any.
func (d *Dispatcher) Write(payload []byte) error {
	g := new(errgroup.Group)
	for _, s := range d.sinks {
		s := s
		g.Go(func() error {
			_, err := s.Write(payload)
			return trace.Wrap(err)
		})
	}
	return g.Wait()
}

// Close closes every sink concurrently, returning the first close
// error, if any.
func (d *Dispatcher) Close() error {
	g := new(errgroup.Group)
	for _, s := range d.sinks {
		s := s
		g.Go(func() error {
			return trace.Wrap(s.Close())
		})
	}
	return g.Wait()
}

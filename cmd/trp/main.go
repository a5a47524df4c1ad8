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

// Command trp is the CLI harness around this module's core: it is the
// Go-idiomatic stand-in for the language-binding glue a native
// extension would otherwise get from its host process.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/daeho-ro/test-results-parser/aggregate"
	"github.com/daeho-ro/test-results-parser/dispatch"
	"github.com/daeho-ro/test-results-parser/junitxml"
	"github.com/daeho-ro/test-results-parser/meta"
	"github.com/daeho-ro/test-results-parser/model"
	"github.com/daeho-ro/test-results-parser/upload"
	"github.com/daeho-ro/test-results-parser/writer"
)

const defaultAggregateWindowDays = 30

func makeDispatcher(ctx context.Context, run *meta.RunMeta, paths []string) (*dispatch.Dispatcher, error) {
	sinks := make([]dispatch.Sink, 0, len(paths))
	for _, p := range paths {
		w, err := writer.New(ctx, p, run)
		if err != nil {
			return nil, trace.Wrap(err, "opening sink %q", p)
		}
		sinks = append(sinks, w)
	}
	return dispatch.New(sinks...)
}

func runDecode(ctx context.Context, uploadPath string, packedOuts, readableOuts []string) error {
	raw, err := os.ReadFile(uploadPath)
	if err != nil {
		return trace.Wrap(err, "reading upload envelope %q", uploadPath)
	}

	result, err := upload.Decode(raw)
	if err != nil {
		return trace.Wrap(err, "decoding upload envelope")
	}
	log.WithField("bytes", len(raw)).Debug("decoded upload envelope")

	if len(packedOuts) > 0 {
		d, err := makeDispatcher(ctx, nil, packedOuts)
		if err != nil {
			return trace.Wrap(err)
		}
		defer func() { _ = d.Close() }()
		if err := d.Write(result.Packed); err != nil {
			return trace.Wrap(err, "writing packed output")
		}
	}

	if len(readableOuts) > 0 {
		d, err := makeDispatcher(ctx, nil, readableOuts)
		if err != nil {
			return trace.Wrap(err)
		}
		defer func() { _ = d.Close() }()
		if err := d.Write(result.Readable); err != nil {
			return trace.Wrap(err, "writing readable output")
		}
	}

	return nil
}

func runIngest(ctx context.Context, storePath, commitHash string, flags []string, windowDays int, junitFiles []string) error {
	run, err := meta.New(commitHash, flags)
	if err != nil {
		return trace.Wrap(err, "resolving run metadata")
	}

	var existing []byte
	if data, err := os.ReadFile(storePath); err == nil {
		existing = data
	} else if !os.IsNotExist(err) {
		return trace.Wrap(err, "reading existing store %q", storePath)
	}

	w, err := aggregate.NewWriter(windowDays, existing)
	if err != nil {
		return trace.Wrap(err, "opening aggregate store")
	}

	var testruns []*model.Testrun
	for _, f := range junitFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return trace.Wrap(err, "reading junit file %q", f)
		}
		info, err := junitxml.Parse(data)
		if err != nil {
			return trace.Wrap(err, "parsing %q", f)
		}
		testruns = append(testruns, info.Testruns...)
		log.WithFields(log.Fields{"file": f, "testcases": len(info.Testruns)}).Debug("parsed junit file")
	}

	if err := w.AddTestruns(run.Timestamp, run.CommitHash, run.Flags, testruns); err != nil {
		return trace.Wrap(err, "folding testruns into aggregate store")
	}

	out, err := w.Serialize()
	if err != nil {
		return trace.Wrap(err, "serializing aggregate store")
	}

	if err := os.WriteFile(storePath, out, 0o644); err != nil {
		return trace.Wrap(err, "writing aggregate store %q", storePath)
	}

	log.WithFields(log.Fields{"store": storePath, "testcases": len(testruns)}).Info("updated aggregate store")
	return nil
}

func runQuery(storePath string, offset, count int, now int64) error {
	data, err := os.ReadFile(storePath)
	if err != nil {
		return trace.Wrap(err, "reading aggregate store %q", storePath)
	}

	r, err := aggregate.NewReader(data, now)
	if err != nil {
		return trace.Wrap(err, "opening aggregate store")
	}

	aggs, err := r.GetTestAggregates(offset, count)
	if err != nil {
		return trace.Wrap(err, "querying aggregate store")
	}

	enc := json.NewEncoder(os.Stdout)
	for _, a := range aggs {
		if err := enc.Encode(a); err != nil {
			return trace.Wrap(err, "writing query output")
		}
	}
	return nil
}

func run() error {
	ctx := context.Background()
	app := kingpin.New("trp", "Parse, normalize, and aggregate CI test results")
	app.HelpFlag.Short('h')

	decodeCmd := app.Command("decode", "Decode an upload envelope into a packed stream and a readable transcript")
	uploadPath := decodeCmd.Arg("upload", "Upload envelope JSON file").Required().ExistingFile()
	packedOuts := decodeCmd.Flag("packed", "Packed output sink(s) ('-' for stdout, /dev/null to ignore)").Strings()
	readableOuts := decodeCmd.Flag("readable", "Readable transcript output sink(s)").Strings()

	ingestCmd := app.Command("ingest", "Parse JUnit files directly and fold them into an aggregate store")
	storePath := ingestCmd.Arg("store", "Aggregate store path").Required().String()
	commitHash := ingestCmd.Flag("commit", "Commit hash this run was built from").String()
	flags := ingestCmd.Flag("flag", "Upload flag (repeatable)").Strings()
	windowDays := ingestCmd.Flag("window", "Number of days of bucket history to retain").Default(fmt.Sprint(defaultAggregateWindowDays)).Int()
	junitFiles := ingestCmd.Arg("files", "JUnit XML result files").Required().ExistingFiles()

	queryCmd := app.Command("query", "Print stored test aggregates as JSON Lines")
	queryStorePath := queryCmd.Arg("store", "Aggregate store path").Required().ExistingFile()
	queryOffset := queryCmd.Flag("offset", "Pagination offset").Default("0").Int()
	queryCount := queryCmd.Flag("count", "Maximum number of records to print").Default("50").Int()
	queryNow := queryCmd.Flag("now", "Unix timestamp to compute window metrics relative to (default: current time)").Int64()

	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		return trace.Wrap(err, "failed to parse command line arguments")
	}

	switch cmd {
	case decodeCmd.FullCommand():
		return runDecode(ctx, *uploadPath, *packedOuts, *readableOuts)
	case ingestCmd.FullCommand():
		return runIngest(ctx, *storePath, *commitHash, *flags, *windowDays, *junitFiles)
	case queryCmd.FullCommand():
		now := *queryNow
		if now == 0 {
			now = time.Now().Unix()
		}
		return runQuery(*queryStorePath, *queryOffset, *queryCount, now)
	default:
		return trace.NotImplemented("unimplemented command %q", cmd)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// Package aggregate implements the Aggregate-Store component of
// spec.md §4.3/§6.3: a Writer that folds Testrun batches into
// per-identity historical statistics, and a Reader that deserializes
// a previously written store for querying or incremental resumption.
//
// Binary layout (little-endian throughout):
//
//	Header (16 bytes)
//	  magic        [4]byte  "TRAG"
//	  version      byte
//	  window_days  byte
//	  reserved     [2]byte
//	  num_records  uint32
//	  strings_off  uint32   absolute byte offset of the strings table
//
//	RecordEntry, repeated num_records times, immediately after the header:
//	  test_id            [16]byte
//	  name_ref           uint32  absolute byte offset of a string in the strings table
//	  testsuite_ref      uint32  absolute byte offset of a string in the strings table
//	  flags_count        uint16
//	  flags_refs         []uint32, flags_count entries
//	  updated_at         int64   unix seconds
//	  avg_duration       float64
//	  last_duration      float64
//	  buckets_count      uint16
//	  buckets            []Bucket, buckets_count entries
//
//	Bucket (28 bytes):
//	  day_index          uint32  days since unix epoch
//	  pass_count         uint32
//	  fail_count         uint32
//	  flaky_fail_count   uint32
//	  skip_count         uint32
//	  fail_commits_off   uint32  absolute byte offset into the commits table
//	  fail_commits_len   uint32  number of commit hash entries at that offset
//
//	Commits table, immediately after the record entries: a packed
//	sequence of uint16-length-prefixed commit hash strings, addressed
//	by (fail_commits_off, fail_commits_len) pairs in Bucket.
//
//	Strings table, located at strings_off: a packed sequence of
//	uint32-length-prefixed UTF-8 strings, addressed by absolute byte
//	offset from the start of the store (pointing at the length prefix)
//	from name_ref/testsuite_ref/flags_refs.
package aggregate

import "github.com/daeho-ro/test-results-parser/model"

const (
	magic         = "TRAG"
	formatVersion = 1
	headerSize    = 16

	bucketSize = 4 + 4 + 4 + 4 + 4 + 4 + 4

	// maxCommitsPerBucket bounds the exact commit-hash dedup set per
	// bucket, per spec.md §9's tolerance for an approximate sketch.
	maxCommitsPerBucket = 256
)

// Aggregate is the Reader-facing view of one stored test identity's
// history: the stored scalars plus the window-filtered metrics
// derived from its buckets at query time (spec.md §4.3.2).
type Aggregate struct {
	TestID       model.TestID
	Name         string
	Testsuite    string
	Flags        []string
	UpdatedAt    int64
	AvgDuration  float64
	LastDuration float64

	// Buckets holds only the buckets within the Reader's query
	// window, sorted by day index ascending.
	Buckets []BucketStat

	TotalPassCount      uint64
	TotalFailCount      uint64
	TotalFlakyFailCount uint64
	TotalSkipCount      uint64
	CommitsWhereFail    int
	FailureRate         float64
	FlakeRate           float64
}

// BucketStat is one day's worth of outcome counts for a test identity.
type BucketStat struct {
	DayIndex       int32
	PassCount      uint32
	FailCount      uint32
	FlakyFailCount uint32
	SkipCount      uint32
	FailCommits    []string
}

const secondsPerDay = 86400

func dayIndexOf(unixSeconds int64) int32 {
	return int32(unixSeconds / secondsPerDay)
}

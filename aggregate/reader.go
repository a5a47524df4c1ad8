package aggregate

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"

	"github.com/daeho-ro/test-results-parser/rerr"
	"github.com/gravitational/trace"
)

// Reader deserializes a store previously produced by Writer.Serialize
// for querying.
type Reader struct {
	window int
	all    []Aggregate
}

// NewReader parses data as a store and derives, for every record,
// the window-filtered metrics of spec.md §4.3.2 relative to now: the
// window is [floor(now/86400)-window_days+1, floor(now/86400)],
// independent of whatever window the Writer that produced data used.
func NewReader(data []byte, now int64) (*Reader, error) {
	if len(data) < headerSize {
		return nil, rerr.New(rerr.CorruptAggregate, trace.Errorf("store too short: %d bytes", len(data)), "reading aggregate store header")
	}
	if string(data[0:4]) != magic {
		return nil, rerr.New(rerr.CorruptAggregate, trace.Errorf("bad magic %q", data[0:4]), "reading aggregate store header")
	}
	version := data[4]
	if version != formatVersion {
		return nil, rerr.New(rerr.CorruptAggregate, trace.Errorf("unsupported version %d", version), "reading aggregate store header")
	}
	window := int(data[5])
	numRecords := binary.LittleEndian.Uint32(data[8:12])
	stringsOff := binary.LittleEndian.Uint32(data[12:16])

	if int(stringsOff) > len(data) {
		return nil, rerr.New(rerr.CorruptAggregate, trace.Errorf("strings_off %d beyond data length %d", stringsOff, len(data)), "reading aggregate store header")
	}

	cursor := headerSize
	all := make([]Aggregate, 0, numRecords)

	nowDay := dayIndexOf(now)
	cutoff := nowDay - int32(window) + 1

	for i := uint32(0); i < numRecords; i++ {
		agg, next, err := parseRecordEntry(data, cursor)
		if err != nil {
			return nil, rerr.New(rerr.CorruptAggregate, trace.Wrap(err), "parsing record entry %d", i)
		}
		cursor = next
		applyWindow(&agg, cutoff, nowDay)
		if len(agg.Buckets) == 0 {
			// No activity survives the window: the identity has aged
			// out entirely rather than just some of its buckets.
			continue
		}
		all = append(all, agg)
	}

	// Serialize sorts by (updated_at desc, test_id asc), but the store
	// is also allowed to be persisted in test_id order; re-sort here
	// so GetTestAggregates' ordering guarantee doesn't depend on how
	// the bytes were written.
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].UpdatedAt != all[j].UpdatedAt {
			return all[i].UpdatedAt > all[j].UpdatedAt
		}
		return bytes.Compare(all[i].TestID[:], all[j].TestID[:]) < 0
	})

	return &Reader{window: window, all: all}, nil
}

// applyWindow restricts agg.Buckets to the day range [cutoff, nowDay]
// and derives the query-time metrics of spec.md §4.3.2 from the
// surviving buckets: total counts, failure_rate, flake_rate, and the
// distinct count of commit hashes that failed within the window.
func applyWindow(agg *Aggregate, cutoff, nowDay int32) {
	var inWindow []BucketStat
	commits := make(map[string]struct{})

	for _, b := range agg.Buckets {
		if b.DayIndex < cutoff || b.DayIndex > nowDay {
			continue
		}
		inWindow = append(inWindow, b)
		agg.TotalPassCount += uint64(b.PassCount)
		agg.TotalFailCount += uint64(b.FailCount)
		agg.TotalFlakyFailCount += uint64(b.FlakyFailCount)
		agg.TotalSkipCount += uint64(b.SkipCount)
		if b.FailCount > 0 {
			for _, c := range b.FailCommits {
				commits[c] = struct{}{}
			}
		}
	}
	agg.Buckets = inWindow
	agg.CommitsWhereFail = len(commits)

	failDen := agg.TotalFailCount + agg.TotalPassCount
	if failDen == 0 {
		failDen = 1
	}
	agg.FailureRate = float64(agg.TotalFailCount) / float64(failDen)

	flakeDen := agg.TotalFlakyFailCount + agg.TotalPassCount
	if flakeDen == 0 {
		flakeDen = 1
	}
	agg.FlakeRate = float64(agg.TotalFlakyFailCount) / float64(flakeDen)
}

func parseRecordEntry(data []byte, off int) (Aggregate, int, error) {
	need := func(n int) error {
		if off+n > len(data) {
			return trace.Errorf("unexpected end of data at offset %d, need %d more bytes", off, n)
		}
		return nil
	}

	if err := need(16 + 4 + 4 + 2); err != nil {
		return Aggregate{}, 0, err
	}

	var agg Aggregate
	copy(agg.TestID[:], data[off:off+16])
	off += 16

	nameRef := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	suiteRef := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4

	flagsCount := binary.LittleEndian.Uint16(data[off : off+2])
	off += 2

	if err := need(4 * int(flagsCount)); err != nil {
		return Aggregate{}, 0, err
	}
	flagRefs := make([]uint32, flagsCount)
	for i := range flagRefs {
		flagRefs[i] = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
	}

	if err := need(8 + 8 + 8 + 2); err != nil {
		return Aggregate{}, 0, err
	}
	agg.UpdatedAt = int64(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	agg.AvgDuration = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8
	agg.LastDuration = math.Float64frombits(binary.LittleEndian.Uint64(data[off : off+8]))
	off += 8

	bucketsCount := binary.LittleEndian.Uint16(data[off : off+2])
	off += 2

	agg.Buckets = make([]BucketStat, 0, bucketsCount)
	for i := uint16(0); i < bucketsCount; i++ {
		if err := need(bucketSize); err != nil {
			return Aggregate{}, 0, err
		}
		var bs BucketStat
		bs.DayIndex = int32(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
		bs.PassCount = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		bs.FailCount = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		bs.FlakyFailCount = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		bs.SkipCount = binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		commitsOff := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		commitsLen := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4

		commits, err := readCommitsAt(data, commitsOff, commitsLen)
		if err != nil {
			return Aggregate{}, 0, err
		}
		bs.FailCommits = commits

		agg.Buckets = append(agg.Buckets, bs)
	}

	name, err := readStringAt(data, nameRef)
	if err != nil {
		return Aggregate{}, 0, err
	}
	agg.Name = name

	suite, err := readStringAt(data, suiteRef)
	if err != nil {
		return Aggregate{}, 0, err
	}
	agg.Testsuite = suite

	if len(flagRefs) > 0 {
		agg.Flags = make([]string, len(flagRefs))
		for i, ref := range flagRefs {
			f, err := readStringAt(data, ref)
			if err != nil {
				return Aggregate{}, 0, err
			}
			agg.Flags[i] = f
		}
	}

	return agg, off, nil
}

func readStringAt(data []byte, off uint32) (string, error) {
	if int(off)+4 > len(data) {
		return "", trace.Errorf("string offset %d out of range", off)
	}
	n := binary.LittleEndian.Uint32(data[off : off+4])
	start := int(off) + 4
	if start+int(n) > len(data) {
		return "", trace.Errorf("string at offset %d overruns data (len %d)", off, n)
	}
	return string(data[start : start+int(n)]), nil
}

func readCommitsAt(data []byte, off uint32, count uint32) ([]string, error) {
	if count == 0 {
		return nil, nil
	}
	out := make([]string, 0, count)
	cursor := int(off)
	for i := uint32(0); i < count; i++ {
		if cursor+2 > len(data) {
			return nil, trace.Errorf("commit entry at offset %d out of range", cursor)
		}
		n := binary.LittleEndian.Uint16(data[cursor : cursor+2])
		cursor += 2
		if cursor+int(n) > len(data) {
			return nil, trace.Errorf("commit entry at offset %d overruns data", cursor)
		}
		out = append(out, string(data[cursor:cursor+int(n)]))
		cursor += int(n)
	}
	return out, nil
}

// GetTestAggregates returns up to count aggregates starting at
// offset, ordered updated_at descending with test_id ascending as a
// tie-break. Identities with no buckets left in the reader's window
// are dropped entirely rather than returned with all-zero counts.
func (r *Reader) GetTestAggregates(offset, count int) ([]Aggregate, error) {
	if offset < 0 || count < 0 {
		return nil, rerr.New(rerr.CorruptAggregate, trace.Errorf("invalid offset/count: %d/%d", offset, count), "querying aggregate store")
	}
	if offset >= len(r.all) {
		return nil, nil
	}
	end := offset + count
	if end > len(r.all) {
		end = len(r.all)
	}
	out := make([]Aggregate, end-offset)
	copy(out, r.all[offset:end])
	return out, nil
}

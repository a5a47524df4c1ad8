package aggregate

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"

	"github.com/daeho-ro/test-results-parser/model"
	"github.com/gravitational/trace"
)

// record is a Writer's in-memory representation of one test identity.
type record struct {
	testID    model.TestID
	name      string
	testsuite string
	flags     []string
	updatedAt int64

	avgDuration  float64
	lastDuration float64

	buckets map[int32]*bucketState
}

type bucketState struct {
	dayIndex    int32
	passCount   uint32
	failCount   uint32
	skipCount   uint32
	commitSeen  map[string]struct{}
	commitOrder []string
}

func (b *bucketState) addCommit(hash string) {
	if hash == "" {
		return
	}
	if b.commitSeen == nil {
		b.commitSeen = make(map[string]struct{})
	}
	if _, ok := b.commitSeen[hash]; ok {
		return
	}
	if len(b.commitOrder) >= maxCommitsPerBucket {
		return
	}
	b.commitSeen[hash] = struct{}{}
	b.commitOrder = append(b.commitOrder, hash)
}

func (b *bucketState) sampleCount() int64 {
	return int64(b.passCount) + int64(b.failCount) + int64(b.skipCount)
}

// flakyFailCount is derived, not accumulated: a failure in a bucket is
// flaky iff the same identity also passed at least once in that same
// bucket, regardless of which order the two runs were ingested in.
func (b *bucketState) flakyFailCount() uint32 {
	if b.passCount > 0 {
		return b.failCount
	}
	return 0
}

// Writer folds Testrun batches into per-identity historical
// statistics and serializes them to the binary layout documented in
// format.go.
type Writer struct {
	window  int
	records map[model.TestID]*record
}

// NewWriter constructs a Writer retaining window days of bucket
// history. existing, if non-nil and non-empty, is previously
// serialized store bytes that are rehydrated into the Writer's
// in-memory state so ingestion can resume across process restarts.
func NewWriter(window int, existing []byte) (*Writer, error) {
	w := &Writer{
		window:  window,
		records: make(map[model.TestID]*record),
	}
	if len(existing) == 0 {
		return w, nil
	}

	// NewReader validates the header and every record; the records are
	// then parsed again without a query window so no bucket is lost.
	if _, err := NewReader(existing, 0); err != nil {
		return nil, trace.Wrap(err, "rehydrating writer from existing store")
	}

	numRecords := binary.LittleEndian.Uint32(existing[8:12])
	cursor := headerSize
	for i := uint32(0); i < numRecords; i++ {
		agg, next, err := parseRecordEntry(existing, cursor)
		if err != nil {
			return nil, trace.Wrap(err, "rehydrating writer from existing store")
		}
		cursor = next
		rec := &record{
			testID:       agg.TestID,
			name:         agg.Name,
			testsuite:    agg.Testsuite,
			flags:        agg.Flags,
			updatedAt:    agg.UpdatedAt,
			avgDuration:  agg.AvgDuration,
			lastDuration: agg.LastDuration,
			buckets:      make(map[int32]*bucketState),
		}
		for _, bs := range agg.Buckets {
			state := &bucketState{
				dayIndex:  bs.DayIndex,
				passCount: bs.PassCount,
				failCount: bs.FailCount,
				skipCount: bs.SkipCount,
			}
			for _, c := range bs.FailCommits {
				state.addCommit(c)
			}
			rec.buckets[bs.DayIndex] = state
		}
		w.records[agg.TestID] = rec
	}

	return w, nil
}

// AddTestruns folds one batch of testruns, all observed at timestamp
// (unix seconds) on commitHash with the given upload flags, into the
// store.
func (w *Writer) AddTestruns(timestamp int64, commitHash string, flags []string, testruns []*model.Testrun) error {
	canonicalFlags := model.CanonicalizeFlags(flags)
	day := dayIndexOf(timestamp)

	for _, tr := range testruns {
		identity := model.NewIdentity(tr.IdentityName(), tr.Testsuite, canonicalFlags)
		id := identity.Hash()

		rec, ok := w.records[id]
		if !ok {
			rec = &record{
				testID:    id,
				name:      identity.Name,
				testsuite: identity.Testsuite,
				flags:     identity.Flags,
				buckets:   make(map[int32]*bucketState),
			}
			w.records[id] = rec
		}

		if timestamp > rec.updatedAt {
			rec.updatedAt = timestamp
		}

		weight := int64(0)
		for _, b := range rec.buckets {
			weight += b.sampleCount()
		}
		rec.avgDuration = (rec.avgDuration*float64(weight) + tr.Duration) / float64(weight+1)
		rec.lastDuration = tr.Duration

		bucket, ok := rec.buckets[day]
		if !ok {
			bucket = &bucketState{dayIndex: day}
			rec.buckets[day] = bucket
		}

		switch tr.Outcome {
		case model.OutcomePass:
			bucket.passCount++
		case model.OutcomeFailure, model.OutcomeError:
			bucket.failCount++
			bucket.addCommit(commitHash)
		case model.OutcomeSkip:
			bucket.skipCount++
		}

		w.evictOldBuckets(rec, day)
	}

	return nil
}

func (w *Writer) evictOldBuckets(rec *record, referenceDay int32) {
	if w.window <= 0 {
		return
	}
	cutoff := referenceDay - int32(w.window) + 1
	for idx := range rec.buckets {
		if idx < cutoff {
			delete(rec.buckets, idx)
		}
	}
}

// Serialize writes the current store to the binary layout documented
// in format.go.
func (w *Writer) Serialize() ([]byte, error) {
	ids := make([]model.TestID, 0, len(w.records))
	for id := range w.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := w.records[ids[i]], w.records[ids[j]]
		if ri.updatedAt != rj.updatedAt {
			return ri.updatedAt > rj.updatedAt
		}
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	var commitsBuf bytes.Buffer
	var stringsBuf bytes.Buffer
	stringOffsets := make(map[string]uint32)

	internString := func(s string) uint32 {
		if off, ok := stringOffsets[s]; ok {
			return off
		}
		off := uint32(stringsBuf.Len())
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(s)))
		stringsBuf.Write(lenPrefix[:])
		stringsBuf.WriteString(s)
		stringOffsets[s] = off
		return off
	}

	type bucketRefs struct {
		state      *bucketState
		commitsOff uint32
		commitsLen uint32
	}
	type recordRefs struct {
		rec       *record
		nameRef   uint32
		suiteRef  uint32
		flagsRefs []uint32
		buckets   []bucketRefs
	}

	recRefs := make([]recordRefs, 0, len(ids))
	var recordEntriesLen int

	for _, id := range ids {
		rec := w.records[id]

		rr := recordRefs{
			rec:      rec,
			nameRef:  internString(rec.name),
			suiteRef: internString(rec.testsuite),
		}
		for _, f := range rec.flags {
			rr.flagsRefs = append(rr.flagsRefs, internString(f))
		}

		dayIdxs := make([]int32, 0, len(rec.buckets))
		for idx := range rec.buckets {
			dayIdxs = append(dayIdxs, idx)
		}
		sort.Slice(dayIdxs, func(i, j int) bool { return dayIdxs[i] < dayIdxs[j] })

		for _, idx := range dayIdxs {
			b := rec.buckets[idx]
			off := uint32(commitsBuf.Len())
			for _, c := range b.commitOrder {
				var lenPrefix [2]byte
				binary.LittleEndian.PutUint16(lenPrefix[:], uint16(len(c)))
				commitsBuf.Write(lenPrefix[:])
				commitsBuf.WriteString(c)
			}
			rr.buckets = append(rr.buckets, bucketRefs{
				state:      b,
				commitsOff: off,
				commitsLen: uint32(len(b.commitOrder)),
			})
		}

		recRefs = append(recRefs, rr)

		recordEntriesLen += 16 + 4 + 4 + 2 + 4*len(rr.flagsRefs) + 8 + 8 + 8 + 2 + bucketSize*len(rr.buckets)
	}

	commitsBase := uint32(headerSize + recordEntriesLen)
	stringsOff := commitsBase + uint32(commitsBuf.Len())

	var out bytes.Buffer
	out.Grow(int(stringsOff) + stringsBuf.Len())

	var header [headerSize]byte
	copy(header[0:4], magic)
	header[4] = formatVersion
	if w.window >= 0 && w.window <= 255 {
		header[5] = byte(w.window)
	}
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(ids)))
	binary.LittleEndian.PutUint32(header[12:16], stringsOff)
	out.Write(header[:])

	for _, rr := range recRefs {
		out.Write(rr.rec.testID[:])

		writeU32(&out, stringsOff+rr.nameRef)
		writeU32(&out, stringsOff+rr.suiteRef)

		writeU16(&out, uint16(len(rr.flagsRefs)))
		for _, fr := range rr.flagsRefs {
			writeU32(&out, stringsOff+fr)
		}

		writeI64(&out, rr.rec.updatedAt)
		writeF64(&out, rr.rec.avgDuration)
		writeF64(&out, rr.rec.lastDuration)

		writeU16(&out, uint16(len(rr.buckets)))
		for _, br := range rr.buckets {
			writeU32(&out, uint32(br.state.dayIndex))
			writeU32(&out, br.state.passCount)
			writeU32(&out, br.state.failCount)
			writeU32(&out, br.state.flakyFailCount())
			writeU32(&out, br.state.skipCount)
			writeU32(&out, commitsBase+br.commitsOff)
			writeU32(&out, br.commitsLen)
		}
	}

	out.Write(commitsBuf.Bytes())
	out.Write(stringsBuf.Bytes())

	return out.Bytes(), nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeF64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

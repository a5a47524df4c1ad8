// Package packed implements the compact, self-describing binary
// serialization of model.ParsingInfo described in spec.md §4.2/§2: a
// sequence of msgpack-encoded records, each framed with a 4-byte
// little-endian length prefix so a reader can split the stream into
// per-file chunks without needing its own msgpack decoder to find
// frame boundaries.
package packed

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/daeho-ro/test-results-parser/model"
	"github.com/gravitational/trace"
	"github.com/vmihailenco/msgpack/v5"
)

// wireTestrun mirrors model.Testrun with explicit msgpack field names
// matching spec.md §3's wire vocabulary. build_url is always present
// (possibly nil), never omitted, so a generic decoder sees a stable
// shape across every record.
type wireTestrun struct {
	Name           string  `msgpack:"name"`
	Classname      string  `msgpack:"classname"`
	Testsuite      string  `msgpack:"testsuite"`
	Duration       float64 `msgpack:"duration"`
	Outcome        string  `msgpack:"outcome"`
	FailureMessage *string `msgpack:"failure_message"`
	Filename       *string `msgpack:"filename"`
	BuildURL       *string `msgpack:"build_url"`
	ComputedName   *string `msgpack:"computed_name"`
}

type wireParsingInfo struct {
	Framework *string       `msgpack:"framework"`
	Testruns  []wireTestrun `msgpack:"testruns"`
}

func toWire(info *model.ParsingInfo) wireParsingInfo {
	var framework *string
	if info.Framework != "" && info.Framework != model.FrameworkUnknown {
		f := string(info.Framework)
		framework = &f
	}

	testruns := make([]wireTestrun, 0, len(info.Testruns))
	for _, t := range info.Testruns {
		testruns = append(testruns, wireTestrun{
			Name:           t.Name,
			Classname:      t.Classname,
			Testsuite:      t.Testsuite,
			Duration:       t.Duration,
			Outcome:        string(t.Outcome),
			FailureMessage: t.FailureMessage,
			Filename:       t.Filename,
			BuildURL:       t.BuildURL,
			ComputedName:   t.ComputedName,
		})
	}

	return wireParsingInfo{Framework: framework, Testruns: testruns}
}

// Encode msgpack-encodes each ParsingInfo independently and
// concatenates them as 4-byte-length-prefixed frames, in order.
func Encode(infos []*model.ParsingInfo) ([]byte, error) {
	var out bytes.Buffer

	for _, info := range infos {
		body, err := msgpack.Marshal(toWire(info))
		if err != nil {
			return nil, trace.Wrap(err, "msgpack encoding parsing info")
		}

		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(body)))
		out.Write(lenPrefix[:])
		out.Write(body)
	}

	return out.Bytes(), nil
}

// Decode reverses Encode, reading length-prefixed msgpack frames
// until the stream is exhausted.
func Decode(data []byte) ([]*model.ParsingInfo, error) {
	r := bytes.NewReader(data)
	var out []*model.ParsingInfo

	for {
		var lenPrefix [4]byte
		_, err := io.ReadFull(r, lenPrefix[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, trace.Wrap(err, "reading packed frame length")
		}

		n := binary.LittleEndian.Uint32(lenPrefix[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, trace.Wrap(err, "reading packed frame body")
		}

		var wire wireParsingInfo
		if err := msgpack.Unmarshal(body, &wire); err != nil {
			return nil, trace.Wrap(err, "msgpack decoding parsing info")
		}

		info := &model.ParsingInfo{Framework: model.FrameworkUnknown}
		if wire.Framework != nil {
			info.Framework = model.Framework(*wire.Framework)
		}
		for _, wt := range wire.Testruns {
			info.Testruns = append(info.Testruns, &model.Testrun{
				Name:           wt.Name,
				Classname:      wt.Classname,
				Testsuite:      wt.Testsuite,
				Duration:       wt.Duration,
				Outcome:        model.Outcome(wt.Outcome),
				FailureMessage: wt.FailureMessage,
				Filename:       wt.Filename,
				BuildURL:       wt.BuildURL,
				ComputedName:   wt.ComputedName,
			})
		}
		out = append(out, info)
	}

	return out, nil
}

// Package upload implements the Upload-Decoder component of spec.md
// §4.2: it maps one upload envelope (a JSON document carrying one or
// more base64+zlib-compressed JUnit-XML payloads) to a readable
// transcript and a packed binary stream of model.ParsingInfo records.
package upload

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/daeho-ro/test-results-parser/junitxml"
	"github.com/daeho-ro/test-results-parser/model"
	"github.com/daeho-ro/test-results-parser/packed"
	"github.com/daeho-ro/test-results-parser/rerr"
	"github.com/gravitational/trace"
)

// Envelope is the on-the-wire upload shape: one entry per uploaded
// file, each holding a base64-encoded, zlib-compressed JUnit-XML
// document. Network is accepted for schema compatibility and ignored.
type Envelope struct {
	Network          []string     `json:"network,omitempty"`
	TestResultsFiles []FileUpload `json:"test_results_files"`
}

// FileUpload is a single compressed file within an Envelope. Format
// must equal "base64+compressed"; any other value is a RuntimeError.
type FileUpload struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Data     string `json:"data"`
}

const formatBase64Compressed = "base64+compressed"

// Result is the Upload-Decoder's output: a human-readable transcript
// and a length-delimited packed binary stream, one ParsingInfo frame
// per file, in envelope order.
type Result struct {
	Readable []byte
	Packed   []byte
}

// Decode parses raw as an Envelope, decodes and parses each file in
// order, and aborts at the first file that fails. Ordering is load
// bearing: spec.md requires the packed stream and the readable
// transcript to both reflect envelope order, and requires the whole
// decode to abort rather than skip a bad file.
func Decode(raw []byte) (*Result, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, rerr.New(rerr.InvalidEnvelope, trace.Wrap(err), "decoding upload envelope")
	}

	var readable bytes.Buffer
	infos := make([]*model.ParsingInfo, 0, len(env.TestResultsFiles))

	for _, f := range env.TestResultsFiles {
		xmlBytes, err := decodeFile(f)
		if err != nil {
			return nil, err
		}

		fmt.Fprintf(&readable, "# path=%s\n", f.Filename)
		readable.Write(xmlBytes)
		readable.WriteByte('\n')
		readable.WriteString("<<<<<< EOF\n")

		info, err := junitxml.Parse(xmlBytes)
		if err != nil {
			return nil, rerr.New(rerr.ParserError, trace.Wrap(err), "parsing %s", f.Filename)
		}
		infos = append(infos, info)
	}

	packedBytes, err := packed.Encode(infos)
	if err != nil {
		return nil, rerr.New(rerr.DecodeFailure, trace.Wrap(err), "encoding packed stream")
	}

	return &Result{Readable: readable.Bytes(), Packed: packedBytes}, nil
}

// decodeFile base64-decodes and zlib-decompresses a single upload
// entry. format must equal "base64+compressed"; anything else is a
// RuntimeError before any decoding is attempted.
func decodeFile(f FileUpload) ([]byte, error) {
	if f.Format != formatBase64Compressed {
		return nil, rerr.New(rerr.InvalidEnvelope, trace.Errorf("unsupported format %q", f.Format), "decoding %s", f.Filename)
	}

	compressed, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return nil, rerr.New(rerr.DecodeFailure, trace.Wrap(err), "base64 decoding %s", f.Filename)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, rerr.New(rerr.DecodeFailure, trace.Wrap(err), "opening zlib stream for %s", f.Filename)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, rerr.New(rerr.DecodeFailure, trace.Wrap(err), "inflating %s", f.Filename)
	}
	return data, nil
}

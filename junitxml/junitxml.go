// Package junitxml implements the heuristic multi-framework JUnit-XML
// parser described in spec.md §4.1: it maps a byte buffer holding a
// JUnit-family document to a model.ParsingInfo, detecting the
// producing framework and normalizing its dialect's quirks away.
package junitxml

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/daeho-ro/test-results-parser/model"
	"github.com/daeho-ro/test-results-parser/rerr"
	"github.com/gravitational/trace"
)

// pendingRun accumulates a testcase's fields while parsing, before
// the enclosing suite's duration fallback and the document-level
// framework detection can run.
type pendingRun struct {
	name      string // raw, entity-undecoded
	classname string // raw, entity-undecoded
	testsuite string // whole-field decoded (suite name)
	duration  float64
	hasOwnDur bool
	outcome   model.Outcome
	failMsg   *string
	filename  *string
}

// suiteFrame tracks one level of (possibly nested) <testsuite>.
type suiteFrame struct {
	name       string
	timeAttr   float64
	hasTime    bool
	fileAttr   string
	pending    []*pendingRun
}

type failureOrError struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

func (f *failureOrError) trimmedText() string {
	return strings.TrimSpace(f.Text)
}

type skipped struct {
	XMLName xml.Name `xml:"skipped"`
}

type testcaseBody struct {
	XMLName   xml.Name         `xml:"testcase"`
	Time      *string          `xml:"time,attr"`
	File      *string          `xml:"file,attr"`
	Failure   *failureOrError  `xml:"failure"`
	Error     *failureOrError  `xml:"error"`
	Skipped   *skipped         `xml:"skipped"`
}

// Parse maps data to a ParsingInfo, or returns a ParserError-kind
// rerr.RuntimeError for malformed XML, an unrecognized root shape, or
// a document with no acceptable root element at all.
func Parse(data []byte) (*model.ParsingInfo, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		stack          []*suiteFrame
		finalized      []*pendingRun
		suiteNames     []string
		suiteFileAttrs []string
		sawRoot        bool
	)

	for {
		prevOffset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, rerr.New(rerr.ParserError, trace.Wrap(err), "parsing junit xml")
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if !sawRoot && el.Name.Local != "testsuites" && el.Name.Local != "testsuite" {
				return nil, rerr.New(rerr.ParserError, trace.Errorf("unexpected root element <%s>", el.Name.Local), "parsing junit xml")
			}
			switch el.Name.Local {
			case "testsuites":
				if !sawRoot {
					sawRoot = true
				}
			case "testsuite":
				if !sawRoot {
					sawRoot = true
				}

				frame := &suiteFrame{}
				for _, a := range el.Attr {
					switch a.Name.Local {
					case "name":
						frame.name = a.Value
					case "time":
						if v, err := strconv.ParseFloat(a.Value, 64); err == nil {
							frame.timeAttr = v
							frame.hasTime = true
						}
					case "file":
						frame.fileAttr = a.Value
					}
				}
				suiteNames = append(suiteNames, frame.name)
				if frame.fileAttr != "" {
					suiteFileAttrs = append(suiteFileAttrs, frame.fileAttr)
				}
				stack = append(stack, frame)

			case "testcase":
				currOffset := dec.InputOffset()
				rawTag := extractStartTag(data[prevOffset:currOffset])
				name, _ := rawAttr(rawTag, "name")
				classname, _ := rawAttr(rawTag, "classname")

				var body testcaseBody
				if err := dec.DecodeElement(&body, &el); err != nil {
					return nil, rerr.New(rerr.ParserError, trace.Wrap(err), "parsing testcase element")
				}

				run := &pendingRun{
					name:      name,
					classname: classname,
					outcome:   model.OutcomePass,
				}

				if body.Time != nil {
					if v, err := strconv.ParseFloat(*body.Time, 64); err == nil {
						run.duration = v
						run.hasOwnDur = true
					}
				}
				if body.File != nil {
					filename := *body.File
					run.filename = &filename
				}

				switch {
				case body.Skipped != nil:
					run.outcome = model.OutcomeSkip
				case body.Error != nil:
					run.outcome = model.OutcomeError
					if msg := body.Error.trimmedText(); msg != "" {
						run.failMsg = &msg
					}
				case body.Failure != nil:
					run.outcome = model.OutcomeFailure
					if msg := body.Failure.trimmedText(); msg != "" {
						run.failMsg = &msg
					} else if body.Failure.Message != "" {
						msg := body.Failure.Message
						run.failMsg = &msg
					}
				}

				if len(stack) == 0 {
					// Bare <testcase> with no enclosing suite: treat
					// as belonging to an implicit unnamed suite so it
					// is never silently dropped.
					stack = append(stack, &suiteFrame{})
				}
				top := stack[len(stack)-1]
				top.pending = append(top.pending, run)
			}

		case xml.EndElement:
			if el.Name.Local == "testsuite" && len(stack) > 0 {
				frame := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				count := len(frame.pending)
				for _, r := range frame.pending {
					if !r.hasOwnDur {
						if frame.hasTime && count > 0 {
							r.duration = frame.timeAttr / float64(count)
						} else {
							r.duration = 0
						}
					}
					r.testsuite = frame.name
				}
				finalized = append(finalized, frame.pending...)
			}
		}
	}

	if !sawRoot {
		return nil, rerr.New(rerr.ParserError, trace.Errorf("no testsuite or testsuites root element found"), "parsing junit xml")
	}

	// Frames still open here are the implicit suites opened for bare
	// <testcase> elements (the tokenizer itself rejects unclosed tags);
	// they are flushed in place, innermost first, same as a normal close.
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		count := len(frame.pending)
		for _, r := range frame.pending {
			if !r.hasOwnDur {
				if frame.hasTime && count > 0 {
					r.duration = frame.timeAttr / float64(count)
				} else {
					r.duration = 0
				}
			}
			r.testsuite = frame.name
		}
		finalized = append(finalized, frame.pending...)
	}

	framework := detectFramework(suiteNames, suiteFileAttrs, finalized)

	testruns := make([]*model.Testrun, 0, len(finalized))
	for _, r := range finalized {
		testruns = append(testruns, r.toTestrun(framework))
	}

	return &model.ParsingInfo{
		Framework: model.Framework(framework),
		Testruns:  testruns,
	}, nil
}

// toTestrun finalizes a pendingRun into a Testrun. Name and Classname
// keep their raw, entity-undecoded form regardless of framework (Go's
// XML decoder always decodes attribute entities, so rawAttr's
// byte-span extraction is the only way to preserve them); every other
// field already went through normal, whole-field stdlib decoding.
// Entity decoding of Name/Classname happens only inside computeName.
func (r *pendingRun) toTestrun(framework string) *model.Testrun {
	t := &model.Testrun{
		Name:           r.name,
		Classname:      r.classname,
		Testsuite:      r.testsuite,
		Duration:       r.duration,
		Outcome:        r.outcome,
		FailureMessage: r.failMsg,
		Filename:       r.filename,
	}
	t.ComputedName = computeName(r, framework)
	return t
}

// computeName implements spec.md §4.1's per-framework computed_name
// rule. name/classname are the raw (entity-undecoded) fields; entity
// decoding happens here, exactly once, as spec.md requires.
func computeName(r *pendingRun, framework string) *string {
	name := decodeEntities(r.name)
	classname := decodeEntities(r.classname)

	var out string
	switch framework {
	case frameworkPytest:
		// A nested inner <testsuite> (e.g. a class grouped under the
		// outer "pytest" suite) reports its own name as the testsuite,
		// not "pytest"; its cases never get a computed name even
		// though the document as a whole was detected as Pytest.
		if r.testsuite != "pytest" {
			return nil
		}
		if r.filename != nil {
			shortClassname := classname
			if idx := strings.LastIndexByte(classname, '.'); idx >= 0 {
				shortClassname = classname[idx+1:]
			}
			out = *r.filename + "::" + shortClassname + "::" + name
		} else {
			out = classname + "::" + name
		}
	case frameworkVitest:
		if prefix, rest, ok := strings.Cut(name, " > "); ok && prefix == classname {
			out = classname + " > " + rest
		} else {
			out = classname + " > " + name
		}
	case frameworkJest:
		out = name
	case frameworkPHPUnit:
		out = classname + "::" + name
	default:
		return nil
	}
	return &out
}

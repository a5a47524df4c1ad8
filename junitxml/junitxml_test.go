package junitxml

import (
	"testing"

	"github.com/daeho-ro/test-results-parser/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRun(t *testing.T, runs []*model.Testrun, name string) *model.Testrun {
	t.Helper()
	for _, r := range runs {
		if r.Name == name {
			return r
		}
	}
	require.Failf(t, "run not found", "name=%q", name)
	return nil
}

func TestParse_PytestTwoCases(t *testing.T) {
	doc := []byte(`<?xml version="1.0"?>
<testsuites>
  <testsuite name="pytest" tests="2" time="1.2">
    <testcase classname="tests.test_math.TestAdd" name="test_add_ok" time="0.8" file="tests/test_math.py"/>
    <testcase classname="tests.test_math.TestAdd" name="test_add_bad" time="0.4" file="tests/test_math.py">
      <failure message="assert 1 == 2">AssertionError: assert 1 == 2</failure>
    </testcase>
  </testsuite>
</testsuites>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkPytest, info.Framework)
	require.Len(t, info.Testruns, 2)

	ok := findRun(t, info.Testruns, "test_add_ok")
	assert.Equal(t, model.OutcomePass, ok.Outcome)
	require.NotNil(t, ok.ComputedName)
	assert.Equal(t, "tests/test_math.py::TestAdd::test_add_ok", *ok.ComputedName)

	bad := findRun(t, info.Testruns, "test_add_bad")
	assert.Equal(t, model.OutcomeFailure, bad.Outcome)
	require.NotNil(t, bad.FailureMessage)
	assert.Equal(t, "AssertionError: assert 1 == 2", *bad.FailureMessage)
}

func TestParse_NestedTestsuites(t *testing.T) {
	doc := []byte(`<testsuites>
  <testsuite name="outer" time="2.0">
    <testsuite name="inner" time="1.0">
      <testcase classname="inner.Klass" name="a"/>
    </testsuite>
    <testcase classname="outer.Klass" name="b"/>
  </testsuite>
</testsuites>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, info.Testruns, 2)

	a := findRun(t, info.Testruns, "a")
	assert.Equal(t, "inner", a.Testsuite)
	b := findRun(t, info.Testruns, "b")
	assert.Equal(t, "outer", b.Testsuite)
}

func TestParse_NestedPytestSuiteHasNoComputedName(t *testing.T) {
	doc := []byte(`<testsuites>
  <testsuite name="pytest" time="0.372">
    <testsuite name="nested_testsuite" time="0.186">
      <testcase classname="tests.test_parsers.TestParsers" name="test_junit[junit.xml--True]" time="0.186">
        <failure message="aaaaaaa">aaaaaaa</failure>
      </testcase>
    </testsuite>
    <testcase classname="tests.test_parsers.TestParsers" name="test_junit[jest-junit.xml--False]" time="0.186"/>
  </testsuite>
</testsuites>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkPytest, info.Framework)
	require.Len(t, info.Testruns, 2)

	nested := findRun(t, info.Testruns, "test_junit[junit.xml--True]")
	assert.Equal(t, "nested_testsuite", nested.Testsuite)
	assert.Nil(t, nested.ComputedName)

	direct := findRun(t, info.Testruns, "test_junit[jest-junit.xml--False]")
	assert.Equal(t, "pytest", direct.Testsuite)
	require.NotNil(t, direct.ComputedName)
	assert.Equal(t, "tests.test_parsers.TestParsers::test_junit[jest-junit.xml--False]", *direct.ComputedName)
}

func TestParse_DurationFallsBackToSuiteAverage(t *testing.T) {
	doc := []byte(`<testsuite name="s" time="2.0">
  <testcase classname="c" name="one"/>
  <testcase classname="c" name="two"/>
</testsuite>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	for _, r := range info.Testruns {
		assert.Equal(t, 1.0, r.Duration)
	}
}

func TestParse_EmptyFailureElement(t *testing.T) {
	doc := []byte(`<testsuite name="s">
  <testcase classname="c" name="one">
    <failure/>
  </testcase>
</testsuite>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, info.Testruns, 1)
	r := info.Testruns[0]
	assert.Equal(t, model.OutcomeFailure, r.Outcome)
	assert.Nil(t, r.FailureMessage)
}

func TestParse_SkipBeatsFailure(t *testing.T) {
	doc := []byte(`<testsuite name="s">
  <testcase classname="c" name="one">
    <skipped/>
    <failure message="boom">boom</failure>
  </testcase>
</testsuite>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSkip, info.Testruns[0].Outcome)
}

func TestParse_Vitest(t *testing.T) {
	doc := []byte(`<testsuites>
  <testsuite name="src/math.test.ts">
    <testcase classname="src/math.test.ts" name="src/math.test.ts &gt; add &gt; adds two numbers" time="0.01"/>
  </testsuite>
</testsuites>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkVitest, info.Framework)
	require.NotNil(t, info.Testruns[0].ComputedName)
	assert.Equal(t, "src/math.test.ts > add > adds two numbers", *info.Testruns[0].ComputedName)
}

func TestParse_Jest(t *testing.T) {
	doc := []byte(`<testsuites>
  <testsuite name="Jest Tests">
    <testcase classname="math › add › adds two numbers" name="math › add › adds two numbers" time="0.02"/>
  </testsuite>
</testsuites>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkJest, info.Framework)
	require.NotNil(t, info.Testruns[0].ComputedName)
	assert.Equal(t, "math › add › adds two numbers", *info.Testruns[0].ComputedName)
}

func TestParse_PHPUnit(t *testing.T) {
	doc := []byte(`<testsuite name="root">
  <testsuite name="Tests\\Unit\\MathTest" file="tests/Unit/MathTest.php">
    <testcase classname="Tests\\Unit\\MathTest" name="testAdd" time="0.01"/>
  </testsuite>
</testsuite>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkPHPUnit, info.Framework)
	require.NotNil(t, info.Testruns[0].ComputedName)
	assert.Equal(t, `Tests\\Unit\\MathTest::testAdd`, *info.Testruns[0].ComputedName)
}

func TestParse_UnknownFrameworkHasNilComputedName(t *testing.T) {
	doc := []byte(`<testsuite name="ctest">
  <testcase classname="MathSuite" name="SomeOtherShapeEntirely"/>
</testsuite>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, model.FrameworkUnknown, info.Framework)
	assert.Nil(t, info.Testruns[0].ComputedName)
}

func TestParse_RawAttributesPreserveEntitiesUntilComputedName(t *testing.T) {
	doc := []byte(`<testsuite name="s">
  <testcase classname="c&gt;d" name="n&amp;m"/>
</testsuite>`)

	info, err := Parse(doc)
	require.NoError(t, err)
	r := info.Testruns[0]
	assert.Equal(t, "c&gt;d", r.Classname)
	assert.Equal(t, "n&amp;m", r.Name)
}

func TestParse_NoTestsuiteElementIsError(t *testing.T) {
	doc := []byte(`<notjunit/>`)
	_, err := Parse(doc)
	require.Error(t, err)
}

func TestParse_EmptyTestsuitesIsNotError(t *testing.T) {
	doc := []byte(`<testsuites/>`)
	info, err := Parse(doc)
	require.NoError(t, err)
	assert.Empty(t, info.Testruns)
}

func TestParse_MalformedXML(t *testing.T) {
	doc := []byte(`<testsuite name="s"><testcase name="a"`)
	_, err := Parse(doc)
	require.Error(t, err)
}

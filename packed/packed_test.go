package packed

import (
	"testing"

	"github.com/daeho-ro/test-results-parser/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	name := "computed"
	infos := []*model.ParsingInfo{
		{
			Framework: model.FrameworkPytest,
			Testruns: []*model.Testrun{
				{
					Name:         "test_one",
					Classname:    "pkg.TestOne",
					Testsuite:    "pytest",
					Duration:     1.5,
					Outcome:      model.OutcomePass,
					ComputedName: &name,
				},
			},
		},
		{
			Framework: model.FrameworkUnknown,
			Testruns:  nil,
		},
	}

	data, err := Encode(infos)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	assert.Equal(t, model.FrameworkPytest, decoded[0].Framework)
	require.Len(t, decoded[0].Testruns, 1)
	assert.Equal(t, "test_one", decoded[0].Testruns[0].Name)
	assert.Equal(t, 1.5, decoded[0].Testruns[0].Duration)
	require.NotNil(t, decoded[0].Testruns[0].ComputedName)
	assert.Equal(t, "computed", *decoded[0].Testruns[0].ComputedName)

	assert.Equal(t, model.FrameworkUnknown, decoded[1].Framework)
	assert.Empty(t, decoded[1].Testruns)
}

func TestEncodeMultipleFramesAreIndependentlyLengthPrefixed(t *testing.T) {
	infos := []*model.ParsingInfo{
		{Framework: model.FrameworkJest},
		{Framework: model.FrameworkVitest},
	}
	data, err := Encode(infos)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, model.FrameworkJest, decoded[0].Framework)
	assert.Equal(t, model.FrameworkVitest, decoded[1].Framework)
}

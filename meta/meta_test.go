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

package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ExplicitOverridesWin(t *testing.T) {
	m, err := New("ABCDEF", []string{"unit", "integration"})
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", m.CommitHash)
	assert.Equal(t, []string{"unit", "integration"}, m.Flags)
}

func TestNew_FallsBackToEnvironment(t *testing.T) {
	t.Setenv("GITHUB_SHA", "DEADBEEF")
	t.Setenv("TRP_FLAGS", "unit,e2e")

	m, err := New("", nil)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", m.CommitHash)
	assert.Equal(t, []string{"unit", "e2e"}, m.Flags)
}

func TestNew_NoCommitHashAvailableIsError(t *testing.T) {
	t.Setenv("GITHUB_SHA", "")
	_, err := New("", nil)
	require.Error(t, err)
}

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewCheckError(KindFilesystem, base)

	require.ErrorIs(t, err, base)
	assert.Equal(t, "filesystem error: boom", err.Error())
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected []ErrorKind
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: nil,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: nil,
		},
		{
			name:     "single check error",
			err:      NewCheckError(KindMismatch, errors.New("differs")),
			expected: []ErrorKind{KindMismatch},
		},
		{
			name:     "wrapped check error",
			err:      fmt.Errorf("context: %w", NewCheckError(KindProcess, errors.New("spawn"))),
			expected: []ErrorKind{KindProcess},
		},
		{
			name: "joined check errors keep order",
			err: errors.Join(
				NewCheckError(KindConfiguration, errors.New("missing -run")),
				NewCheckError(KindConfiguration, errors.New("missing -acc")),
				NewCheckError(KindFilesystem, errors.New("missing exe")),
			),
			expected: []ErrorKind{KindConfiguration, KindConfiguration, KindFilesystem},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorKinds(tt.err))
		})
	}
}

func TestHasKind(t *testing.T) {
	err := errors.Join(
		NewCheckError(KindProcess, errors.New("spawn")),
		NewCheckError(KindMismatch, errors.New("differs")),
	)
	assert.True(t, HasKind(err, KindProcess))
	assert.True(t, HasKind(err, KindMismatch))
	assert.False(t, HasKind(err, KindConfiguration))
}

func TestGetTestDisplayName(t *testing.T) {
	withDescription := &TestResult{
		Metadata: TestMetadata{ID: "a/testconfig.txt"},
		Case:     &TestCase{Description: "echo works"},
	}
	assert.Equal(t, "echo works", GetTestDisplayName(withDescription))

	withoutCase := &TestResult{Metadata: TestMetadata{ID: "a/testconfig.txt"}}
	assert.Equal(t, "a/testconfig.txt", GetTestDisplayName(withoutCase))

	withoutID := &TestResult{Metadata: TestMetadata{Dir: "a", ConfigFile: "testconfig.txt"}}
	assert.Equal(t, "a/testconfig.txt", GetTestDisplayName(withoutID))
}

func TestCommandLine(t *testing.T) {
	tc := &TestCase{Executable: "echo.sh"}
	assert.Equal(t, "echo.sh", tc.CommandLine())

	tc.Args = []string{"hello", "world"}
	assert.Equal(t, "echo.sh hello world", tc.CommandLine())
}

package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(StagingIO, "copy failed", cause)

	require.ErrorIs(t, err, cause)

	var taxErr *Error
	require.True(t, errors.As(err, &taxErr))
	assert.Equal(t, StagingIO, taxErr.Kind)
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrapf(CompilationFailed, errors.New("exit status 1"), "go build in %s", "/tmp/ws")

	assert.Contains(t, err.Error(), "go build in /tmp/ws")
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Contains(t, err.Error(), "compilation_failed")
}

func TestNewHasNoCause(t *testing.T) {
	err := New(UnknownProblem, `"typo" is not a recognized problem`)

	assert.Nil(t, err.Unwrap())
	assert.Equal(t, "unknown_problem", err.Kind.String())
}

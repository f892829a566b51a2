package errors_test

import (
	"errors"
	"fmt"
	"testing"

	qaerrors "github.com/xCures/llm-qa-extraction-pipeline/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	t.Run("with component", func(t *testing.T) {
		err := qaerrors.NewConfigError("reconcile", "no match keys", nil)
		assert.Equal(t, "configuration error in reconcile: no match keys", err.Error())
		assert.True(t, qaerrors.IsConfig(err))
		assert.False(t, qaerrors.IsParse(err))
	})

	t.Run("wrapped cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := qaerrors.NewConfigError("", "load", cause)
		assert.Equal(t, "configuration error: load: boom", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("Reconcile: %w", qaerrors.MissingColumn("fieldmap", "reference", "plan"))
		assert.True(t, qaerrors.IsConfig(err))

		var cfgErr *qaerrors.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "fieldmap", cfgErr.Component)
		assert.Contains(t, cfgErr.Message, `"plan"`)
	})
}

func TestParseError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")

	outer := &qaerrors.ParseError{Row: 4, Stage: qaerrors.StageArray, Index: -1, Err: cause}
	assert.Equal(t, "row 4: array: unexpected end of JSON input", outer.Error())

	inner := &qaerrors.ParseError{Row: 4, Stage: qaerrors.StageObject, Index: 2, Err: cause}
	assert.Equal(t, "row 4: object 2: unexpected end of JSON input", inner.Error())

	assert.True(t, qaerrors.IsParse(inner))
	assert.False(t, qaerrors.IsConfig(inner))
	assert.ErrorIs(t, inner, cause)
}

func TestIsEmptyResult(t *testing.T) {
	assert.True(t, qaerrors.IsEmptyResult(fmt.Errorf("flatten: %w", qaerrors.ErrEmptyResult)))
	assert.False(t, qaerrors.IsEmptyResult(errors.New("other")))
}

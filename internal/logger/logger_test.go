package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestNewWithOptions_JSONAndLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{Level: "warn", Format: FormatJSON, Out: buf})

	log.Info().Msg("dropped")
	log.Warn().Str("row", "7").Msg("kept")

	output := buf.String()
	assert.NotContains(t, output, "dropped", "info is below the configured level")
	assert.Contains(t, output, `"row":"7"`)
}

func TestNewWithOptions_AutoOnBufferIsJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{Format: FormatAuto, Out: buf})
	log.Info().Msg("hello")

	require.NotEmpty(t, buf.String())
	assert.Equal(t, byte('{'), buf.Bytes()[0], "a non-terminal writer gets JSON")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	assert.NotZero(t, buf.Len())
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{
		"run_id":    "123",
		"extractor": "medication",
	})
	log.Info().Msg("test message")

	output := buf.String()
	assert.Contains(t, output, `"run_id":"123"`)
	assert.Contains(t, output, `"extractor":"medication"`)
}

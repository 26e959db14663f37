package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, ParseLevel("trace"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestNew_JSONOutsideDevelopment(t *testing.T) {
	// GIVEN: A production logger at warn
	var buf bytes.Buffer
	l := New(Config{Env: "production", Level: "warn", Out: &buf})

	// WHEN: Logging below and at the level
	l.Info().Msg("hidden")
	l.Warn().Str("po", "PO-1").Msg("over receipt")

	// THEN: Only the warn line is written, as JSON with a timestamp
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "PO-1", line["po"])
	assert.Contains(t, line, "time")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("request_id", "r-1").Logger()

	ctx := WithContext(context.Background(), l)
	got := FromContext(ctx)
	got.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"request_id":"r-1"`)
}

func TestFromContext_Empty(t *testing.T) {
	l := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

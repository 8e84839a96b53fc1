package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerIncludesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("component", "test"))

	ctx := ContextWithRequestID(context.Background(), "req-42")
	log.Info(ctx, "fault created", Float("distance_km", 1.5), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fault created", entry["msg"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, 1.5, entry["distance_km"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "text", Output: &buf})

	log.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNoopDropsEverything(t *testing.T) {
	log := Noop().With(Int("n", 1))
	log.Error(context.Background(), "nothing")
	assert.NotNil(t, log)
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", Format: "json", Output: &buf, ServiceName: "csvgen-test"})

	ctx := l.WithContext(context.Background())
	ctx = SetJobID(ctx, "job-1")
	ctx = SetComponent(ctx, "pool")

	assert.Equal(t, "job-1", GetJobID(ctx))

	With(Fields{FieldCount: 3}).WithDuration(12).Info(ctx, "Chunk done: index=%d", 2)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Chunk done: index=2", line["message"])
	assert.Equal(t, "job-1", line[FieldJobID])
	assert.Equal(t, "pool", line[FieldComponent])
	assert.Equal(t, "csvgen-test", line["service"])
	assert.EqualValues(t, 3, line[FieldCount])
	assert.EqualValues(t, 12, line[FieldDurationMs])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

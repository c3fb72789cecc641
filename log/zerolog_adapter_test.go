package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	buf.Reset()
	return out
}

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterFrom(NewZerolog(&buf, zerolog.DebugLevel, false)).
		With(map[string]interface{}{"component": "codec"})

	l.Warn(context.Background(), "encode failed", map[string]interface{}{"kind": "properties"})
	line := decodeLine(t, &buf)
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "codec", line["component"])
	assert.Equal(t, "properties", line["kind"])
	assert.Equal(t, "encode failed", line["message"])
	assert.NotContains(t, line, "trace_id")

	l.Error(context.Background(), "submit failed", errors.New("closed"))
	line = decodeLine(t, &buf)
	assert.Equal(t, "closed", line["error"])
}

func TestZerologAdapter_TraceInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterFrom(NewZerolog(&buf, zerolog.InfoLevel, false))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.Info(ctx, "hello")
	line := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapterFrom(NewZerolog(&buf, zerolog.WarnLevel, false))
	l.Debug(context.Background(), "dropped")
	l.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		OrNop(nil).Info(context.Background(), "nothing")
		Nop().With(map[string]interface{}{"a": 1}).Warn(context.Background(), "nothing")
	})
}

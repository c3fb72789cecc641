package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, err := InitTracerProviderTo("oidcstore-test", &buf)
	require.NoError(t, err)

	_, span := Tracer.Start(context.Background(), "ScopeStore.Create")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "ScopeStore.Create")
	assert.Contains(t, buf.String(), "oidcstore-test")
}

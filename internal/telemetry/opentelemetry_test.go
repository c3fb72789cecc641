package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMeterProvider_ExportsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	mp, err := InitMeterProvider(reg)
	require.NoError(t, err)
	defer Shutdown(context.Background(), mp)

	RecordOperation(context.Background(), "TokenStore.FindByID", false, 3*time.Millisecond)
	RecordOperation(context.Background(), "TokenStore.FindByID", true, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "oidcstore_store_operation_duration") {
			continue
		}
		found = true
		outcomes := map[string]uint64{}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					outcomes[l.GetValue()] += m.GetHistogram().GetSampleCount()
				}
			}
		}
		assert.Equal(t, map[string]uint64{"ok": 1, "error": 1}, outcomes)
	}
	assert.True(t, found, "operation histogram not exported")
}

func TestShutdown_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Shutdown(context.Background(), nil) })
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectmount/objectmount/pkg/ferrors"
)

func TestNewCollectorWithNilConfigUsesDefaults(t *testing.T) {
	c, err := NewCollector(nil)
	require.NoError(t, err)
	assert.True(t, c.config.Enabled)
	assert.NotNil(t, c.registry)
}

func TestDisabledCollectorAcceptsAllCallsAsNoop(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		c.RecordUpcall("read", time.Millisecond, nil)
		c.RecordCacheHit("memory")
		c.RecordCacheMiss("memory")
		c.RecordReconcilePass("applied", 3)
		c.SetPendingChanges(5)
	})
}

func TestRecordUpcallIncrementsCounterByOutcome(t *testing.T) {
	c, err := NewCollector(DefaultConfig())
	require.NoError(t, err)

	c.RecordUpcall("read", time.Millisecond, nil)
	c.RecordUpcall("read", time.Millisecond, ferrors.NotFound("/x"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.upcallTotal.WithLabelValues("read", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.upcallTotal.WithLabelValues("read", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.upcallErrors.WithLabelValues("read", "NotFound")))
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	c, err := NewCollector(DefaultConfig())
	require.NoError(t, err)

	c.RecordCacheHit("memory")
	c.RecordCacheHit("memory")
	c.RecordCacheMiss("memory")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheRequests.WithLabelValues("memory", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheRequests.WithLabelValues("memory", "miss")))
}

func TestRecordReconcilePassUpdatesBacklogGauge(t *testing.T) {
	c, err := NewCollector(DefaultConfig())
	require.NoError(t, err)

	c.RecordReconcilePass("applied", 7)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.reconcileTotal.WithLabelValues("applied")))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.reconcileBacklog))
}

func TestSetPendingChanges(t *testing.T) {
	c, err := NewCollector(DefaultConfig())
	require.NoError(t, err)

	c.SetPendingChanges(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(c.pendingChanges))
}

func TestStartStopWithDisabledCollectorIsNoop(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, c.Start(nil))
	require.NoError(t, c.Stop(nil))
}

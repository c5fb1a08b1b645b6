package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
)

func newTestCollector(start time.Time) (*Collector, *clock.Mock) {
	mock := clock.NewMock(start)
	c := New(config.CoordinatorConfig{
		CircuitBreakerThreshold: 0.10,
		MetricsWindow:           time.Minute,
	}, mock, nil)
	return c, mock
}

func TestRecordSuccessAndFailureTrackRates(t *testing.T) {
	c, _ := newTestCollector(time.Unix(0, 0))

	c.RecordSuccess("evm", 10*time.Millisecond)
	c.RecordSuccess("evm", 20*time.Millisecond)
	c.RecordFailure("evm", 30*time.Millisecond)

	assert.InDelta(t, 2.0/3.0, c.SuccessRate("evm"), 0.0001)
	assert.Equal(t, 20*time.Millisecond, c.AvgLatency("evm"))
}

func TestCircuitOpensAboveThreshold(t *testing.T) {
	c, _ := newTestCollector(time.Unix(0, 0))

	for i := 0; i < 9; i++ {
		c.RecordSuccess("xrp", time.Millisecond)
	}
	require.False(t, c.CircuitOpen("xrp"))

	c.RecordFailure("xrp", time.Millisecond)
	// 1 failure out of 10 = 10%, not strictly greater than threshold.
	assert.False(t, c.CircuitOpen("xrp"))

	c.RecordFailure("xrp", time.Millisecond)
	// 2 failures out of 11 > 10%.
	assert.True(t, c.CircuitOpen("xrp"))
}

func TestRecentFailureRatePrunesOutsideWindow(t *testing.T) {
	c, mock := newTestCollector(time.Unix(0, 0))

	c.RecordFailure("evm", time.Millisecond)
	assert.Equal(t, 1.0, c.RecentFailureRate("evm"))

	mock.Advance(2 * time.Minute)
	c.RecordSuccess("evm", time.Millisecond)

	// the old failure fell out of the 1-minute window; only the fresh
	// success remains, so the windowed success rate is 1.0, not 0.5.
	assert.Equal(t, 0.0, c.RecentFailureRate("evm"))
	assert.Equal(t, 1.0, c.SuccessRate("evm"))
}

func TestSuccessRateDefaultsToOneWithNoAttempts(t *testing.T) {
	c, _ := newTestCollector(time.Unix(0, 0))
	assert.Equal(t, 1.0, c.SuccessRate("xrp"))
}

func TestCleanupPrunesIdleMethodWindows(t *testing.T) {
	c, mock := newTestCollector(time.Unix(0, 0))

	c.RecordFailure("evm", time.Millisecond)
	mock.Advance(2 * time.Minute)
	c.Cleanup()

	assert.Equal(t, 0.0, c.RecentFailureRate("evm"))
}

func TestSnapshotForReportsCircuitState(t *testing.T) {
	c, _ := newTestCollector(time.Unix(0, 0))

	c.RecordFailure("xrp", time.Millisecond)
	c.RecordFailure("xrp", time.Millisecond)

	snap := c.SnapshotFor("xrp")
	assert.Equal(t, "xrp", snap.Method)
	assert.Equal(t, int64(2), snap.TotalCalls)
	assert.True(t, snap.CircuitOpen)
	assert.Contains(t, snap.String(), "method=xrp")
}

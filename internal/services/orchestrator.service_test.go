package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"statwatch/internal/models"
)

type counterCall struct {
	kind   models.MetricKind
	filter string
}

// fakeSource serves counters that grow by 1000/500 per call with collect times
// 10s apart, so every derived rate is 100/50 per second.
type fakeSource struct {
	mu           sync.Mutex
	pointCalls   int
	pointErrFrom int // fail point stats from this call number on (0 = never)
	counterErr   error
	calls        []counterCall
	completed    int
	gate         chan struct{}
	ignoreCancel bool // a gated fetch waits for the gate even after cancellation
}

func (f *fakeSource) FetchPointStats(ctx context.Context, hostID string) (*models.PointStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pointCalls++
	if f.pointErrFrom > 0 && f.pointCalls >= f.pointErrFrom {
		return nil, &TransportError{Op: "fetch point stats", HostID: hostID, Err: errors.New("connection refused")}
	}
	return &models.PointStats{Hostname: hostID, CPU: &models.CPUStatus{Usage: float64(f.pointCalls)}}, nil
}

func (f *fakeSource) FetchCounterSample(ctx context.Context, hostID string, kind models.MetricKind, filter string) (*models.CounterResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, counterCall{kind: kind, filter: filter})
	n := uint64(len(f.calls))
	gate := f.gate
	err := f.counterErr
	ignoreCancel := f.ignoreCancel
	f.mu.Unlock()

	if gate != nil && ignoreCancel {
		<-gate
	} else if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.completed++
	f.mu.Unlock()

	if err != nil {
		return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: err}
	}

	primary, secondary := kind.Counters()
	return &models.CounterResponse{
		Devices:     []string{"eth0", "eth1"},
		CollectedAt: baseTime.Add(time.Duration(n) * 10 * time.Second),
		Counters: map[string]uint64{
			primary:   n * 1000,
			secondary: n * 500,
		},
	}, nil
}

func (f *fakeSource) counterCalls() []counterCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]counterCall(nil), f.calls...)
}

func (f *fakeSource) pointCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pointCalls
}

func (f *fakeSource) completedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func newTestOrchestrator(t *testing.T, source StatsSource, point, chart time.Duration) (*Orchestrator, *SnapshotCache) {
	t.Helper()
	cache := NewSnapshotCache()
	o := NewOrchestrator(source, cache, zaptest.NewLogger(t))
	o.pointInterval = point
	o.chartInterval = chart
	t.Cleanup(o.Close)
	return o, cache
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestOrchestratorActivateFetchesImmediately(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, time.Hour, time.Hour)

	require.True(t, o.Activate("h1"))

	assert.Eventually(t, func() bool {
		snap, ok := cache.Get("h1")
		if !ok || snap.PointStats == nil {
			return false
		}
		_, seen := snap.LastSeenCounters[models.MetricNetwork]
		return seen
	}, waitFor, tick)

	snap, _ := cache.Get("h1")
	assert.Equal(t, []string{"eth0", "eth1"}, snap.AvailableDeviceIDs)
	assert.Equal(t, 0, snap.ChartBuffer.Len(), "first sample has nothing to diff against")
	assert.Equal(t, []counterCall{{models.MetricNetwork, models.DeviceAll}}, src.counterCalls())

	kind, filter, ok := o.Selection("h1")
	require.True(t, ok)
	assert.Equal(t, models.MetricNetwork, kind)
	assert.Equal(t, models.DeviceAll, filter)
}

func TestOrchestratorActivateIsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeSource{}, time.Hour, time.Hour)

	assert.True(t, o.Activate("h1"))
	assert.False(t, o.Activate("h1"))
	assert.True(t, o.Activate("h2"))
	assert.Equal(t, []string{"h1", "h2"}, o.ActiveHosts())
}

func TestOrchestratorChartAccumulatesRates(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, time.Hour, 10*time.Millisecond)

	o.Activate("h1")
	assert.Eventually(t, func() bool {
		snap, ok := cache.Get("h1")
		return ok && snap.ChartBuffer.Len() >= 3
	}, waitFor, tick)
	o.Deactivate("h1")

	snap, ok := cache.Get("h1")
	require.True(t, ok)
	for _, p := range snap.ChartBuffer.Points() {
		assert.InDelta(t, 100.0, p.Value1, 1e-9)
		assert.InDelta(t, 50.0, p.Value2, 1e-9)
	}
	require.NotNil(t, snap.LatestRate)
	assert.InDelta(t, 100.0, snap.LatestRate.Rates[models.CounterBytesSent], 1e-9)
	assert.LessOrEqual(t, snap.ChartBuffer.Len(), models.ChartCapacity)
}

func TestOrchestratorSwitchMetricKind(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, time.Hour, time.Hour)

	o.Activate("h1")
	require.Eventually(t, func() bool { return len(src.counterCalls()) == 1 && src.completedCount() == 1 }, waitFor, tick)
	require.NoError(t, o.SwitchDeviceFilter("h1", "eth0"))

	require.NoError(t, o.SwitchMetricKind("h1", models.MetricDiskIO))

	kind, filter, _ := o.Selection("h1")
	assert.Equal(t, models.MetricDiskIO, kind)
	assert.Equal(t, models.DeviceAll, filter, "filter resets on kind switch")

	// the chart tick re-runs right away instead of waiting for the next period
	assert.Eventually(t, func() bool {
		calls := src.counterCalls()
		return len(calls) == 2 && calls[1] == counterCall{models.MetricDiskIO, models.DeviceAll}
	}, waitFor, tick)

	assert.Eventually(t, func() bool {
		snap, ok := cache.Get("h1")
		if !ok {
			return false
		}
		_, disk := snap.LastSeenCounters[models.MetricDiskIO]
		_, network := snap.LastSeenCounters[models.MetricNetwork]
		return disk && !network && snap.ChartBuffer.Len() == 0
	}, waitFor, tick)
}

func TestOrchestratorSwitchSameKindIsNoop(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, time.Hour, time.Hour)

	o.Activate("h1")
	require.Eventually(t, func() bool { return src.completedCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		snap, ok := cache.Get("h1")
		return ok && len(snap.LastSeenCounters) == 1
	}, waitFor, tick)

	require.NoError(t, o.SwitchMetricKind("h1", models.MetricNetwork))

	snap, _ := cache.Get("h1")
	assert.Len(t, snap.LastSeenCounters, 1)
	assert.Never(t, func() bool { return len(src.counterCalls()) > 1 }, 50*time.Millisecond, tick)
}

func TestOrchestratorSwitchDeviceFilter(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, time.Hour, time.Hour)

	o.Activate("h1")
	require.Eventually(t, func() bool {
		snap, ok := cache.Get("h1")
		return ok && len(snap.LastSeenCounters) == 1 && snap.PointStats != nil
	}, waitFor, tick)

	require.NoError(t, o.SwitchDeviceFilter("h1", "eth1"))

	snap, ok := cache.Get("h1")
	require.True(t, ok)
	assert.Empty(t, snap.LastSeenCounters)
	assert.Equal(t, 0, snap.ChartBuffer.Len())
	assert.Nil(t, snap.LatestRate)
	assert.NotNil(t, snap.PointStats, "point stats survive a filter switch")

	kind, filter, _ := o.Selection("h1")
	assert.Equal(t, models.MetricNetwork, kind)
	assert.Equal(t, "eth1", filter)

	// no immediate re-fetch; the next scheduled tick picks up the filter
	assert.Never(t, func() bool { return len(src.counterCalls()) > 1 }, 50*time.Millisecond, tick)

	require.NoError(t, o.SwitchDeviceFilter("h1", ""))
	_, filter, _ = o.Selection("h1")
	assert.Equal(t, models.DeviceAll, filter)
}

func TestOrchestratorSwitchRequiresActiveSession(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeSource{}, time.Hour, time.Hour)

	assert.ErrorIs(t, o.SwitchMetricKind("nope", models.MetricDiskIO), ErrSessionNotActive)
	assert.ErrorIs(t, o.SwitchDeviceFilter("nope", "eth0"), ErrSessionNotActive)

	o.Activate("h1")
	assert.Error(t, o.SwitchMetricKind("h1", models.MetricKind("cpu")))

	_, _, ok := o.Selection("nope")
	assert.False(t, ok)
}

func TestOrchestratorFailedTicksKeepPreviousSnapshot(t *testing.T) {
	src := &fakeSource{pointErrFrom: 2}
	o, cache := newTestOrchestrator(t, src, 5*time.Millisecond, time.Hour)

	o.Activate("h1")
	require.Eventually(t, func() bool { return src.pointCallCount() >= 4 }, waitFor, tick)

	snap, ok := cache.Get("h1")
	require.True(t, ok)
	require.NotNil(t, snap.PointStats)
	assert.Equal(t, 1.0, snap.PointStats.CPU.Usage, "failed ticks must not overwrite the last good stats")
	assert.Equal(t, []string{"h1"}, o.ActiveHosts(), "failures do not deactivate")
}

func TestOrchestratorChartFailureKeepsBuffer(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, time.Hour, 5*time.Millisecond)

	o.Activate("h1")
	require.Eventually(t, func() bool {
		snap, ok := cache.Get("h1")
		return ok && snap.ChartBuffer.Len() >= 2
	}, waitFor, tick)

	src.mu.Lock()
	src.counterErr = errors.New("timeout")
	src.mu.Unlock()
	o.Deactivate("h1")
	before, _ := cache.Get("h1")

	o.Activate("h1")
	n := len(src.counterCalls())
	require.Eventually(t, func() bool { return len(src.counterCalls()) >= n+3 }, waitFor, tick)

	after, _ := cache.Get("h1")
	assert.Equal(t, before.ChartBuffer.Points(), after.ChartBuffer.Points())
}

func TestOrchestratorDeactivateStopsWrites(t *testing.T) {
	src := &fakeSource{}
	o, cache := newTestOrchestrator(t, src, 5*time.Millisecond, 5*time.Millisecond)

	o.Activate("h1")
	require.Eventually(t, func() bool { return src.pointCallCount() >= 2 }, waitFor, tick)

	o.Deactivate("h1")
	before, ok := cache.Get("h1")
	require.True(t, ok, "deactivate leaves the snapshot in place")
	calls := src.pointCallCount()

	time.Sleep(50 * time.Millisecond)

	after, ok := cache.Get("h1")
	require.True(t, ok)
	assert.Equal(t, before.LastRefreshedAt, after.LastRefreshedAt)
	assert.Equal(t, calls, src.pointCallCount())
	assert.Empty(t, o.ActiveHosts())

	// deactivating twice is harmless
	o.Deactivate("h1")
}

func TestOrchestratorDiscardsResultForStaleSelection(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	o, cache := newTestOrchestrator(t, src, time.Hour, time.Hour)

	o.Activate("h1")
	require.Eventually(t, func() bool { return len(src.counterCalls()) == 1 }, waitFor, tick)

	// the in-flight fetch was issued for "all"
	require.NoError(t, o.SwitchDeviceFilter("h1", "eth0"))
	close(src.gate)
	require.Eventually(t, func() bool { return src.completedCount() == 1 }, waitFor, tick)

	o.Deactivate("h1")
	snap, ok := cache.Get("h1")
	require.True(t, ok)
	assert.Empty(t, snap.LastSeenCounters)
	assert.Nil(t, snap.AvailableDeviceIDs)
}

func TestOrchestratorDeactivateCancelsInflightFetch(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	o, _ := newTestOrchestrator(t, src, time.Hour, time.Hour)

	o.Activate("h1")
	require.Eventually(t, func() bool { return len(src.counterCalls()) == 1 }, waitFor, tick)

	done := make(chan struct{})
	go func() {
		o.Deactivate("h1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("deactivate did not return while a fetch was blocked")
	}
}

func TestRecordCounterSample(t *testing.T) {
	cache := NewSnapshotCache()
	o := NewOrchestrator(&fakeSource{}, cache, zaptest.NewLogger(t))
	now := baseTime
	o.now = func() time.Time { return now }

	first := &models.CounterResponse{
		Devices:  []string{"sda"},
		Counters: map[string]uint64{models.CounterReadBytes: 0, models.CounterWriteBytes: 0},
	}
	assert.Nil(t, o.recordCounterSample("h1", models.MetricDiskIO, models.DeviceAll, first))

	now = now.Add(10 * time.Second)
	second := &models.CounterResponse{
		Devices:  []string{"sda", "sdb"},
		Counters: map[string]uint64{models.CounterReadBytes: 1000, models.CounterWriteBytes: 2000},
	}
	rate := o.recordCounterSample("h1", models.MetricDiskIO, models.DeviceAll, second)
	require.NotNil(t, rate)
	assert.Equal(t, baseTime.Add(10*time.Second), rate.Timestamp)

	snap, ok := cache.Get("h1")
	require.True(t, ok)
	require.Equal(t, 1, snap.ChartBuffer.Len())
	p := snap.ChartBuffer.Points()[0]
	assert.InDelta(t, 100.0, p.Value1, 1e-9)
	assert.InDelta(t, 200.0, p.Value2, 1e-9)
	assert.Equal(t, []string{"sda", "sdb"}, snap.AvailableDeviceIDs)
	assert.Equal(t, uint64(1000), snap.LastSeenCounters[models.MetricDiskIO].Sample.Counters[models.CounterReadBytes])

	// same timestamp: pair skipped, last seen still advances
	third := &models.CounterResponse{
		CollectedAt: now,
		Counters:    map[string]uint64{models.CounterReadBytes: 5000, models.CounterWriteBytes: 5000},
	}
	assert.Nil(t, o.recordCounterSample("h1", models.MetricDiskIO, models.DeviceAll, third))
	snap, _ = cache.Get("h1")
	assert.Equal(t, 1, snap.ChartBuffer.Len())
	assert.Equal(t, uint64(5000), snap.LastSeenCounters[models.MetricDiskIO].Sample.Counters[models.CounterReadBytes])
}

func TestOrchestratorActivateWaitsForDeactivation(t *testing.T) {
	gate := make(chan struct{})
	src := &fakeSource{gate: gate, ignoreCancel: true}
	o, _ := newTestOrchestrator(t, src, time.Hour, time.Hour)

	require.True(t, o.Activate("h1"))
	require.Eventually(t, func() bool { return len(src.counterCalls()) == 1 }, waitFor, tick)

	deactivated := make(chan struct{})
	go func() {
		o.Deactivate("h1")
		close(deactivated)
	}()
	require.Eventually(t, func() bool { return len(o.ActiveHosts()) == 0 }, waitFor, tick)

	_, _, ok := o.Selection("h1")
	assert.False(t, ok, "a stopping host is not selectable")
	assert.ErrorIs(t, o.SwitchDeviceFilter("h1", "eth0"), ErrSessionNotActive)

	activated := make(chan bool, 1)
	go func() { activated <- o.Activate("h1") }()

	assert.Never(t, func() bool {
		select {
		case <-deactivated:
			return true
		default:
		}
		return len(activated) > 0
	}, 50*time.Millisecond, tick, "the old chart loop is still running")
	assert.Len(t, src.counterCalls(), 1, "no second session polls while the first is draining")

	close(gate)

	select {
	case <-deactivated:
	case <-time.After(waitFor):
		t.Fatal("Deactivate did not return")
	}
	select {
	case started := <-activated:
		assert.True(t, started)
	case <-time.After(waitFor):
		t.Fatal("Activate did not return")
	}
	assert.Equal(t, []string{"h1"}, o.ActiveHosts())
	assert.Eventually(t, func() bool { return len(src.counterCalls()) == 2 }, waitFor, tick)
}

package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"statwatch/internal/models"
)

// Polling cadences per active host
const (
	PointStatsInterval  = 5 * time.Second
	ChartSampleInterval = 10 * time.Second
)

// ErrSessionNotActive is returned when switching kind or filter of a host that is not being polled
var ErrSessionNotActive = errors.New("monitoring session not active")

// Orchestrator runs two polling loops per active host: point stats and chart samples.
// All derived state is written to the snapshot cache; the orchestrator is its only writer.
type Orchestrator struct {
	source StatsSource
	cache  *SnapshotCache
	logger *zap.Logger
	now    func() time.Time

	pointInterval time.Duration
	chartInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*pollingSession
}

// pollingSession is the per-host state of one activation
type pollingSession struct {
	hostID  string
	cancel  context.CancelFunc
	done    chan struct{}
	refresh chan struct{}

	// stopping is guarded by Orchestrator.mu; the session stays registered
	// until its loops have exited
	stopping bool

	// mu serializes cache writes for the host and guards the fields below
	mu      sync.Mutex
	kind    models.MetricKind
	filter  string
	epoch   uint64
	stopped bool
}

// NewOrchestrator creates an orchestrator writing into cache
func NewOrchestrator(source StatsSource, cache *SnapshotCache, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		source:        source,
		cache:         cache,
		logger:        logger,
		now:           time.Now,
		pointInterval: PointStatsInterval,
		chartInterval: ChartSampleInterval,
		sessions:      make(map[string]*pollingSession),
	}
}

// Activate starts polling hostID. Both loops fetch once immediately.
// It reports false when the host was already active. If the host is being
// deactivated, Activate waits for the old session to finish first.
func (o *Orchestrator) Activate(hostID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for {
		cur, ok := o.sessions[hostID]
		if !ok {
			break
		}
		if !cur.stopping {
			return false
		}
		o.mu.Unlock()
		<-cur.done
		o.mu.Lock()
		if o.sessions[hostID] == cur {
			delete(o.sessions, hostID)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &pollingSession{
		hostID:  hostID,
		cancel:  cancel,
		done:    make(chan struct{}),
		refresh: make(chan struct{}, 1),
		kind:    models.MetricNetwork,
		filter:  models.DeviceAll,
	}
	o.sessions[hostID] = s

	go func() {
		defer close(s.done)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			o.runPointStatsLoop(gctx, s)
			return nil
		})
		g.Go(func() error {
			o.runChartLoop(gctx, s)
			return nil
		})
		_ = g.Wait()
	}()

	o.logger.Info("monitoring activated", zap.String("host", hostID))
	return true
}

// Deactivate stops both loops of hostID. When it returns no further cache
// writes for the host will happen; the cached snapshot itself is kept.
func (o *Orchestrator) Deactivate(hostID string) {
	o.mu.Lock()
	s, ok := o.sessions[hostID]
	if !ok {
		o.mu.Unlock()
		return
	}
	if s.stopping {
		o.mu.Unlock()
		<-s.done
		return
	}
	s.stopping = true
	o.mu.Unlock()

	s.cancel()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	<-s.done

	o.mu.Lock()
	if o.sessions[hostID] == s {
		delete(o.sessions, hostID)
	}
	o.mu.Unlock()

	o.logger.Info("monitoring deactivated", zap.String("host", hostID))
}

// Close deactivates every host
func (o *Orchestrator) Close() {
	for _, hostID := range o.ActiveHosts() {
		o.Deactivate(hostID)
	}
}

// ActiveHosts lists the hosts currently polled, sorted
func (o *Orchestrator) ActiveHosts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	hosts := make([]string, 0, len(o.sessions))
	for hostID, s := range o.sessions {
		if s.stopping {
			continue
		}
		hosts = append(hosts, hostID)
	}
	sort.Strings(hosts)
	return hosts
}

// Selection returns the metric kind and device filter charted for hostID
func (o *Orchestrator) Selection(hostID string) (models.MetricKind, string, bool) {
	s := o.session(hostID)
	if s == nil {
		return "", "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind, s.filter, true
}

// SwitchMetricKind charts a different metric kind. The device filter resets to
// "all", chart state is cleared and a chart sample is fetched right away.
func (o *Orchestrator) SwitchMetricKind(hostID string, kind models.MetricKind) error {
	if !kind.Valid() {
		return errors.Errorf("unknown metric kind %q", kind)
	}
	s := o.session(hostID)
	if s == nil {
		return ErrSessionNotActive
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	if s.kind == kind {
		s.mu.Unlock()
		return nil
	}
	s.kind = kind
	s.filter = models.DeviceAll
	s.epoch++
	o.resetChart(hostID)
	s.mu.Unlock()

	select {
	case s.refresh <- struct{}{}:
	default:
	}

	o.logger.Debug("metric kind switched", zap.String("host", hostID), zap.String("kind", string(kind)))
	return nil
}

// SwitchDeviceFilter charts a single device (or "all"). Chart state is cleared;
// the next scheduled chart tick picks up the new filter.
func (o *Orchestrator) SwitchDeviceFilter(hostID, device string) error {
	if device == "" {
		device = models.DeviceAll
	}
	s := o.session(hostID)
	if s == nil {
		return ErrSessionNotActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSessionNotActive
	}
	if s.filter == device {
		return nil
	}
	s.filter = device
	s.epoch++
	o.resetChart(hostID)

	o.logger.Debug("device filter switched", zap.String("host", hostID), zap.String("device", device))
	return nil
}

func (o *Orchestrator) session(hostID string) *pollingSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[hostID]
	if !ok || s.stopping {
		return nil
	}
	return s
}

// resetChart empties the chart buffer and last-seen counters.
// Must be called with the session lock held.
func (o *Orchestrator) resetChart(hostID string) {
	empty := models.ChartBuffer{}
	o.cache.Merge(hostID, SnapshotPatch{
		ChartBuffer:      &empty,
		LastSeenCounters: models.LastSeenCounters{},
		ClearLatestRate:  true,
	})
}

func (o *Orchestrator) runPointStatsLoop(ctx context.Context, s *pollingSession) {
	ticker := time.NewTicker(o.pointInterval)
	defer ticker.Stop()

	o.refreshPointStats(ctx, s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refreshPointStats(ctx, s)
		}
	}
}

func (o *Orchestrator) runChartLoop(ctx context.Context, s *pollingSession) {
	ticker := time.NewTicker(o.chartInterval)
	defer ticker.Stop()

	o.sampleChart(ctx, s)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sampleChart(ctx, s)
		case <-s.refresh:
			o.sampleChart(ctx, s)
		}
	}
}

// refreshPointStats replaces the cached point stats; a failed fetch keeps the old ones
func (o *Orchestrator) refreshPointStats(ctx context.Context, s *pollingSession) {
	stats, err := o.source.FetchPointStats(ctx, s.hostID)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("point stats tick failed", zap.String("host", s.hostID), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	o.cache.Merge(s.hostID, SnapshotPatch{PointStats: stats})
}

// sampleChart fetches the next counter sample for the current selection.
// Results for a selection that changed while the fetch was in flight are dropped.
func (o *Orchestrator) sampleChart(ctx context.Context, s *pollingSession) {
	s.mu.Lock()
	kind, filter, epoch := s.kind, s.filter, s.epoch
	s.mu.Unlock()

	resp, err := o.source.FetchCounterSample(ctx, s.hostID, kind, filter)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("chart sample tick failed",
				zap.String("host", s.hostID),
				zap.String("kind", string(kind)),
				zap.String("filter", filter),
				zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.epoch != epoch {
		o.logger.Debug("discarding chart sample for stale selection", zap.String("host", s.hostID))
		return
	}
	o.recordCounterSample(s.hostID, kind, filter, resp)
}

// recordCounterSample derives a rate against the last seen sample of kind, appends it
// to the chart and stores resp as the new last seen sample, all in one merge.
// It returns the emitted rate, or nil when no rate could be derived.
func (o *Orchestrator) recordCounterSample(hostID string, kind models.MetricKind, filter string, resp *models.CounterResponse) *models.RateSample {
	collectedAt := resp.CollectedAt
	if collectedAt.IsZero() {
		collectedAt = o.now()
	}
	sample := models.CounterSample{
		DeviceID:    filter,
		CollectedAt: collectedAt,
		Counters:    resp.Counters,
	}

	current, _ := o.cache.Get(hostID)
	lastSeen := current.LastSeenCounters.Clone()
	patch := SnapshotPatch{AvailableDeviceIDs: resp.Devices}

	var emitted *models.RateSample
	if prev, ok := lastSeen[kind]; ok {
		if rates := CalculateRates([]models.CounterSample{prev.Sample, sample}); len(rates) == 1 {
			rate := rates[0]
			primary, secondary := kind.Counters()
			buffer := current.ChartBuffer.Append(models.ChartPoint{
				Time:   rate.Timestamp,
				Value1: rate.Rates[primary],
				Value2: rate.Rates[secondary],
			})
			patch.ChartBuffer = &buffer
			patch.LatestRate = &rate
			emitted = &rate
		}
	}

	lastSeen[kind] = models.LastSeenCounter{Sample: sample, SeenAt: collectedAt}
	patch.LastSeenCounters = lastSeen

	o.cache.Merge(hostID, patch)
	return emitted
}

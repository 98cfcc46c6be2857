package services

import (
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CacheSweeper periodically evicts expired snapshots so idle hosts do not linger
// until their next read.
type CacheSweeper struct {
	sched  *cron.Cron
	cache  *SnapshotCache
	logger *zap.Logger
}

// NewCacheSweeper schedules cache.Sweep on spec ("@every 1m", "0 */5 * * * *", ...)
func NewCacheSweeper(spec string, cache *SnapshotCache, logger *zap.Logger) (*CacheSweeper, error) {
	s := &CacheSweeper{
		sched:  cron.New(cron.WithParser(cronParser)),
		cache:  cache,
		logger: logger,
	}
	if _, err := s.sched.AddFunc(spec, s.sweep); err != nil {
		return nil, errors.Wrapf(err, "invalid sweep schedule %q", spec)
	}
	return s, nil
}

func (s *CacheSweeper) sweep() {
	if removed := s.cache.Sweep(); removed > 0 {
		s.logger.Debug("evicted expired snapshots", zap.Int("removed", removed))
	}
}

// Start runs the schedule in the background
func (s *CacheSweeper) Start() {
	s.sched.Start()
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *CacheSweeper) Stop() {
	<-s.sched.Stop().Done()
}

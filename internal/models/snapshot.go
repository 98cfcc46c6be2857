package models

import "time"

// LastSeenCounter is the raw sample a metric kind's next rate is computed against
type LastSeenCounter struct {
	Sample CounterSample `json:"sample"`
	SeenAt time.Time     `json:"seen_at"`
}

// LastSeenCounters holds one entry per metric kind
type LastSeenCounters map[MetricKind]LastSeenCounter

// Clone returns a shallow copy; entries are values and safe to share
func (l LastSeenCounters) Clone() LastSeenCounters {
	out := make(LastSeenCounters, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// EntitySnapshot is the derived state cached per monitored host.
// A snapshot handed out by the cache is never modified afterwards.
type EntitySnapshot struct {
	HostID             string           `json:"host_id"`
	PointStats         *PointStats      `json:"point_stats,omitempty"`
	ChartBuffer        ChartBuffer      `json:"chart_buffer"`
	LastSeenCounters   LastSeenCounters `json:"last_seen_counters,omitempty"`
	AvailableDeviceIDs []string         `json:"available_device_ids"`
	LatestRate         *RateSample      `json:"latest_rate,omitempty"`
	LastRefreshedAt    time.Time        `json:"last_refreshed_at"`
}

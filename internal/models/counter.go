package models

import (
	"fmt"
	"time"
)

// MetricKind selects which pair of cumulative counters feeds the live chart
type MetricKind string

const (
	MetricNetwork MetricKind = "network"
	MetricDiskIO  MetricKind = "disk-io"
)

// Counter names tracked per metric kind
const (
	CounterBytesSent  = "bytesSent"
	CounterBytesRecv  = "bytesRecv"
	CounterReadBytes  = "readBytes"
	CounterWriteBytes = "writeBytes"
)

const (
	// DeviceAll is the device filter that aggregates every device of a host
	DeviceAll = "all"
	// UnknownDevice buckets samples that carry no device identity
	UnknownDevice = "unknown"
)

// ParseMetricKind accepts the canonical names plus the short "net"/"io" aliases
// used by older dashboard builds.
func ParseMetricKind(s string) (MetricKind, error) {
	switch s {
	case string(MetricNetwork), "net":
		return MetricNetwork, nil
	case string(MetricDiskIO), "io", "disk":
		return MetricDiskIO, nil
	default:
		return "", fmt.Errorf("unknown metric kind %q", s)
	}
}

// Valid reports whether k is one of the supported kinds
func (k MetricKind) Valid() bool {
	return k == MetricNetwork || k == MetricDiskIO
}

// Counters returns the two headline counters charted for the kind.
// The first maps to ChartPoint.Value1, the second to ChartPoint.Value2.
func (k MetricKind) Counters() (primary, secondary string) {
	if k == MetricDiskIO {
		return CounterReadBytes, CounterWriteBytes
	}
	return CounterBytesSent, CounterBytesRecv
}

// CounterSample is one observation of monotonically increasing counters
// for one device at one instant.
type CounterSample struct {
	DeviceID    string            `json:"device_id"`
	CollectedAt time.Time         `json:"collected_at"`
	Counters    map[string]uint64 `json:"counters"`
}

// RateSample is derived from two adjacent samples of the same device.
// Rates are counter deltas per second and never negative.
type RateSample struct {
	DeviceID  string             `json:"device_id"`
	Timestamp time.Time          `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
}

// CounterResponse is what a stats source returns for a counter fetch
type CounterResponse struct {
	Devices     []string          `json:"devices"`
	CollectedAt time.Time         `json:"collected_at"`
	Counters    map[string]uint64 `json:"counters"`
}

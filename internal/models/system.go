package models

import "time"

// PointStats is the full point-in-time resource snapshot of a host.
// The pipeline stores it as an opaque value; the JSON shape matches the apiserver.
type PointStats struct {
	Hostname    string          `json:"hostname,omitempty"`
	CPU         *CPUStatus      `json:"cpu,omitempty"`
	Memory      *MemoryStatus   `json:"memory,omitempty"`
	Disk        *DiskStatus     `json:"disk,omitempty"`
	LoadAverage *LoadAverage    `json:"loadAverage,omitempty"`
	TopCPU      []ProcessStatus `json:"topCPU,omitempty"`
	TopMemory   []ProcessStatus `json:"topMemory,omitempty"`
	CollectedAt time.Time       `json:"collectedAt"`
}

package models

import "time"

// DiskStatus represents aggregated disk usage across partitions
type DiskStatus struct {
	Total      uint64          `json:"total"`
	Used       uint64          `json:"used"`
	Available  uint64          `json:"available"`
	Usage      float64         `json:"usage"`
	Partitions []DiskPartition `json:"partitions,omitempty"`
}

// DiskPartition represents usage of one mounted filesystem
type DiskPartition struct {
	Device     string  `json:"device"`
	MountPoint string  `json:"mountPoint"`
	FSType     string  `json:"fsType"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Available  uint64  `json:"available"`
	Usage      float64 `json:"usage"`
}

// DiskIORecord is one stored disk counter row from the history API
type DiskIORecord struct {
	ID             int64     `json:"id"`
	DiskName       string    `json:"disk_name"`
	ReadCount      uint64    `json:"read_count"`
	WriteCount     uint64    `json:"write_count"`
	ReadBytes      uint64    `json:"read_bytes"`
	WriteBytes     uint64    `json:"write_bytes"`
	ReadTime       uint64    `json:"read_time"`
	WriteTime      uint64    `json:"write_time"`
	IOTime         uint64    `json:"io_time"`
	WeightedIOTime uint64    `json:"weighted_io_time"`
	IOPSInProgress uint64    `json:"iops_in_progress"`
	CollectTime    time.Time `json:"collect_time"`
}

// CounterSample converts the record into the byte counters charted for disk-io
func (r DiskIORecord) CounterSample() CounterSample {
	return CounterSample{
		DeviceID:    r.DiskName,
		CollectedAt: r.CollectTime,
		Counters: map[string]uint64{
			CounterReadBytes:  r.ReadBytes,
			CounterWriteBytes: r.WriteBytes,
		},
	}
}

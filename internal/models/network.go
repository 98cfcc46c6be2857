package models

import "time"

// NetworkIORecord is one stored interface counter row from the history API
type NetworkIORecord struct {
	ID            int64     `json:"id"`
	InterfaceName string    `json:"interface_name"`
	BytesSent     uint64    `json:"bytes_sent"`
	BytesRecv     uint64    `json:"bytes_recv"`
	PacketsSent   uint64    `json:"packets_sent"`
	PacketsRecv   uint64    `json:"packets_recv"`
	ErrIn         uint64    `json:"err_in"`
	ErrOut        uint64    `json:"err_out"`
	DropIn        uint64    `json:"drop_in"`
	DropOut       uint64    `json:"drop_out"`
	FifoIn        uint64    `json:"fifo_in"`
	FifoOut       uint64    `json:"fifo_out"`
	CollectTime   time.Time `json:"collect_time"`
}

// CounterSample converts the record into the byte counters charted for network
func (r NetworkIORecord) CounterSample() CounterSample {
	return CounterSample{
		DeviceID:    r.InterfaceName,
		CollectedAt: r.CollectTime,
		Counters: map[string]uint64{
			CounterBytesSent: r.BytesSent,
			CounterBytesRecv: r.BytesRecv,
		},
	}
}

package services

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"statwatch/internal/models"
)

const topProcessLimit = 5

// LocalStatsSource serves the machine this process runs on under a fixed host id
type LocalStatsSource struct {
	hostID string
	logger *zap.Logger
	now    func() time.Time

	netCounters  func(ctx context.Context) ([]net.IOCountersStat, error)
	diskCounters func(ctx context.Context) (map[string]disk.IOCountersStat, error)
}

// NewLocalStatsSource creates a gopsutil-backed source answering for hostID
func NewLocalStatsSource(hostID string, logger *zap.Logger) *LocalStatsSource {
	return &LocalStatsSource{
		hostID: hostID,
		logger: logger,
		now:    time.Now,
		netCounters: func(ctx context.Context) ([]net.IOCountersStat, error) {
			return net.IOCountersWithContext(ctx, true)
		},
		diskCounters: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
	}
}

// FetchPointStats collects CPU, memory, disk, load and top processes
func (l *LocalStatsSource) FetchPointStats(ctx context.Context, hostID string) (*models.PointStats, error) {
	if hostID != l.hostID {
		return nil, &TransportError{Op: "fetch point stats", HostID: hostID, Err: ErrUnknownHost}
	}

	cpuStatus, err := l.cpuStatus(ctx)
	if err != nil {
		return nil, &TransportError{Op: "fetch point stats", HostID: hostID, Err: errors.Wrap(err, "failed to get CPU usage")}
	}

	memStatus, err := memoryStatus(ctx)
	if err != nil {
		return nil, &TransportError{Op: "fetch point stats", HostID: hostID, Err: errors.Wrap(err, "failed to get memory usage")}
	}

	diskStatus, err := l.diskStatus(ctx)
	if err != nil {
		return nil, &TransportError{Op: "fetch point stats", HostID: hostID, Err: errors.Wrap(err, "failed to get disk usage")}
	}

	stats := &models.PointStats{
		CPU:         cpuStatus,
		Memory:      memStatus,
		Disk:        diskStatus,
		CollectedAt: l.now(),
	}

	if hostname, err := os.Hostname(); err == nil {
		stats.Hostname = hostname
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		l.logger.Debug("load average unavailable", zap.Error(err))
	} else {
		stats.LoadAverage = &models.LoadAverage{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}

	byCPU, byMemory, err := TopProcesses(ctx, topProcessLimit)
	if err != nil {
		l.logger.Warn("could not list processes", zap.Error(err))
	} else {
		stats.TopCPU = byCPU
		stats.TopMemory = byMemory
	}

	return stats, nil
}

// FetchCounterSample reads per-device counters and filters or sums them
func (l *LocalStatsSource) FetchCounterSample(ctx context.Context, hostID string, kind models.MetricKind, deviceFilter string) (*models.CounterResponse, error) {
	if hostID != l.hostID {
		return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: ErrUnknownHost}
	}

	perDevice := make(map[string]map[string]uint64)
	switch kind {
	case models.MetricNetwork:
		counters, err := l.netCounters(ctx)
		if err != nil {
			return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: err}
		}
		for _, c := range counters {
			perDevice[c.Name] = map[string]uint64{
				models.CounterBytesSent: c.BytesSent,
				models.CounterBytesRecv: c.BytesRecv,
			}
		}
	case models.MetricDiskIO:
		counters, err := l.diskCounters(ctx)
		if err != nil {
			return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: err}
		}
		for name, c := range counters {
			perDevice[name] = map[string]uint64{
				models.CounterReadBytes:  c.ReadBytes,
				models.CounterWriteBytes: c.WriteBytes,
			}
		}
	default:
		return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: errors.Errorf("unsupported metric kind %q", kind)}
	}

	resp, err := aggregateCounters(perDevice, deviceFilter, l.now())
	if err != nil {
		return nil, &TransportError{Op: "fetch counters", HostID: hostID, Err: err}
	}
	return resp, nil
}

// aggregateCounters selects one device's counters, or sums all of them for DeviceAll
func aggregateCounters(perDevice map[string]map[string]uint64, filter string, at time.Time) (*models.CounterResponse, error) {
	devices := make([]string, 0, len(perDevice))
	for name := range perDevice {
		devices = append(devices, name)
	}
	sort.Strings(devices)

	resp := &models.CounterResponse{
		Devices:     devices,
		CollectedAt: at,
		Counters:    make(map[string]uint64),
	}

	if filter == "" || filter == models.DeviceAll {
		for _, counters := range perDevice {
			for name, value := range counters {
				resp.Counters[name] += value
			}
		}
		return resp, nil
	}

	counters, ok := perDevice[filter]
	if !ok {
		return nil, errors.Errorf("device %q not found", filter)
	}
	for name, value := range counters {
		resp.Counters[name] = value
	}
	return resp, nil
}

func (l *LocalStatsSource) cpuStatus(ctx context.Context) (*models.CPUStatus, error) {
	percentage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}

	status := &models.CPUStatus{}
	if len(percentage) > 0 {
		status.Usage = percentage[0]
	}

	perCore, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		l.logger.Debug("per-core CPU usage unavailable", zap.Error(err))
	} else {
		status.PerCoreUsage = perCore
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		status.Cores = cores
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		status.Model = infos[0].ModelName
		status.Frequency = infos[0].Mhz
	}

	return status, nil
}

func memoryStatus(ctx context.Context) (*models.MemoryStatus, error) {
	virtualMemory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.MemoryStatus{
		Total:     virtualMemory.Total,
		Available: virtualMemory.Available,
		Used:      virtualMemory.Used,
		Usage:     virtualMemory.UsedPercent,
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		status.SwapTotal = swap.Total
		status.SwapUsed = swap.Used
	}
	return status, nil
}

func (l *LocalStatsSource) diskStatus(ctx context.Context) (*models.DiskStatus, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, err
	}

	status := &models.DiskStatus{}
	for _, partition := range partitions {
		usage, err := disk.UsageWithContext(ctx, partition.Mountpoint)
		if err != nil {
			l.logger.Debug("skipping partition", zap.String("mountpoint", partition.Mountpoint), zap.Error(err))
			continue
		}

		status.Partitions = append(status.Partitions, models.DiskPartition{
			Device:     partition.Device,
			MountPoint: partition.Mountpoint,
			FSType:     partition.Fstype,
			Total:      usage.Total,
			Used:       usage.Used,
			Available:  usage.Free,
			Usage:      usage.UsedPercent,
		})
		status.Total += usage.Total
		status.Used += usage.Used
		status.Available += usage.Free
	}

	if status.Total > 0 {
		status.Usage = float64(status.Used) / float64(status.Total) * 100
	}
	return status, nil
}

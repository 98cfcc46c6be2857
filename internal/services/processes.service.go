package services

import (
	"context"
	"sort"

	"github.com/shirou/gopsutil/v3/process"

	"statwatch/internal/models"
)

// TopProcesses returns the busiest processes ranked by CPU and by memory.
// Pipeline: Collect → Sort → Limit
func TopProcesses(ctx context.Context, limit int) (byCPU, byMemory []models.ProcessStatus, err error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, nil, err
	}

	collected := make([]models.ProcessStatus, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if ps, ok := describeProcess(ctx, p); ok {
			collected = append(collected, ps)
		}
	}

	byCPU = limitTo(sortProcesses(collected, func(a, b models.ProcessStatus) bool {
		return a.CPUPercent > b.CPUPercent
	}), limit)
	byMemory = limitTo(sortProcesses(collected, func(a, b models.ProcessStatus) bool {
		return a.MemoryPercent > b.MemoryPercent
	}), limit)
	return byCPU, byMemory, nil
}

// describeProcess reads one process; processes that vanish mid-read are skipped
func describeProcess(ctx context.Context, p *process.Process) (models.ProcessStatus, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return models.ProcessStatus{}, false
	}

	ps := models.ProcessStatus{PID: p.Pid, Name: name, Status: "unknown"}
	if cpuPercent, err := p.CPUPercentWithContext(ctx); err == nil {
		ps.CPUPercent = cpuPercent
	}
	if memPercent, err := p.MemoryPercentWithContext(ctx); err == nil {
		ps.MemoryPercent = memPercent
	}
	if memInfo, err := p.MemoryInfoWithContext(ctx); err == nil && memInfo != nil {
		ps.MemoryMB = float64(memInfo.RSS) / (1024 * 1024)
	}
	if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
		ps.Status = mapProcessState(status[0])
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		ps.CreateTime = created
	}
	return ps, true
}

func sortProcesses(processes []models.ProcessStatus, less func(a, b models.ProcessStatus) bool) []models.ProcessStatus {
	sorted := make([]models.ProcessStatus, len(processes))
	copy(sorted, processes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	return sorted
}

func limitTo(processes []models.ProcessStatus, limit int) []models.ProcessStatus {
	if limit > 0 && len(processes) > limit {
		return processes[:limit]
	}
	return processes
}

// mapProcessState converts process state codes to readable strings.
// gopsutil reports either single-letter codes or full words depending on platform.
func mapProcessState(state string) string {
	if len(state) == 0 {
		return "unknown"
	}
	if len(state) > 1 {
		return state
	}
	switch state[0] {
	case 'R':
		return "running"
	case 'S':
		return "sleeping"
	case 'D':
		return "disk_sleep"
	case 'Z':
		return "zombie"
	case 'T':
		return "stopped"
	case 't':
		return "tracing_stop"
	case 'W':
		return "paging"
	case 'X', 'x':
		return "dead"
	case 'K':
		return "wakekill"
	case 'P':
		return "parked"
	case 'I':
		return "idle"
	default:
		return state
	}
}

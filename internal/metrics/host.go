package metrics

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSampleInterval keeps CPU sampling short enough for request paths
const HostSampleInterval = 100 * time.Millisecond

// HostUsage is a point-in-time host utilisation reading
type HostUsage struct {
	CPUPercent    float64 `json:"cpu_percent" msgpack:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent" msgpack:"memory_percent"`
}

// HostSampler reads host utilisation
type HostSampler func() (HostUsage, error)

// SampleHost averages CPU over HostSampleInterval and reads virtual memory
func SampleHost() (HostUsage, error) {
	cpuPercent, err := cpu.Percent(HostSampleInterval, false)
	if err != nil {
		return HostUsage{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return HostUsage{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	usage := HostUsage{MemoryPercent: memStat.UsedPercent}
	if len(cpuPercent) > 0 {
		usage.CPUPercent = cpuPercent[0]
	}
	return usage, nil
}

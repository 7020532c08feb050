package transcribe

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor exposes the host probes the service consults for pre-flight
// checks and CPU throttling. Injected so tests can script load patterns.
type ResourceMonitor interface {
	// CPUPercent returns overall CPU utilization in [0, 100].
	CPUPercent() (float64, error)

	// FreeDiskBytes returns free space on the filesystem holding path.
	FreeDiskBytes(path string) (uint64, error)

	// FreeMemoryBytes returns currently available RAM.
	FreeMemoryBytes() (uint64, error)
}

// HostMonitor probes the local machine via gopsutil.
type HostMonitor struct{}

var _ ResourceMonitor = HostMonitor{}

func (HostMonitor) CPUPercent() (float64, error) {
	// A zero interval compares against the previous call instead of
	// blocking; the first sample of a run may read low, which only delays
	// throttling by one file.
	vals, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, nil
	}
	return vals[0], nil
}

func (HostMonitor) FreeDiskBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

func (HostMonitor) FreeMemoryBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// throttleSleeper is the sleep hook used when the CPU ceiling is exceeded;
// injectable so tests can observe pauses without real sleeping.
type throttleSleeper func(time.Duration)

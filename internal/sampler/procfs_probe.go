package sampler

import (
	"fmt"
	"sync"

	"github.com/prometheus/procfs"
)

// ProcfsProbe measures machine-wide CPU and memory use from /proc. CPU
// percent is computed from the jiffy delta between consecutive samples, so
// the first sample reports zero CPU.
type ProcfsProbe struct {
	fs procfs.FS

	mu        sync.Mutex
	prevBusy  float64
	prevTotal float64
	primed    bool
}

// NewProcfsProbe opens the default /proc mount.
func NewProcfsProbe() (*ProcfsProbe, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	return &ProcfsProbe{fs: fs}, nil
}

// Sample implements Probe.
func (p *ProcfsProbe) Sample() (float64, float64, error) {
	stat, err := p.fs.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cpu stat: %w", err)
	}

	cpu := stat.CPUTotal
	idle := cpu.Idle + cpu.Iowait
	busy := cpu.User + cpu.Nice + cpu.System + cpu.IRQ + cpu.SoftIRQ + cpu.Steal
	total := busy + idle

	p.mu.Lock()
	var cpuPercent float64
	if p.primed {
		deltaTotal := total - p.prevTotal
		deltaBusy := busy - p.prevBusy
		if deltaTotal > 0 {
			cpuPercent = deltaBusy / deltaTotal * 100
		}
	}
	p.prevBusy = busy
	p.prevTotal = total
	p.primed = true
	p.mu.Unlock()

	meminfo, err := p.fs.Meminfo()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read meminfo: %w", err)
	}

	var usedKB uint64
	if meminfo.MemTotal != nil {
		total := *meminfo.MemTotal
		var available uint64
		if meminfo.MemAvailable != nil {
			available = *meminfo.MemAvailable
		} else if meminfo.MemFree != nil {
			available = *meminfo.MemFree
		}
		if total > available {
			usedKB = total - available
		}
	}

	return cpuPercent, float64(usedKB) / 1024, nil
}

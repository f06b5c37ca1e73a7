// Package sampler periodically samples whole-machine CPU and memory use
// while a build runs and reduces the samples to a compact "cpu%/mem"
// summary string.
package sampler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultInterval = 2500 * time.Millisecond
	maxSamples      = 100

	significantMinDuration = 30 * time.Second
	significantPeakCPU     = 50.0
	significantPeakMemMB   = 500.0
)

// Probe reads one CPU/memory observation. Implementations keep whatever
// state they need between calls (CPU percent is a delta measurement).
type Probe interface {
	Sample() (cpuPercent float64, memoryMB float64, err error)
}

type sample struct {
	timestamp time.Time
	cpu       float64
	memoryMB  float64
}

// Summary is the final reduced resource usage of one sampling run.
type Summary struct {
	Res  string `json:"res"`
	Peak string `json:"pk,omitempty"`
}

// Sampler collects resource samples on a fixed interval.
type Sampler struct {
	probe    Probe
	interval time.Duration
	logger   *slog.Logger

	mu           sync.Mutex
	active       bool
	samples      []sample
	peakCPU      float64
	peakMemoryMB float64
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New creates a sampler reading from /proc at the default interval.
func New() (*Sampler, error) {
	probe, err := NewProcfsProbe()
	if err != nil {
		return nil, err
	}
	return NewWithProbe(probe, defaultInterval), nil
}

// NewWithProbe creates a sampler with a custom probe and interval.
func NewWithProbe(probe Probe, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sampler{
		probe:    probe,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Start begins background sampling. It is idempotent; a second call while
// sampling is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return
	}
	s.active = true
	s.samples = nil
	s.peakCPU = 0
	s.peakMemoryMB = 0
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(s.stopCh, s.doneCh)
}

func (s *Sampler) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.takeSample()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.takeSample()
		}
	}
}

func (s *Sampler) takeSample() {
	cpu, memMB, err := s.probe.Sample()
	if err != nil {
		// Sampling errors are swallowed; the next tick retries.
		s.logger.Debug("Resource sample failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.samples = append(s.samples, sample{timestamp: time.Now(), cpu: cpu, memoryMB: memMB})
	if len(s.samples) > maxSamples {
		s.samples = s.samples[len(s.samples)-maxSamples:]
	}
	if cpu > s.peakCPU {
		s.peakCPU = cpu
	}
	if memMB > s.peakMemoryMB {
		s.peakMemoryMB = memMB
	}
}

// Stop halts sampling, waits briefly for the in-flight sample, and returns
// the final summary. Returns false if sampling was never started or no
// samples were collected.
func (s *Sampler) Stop() (Summary, bool) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return Summary{}, false
	}
	s.active = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return Summary{}, false
	}

	var totalCPU, totalMem float64
	for _, smp := range s.samples {
		totalCPU += smp.cpu
		totalMem += smp.memoryMB
	}
	n := float64(len(s.samples))
	avgCPU := totalCPU / n
	avgMem := totalMem / n

	summary := Summary{Res: formatPair(avgCPU, avgMem)}
	if s.peakIsNotable(avgCPU, avgMem) {
		summary.Peak = fmt.Sprintf("%d/%s", int(roundHalfUp(s.peakCPU)), formatMemory(s.peakMemoryMB))
	}
	return summary, true
}

// Snapshot returns the compact encoding of the most recent sample without
// stopping the run. Returns false when not sampling or before the first
// sample lands.
func (s *Sampler) Snapshot() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || len(s.samples) == 0 {
		return Summary{}, false
	}

	latest := s.samples[len(s.samples)-1]
	summary := Summary{Res: formatPair(latest.cpu, latest.memoryMB)}
	if s.peakIsNotable(latest.cpu, latest.memoryMB) {
		summary.Peak = fmt.Sprintf("%d/%s", int(roundHalfUp(s.peakCPU)), formatMemory(s.peakMemoryMB))
	}
	return summary, true
}

// LastSample returns the raw values of the most recent sample. Returns
// false before the first sample lands.
func (s *Sampler) LastSample() (cpuPercent, memoryMB float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return 0, 0, false
	}
	latest := s.samples[len(s.samples)-1]
	return latest.cpu, latest.memoryMB, true
}

// IsSignificant reports whether the collected resource data is worth
// including in a build report at all. Short builds and idle machines are
// filtered out.
func (s *Sampler) IsSignificant(buildDuration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return false
	}
	if buildDuration > 0 && buildDuration < significantMinDuration {
		return false
	}
	return s.peakCPU > significantPeakCPU || s.peakMemoryMB > significantPeakMemMB
}

// peakIsNotable reports whether the peak deserves its own field: it must
// differ from the reference value by more than 20% and be high in absolute
// terms. Callers hold s.mu.
func (s *Sampler) peakIsNotable(refCPU, refMemMB float64) bool {
	var cpuDiff, memDiff float64
	if refCPU > 0 {
		cpuDiff = (s.peakCPU - refCPU) / refCPU
	}
	if refMemMB > 0 {
		memDiff = (s.peakMemoryMB - refMemMB) / refMemMB
	}
	return (cpuDiff > 0.2 && s.peakCPU > 80) || (memDiff > 0.2 && s.peakMemoryMB > 1024)
}

func formatPair(cpu, memMB float64) string {
	return fmt.Sprintf("%d%%/%s", int(roundHalfUp(cpu)), formatMemory(memMB))
}

// formatMemory renders whole megabytes below 1024, otherwise gigabytes
// with at most one decimal, trailing zeros stripped.
func formatMemory(memMB float64) string {
	if memMB >= 1024 {
		gb := memMB / 1024
		if gb == float64(int(gb)) {
			return fmt.Sprintf("%dg", int(gb))
		}
		str := fmt.Sprintf("%.1fg", gb)
		str = strings.TrimSuffix(str, "0g")
		str = strings.TrimSuffix(str, ".")
		if !strings.HasSuffix(str, "g") {
			str += "g"
		}
		return str
	}
	return fmt.Sprintf("%dm", int(memMB))
}

func roundHalfUp(v float64) float64 {
	return float64(int(v + 0.5))
}

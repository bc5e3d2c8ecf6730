package generator

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

// MemorySampler reports the resident set size of the process in MB
type MemorySampler interface {
	RSSMB() (float64, error)
}

// ProcessMemory samples this process through gopsutil
type ProcessMemory struct {
	once sync.Once
	proc *process.Process
	err  error
}

// RSSMB implements MemorySampler
func (m *ProcessMemory) RSSMB() (float64, error) {
	m.once.Do(func() {
		m.proc, m.err = process.NewProcess(int32(os.Getpid()))
	})
	if m.err != nil {
		return 0, m.err
	}
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / (1024 * 1024), nil
}

// memoryWatch tracks peak and latest samples
type memoryWatch struct {
	sampler MemorySampler
	mu      sync.Mutex
	peak    float64
	last    float64
}

func (w *memoryWatch) sample() float64 {
	if w.sampler == nil {
		return 0
	}
	mb, err := w.sampler.RSSMB()
	if err != nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = mb
	if mb > w.peak {
		w.peak = mb
	}
	return mb
}

func (w *memoryWatch) stats() (peak, last float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peak, w.last
}

package device

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Host samples the current process instead of an accelerator. It keeps the
// monitor and pre-flight checks meaningful on machines without a device.
type Host struct {
	once    sync.Once
	proc    *process.Process
	totalB  uint64
	nextID  atomic.Int64
}

// NewHost returns the host fallback device.
func NewHost() *Host { return &Host{} }

func (h *Host) init() {
	h.once.Do(func() {
		if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
			h.proc = p
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			h.totalB = vm.Total
		}
	})
}

func (h *Host) Name() string    { return "host" }
func (h *Host) Available() bool { return false }

func (h *Host) AllocatedBytes() uint64 {
	h.init()
	if h.proc == nil {
		return 0
	}
	mi, err := h.proc.MemoryInfo()
	if err != nil || mi == nil {
		return 0
	}
	return mi.RSS
}

func (h *Host) ReservedBytes() uint64 { return h.AllocatedBytes() }

func (h *Host) TotalBytes() uint64 {
	h.init()
	return h.totalB
}

func (h *Host) UtilizationPercent() float64 {
	h.init()
	if h.proc == nil {
		return 0
	}
	pct, err := h.proc.CPUPercent()
	if err != nil {
		return 0
	}
	return pct
}

func (h *Host) TemperatureC() (float64, bool) { return 0, false }
func (h *Host) PowerWatts() (float64, bool)   { return 0, false }
func (h *Host) ReleaseCache()                 {}
func (h *Host) Synchronize()                  {}

func (h *Host) NewStream() Stream {
	return tokenStream{id: int(h.nextID.Add(1) - 1)}
}

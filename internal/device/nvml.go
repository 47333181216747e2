//go:build nvml

package device

import (
	"sync/atomic"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlDevice samples GPU 0 through NVML. Stream handles are tokens; the
// model runtime maps them onto its own device streams.
type nvmlDevice struct {
	handle nvml.Device
	name   string
	totalB uint64
	nextID atomic.Int64
}

// Discover returns an NVML-backed device when a GPU is present, otherwise
// the host fallback.
func Discover() Device {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return NewHost()
	}
	h, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		return NewHost()
	}
	d := &nvmlDevice{handle: h}
	if n, ret := h.GetName(); ret == nvml.SUCCESS {
		d.name = n
	} else {
		d.name = "gpu0"
	}
	if mi, ret := h.GetMemoryInfo(); ret == nvml.SUCCESS {
		d.totalB = mi.Total
	}
	return d
}

func (d *nvmlDevice) Name() string    { return d.name }
func (d *nvmlDevice) Available() bool { return true }

func (d *nvmlDevice) AllocatedBytes() uint64 {
	mi, ret := d.handle.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return 0
	}
	return mi.Used
}

func (d *nvmlDevice) ReservedBytes() uint64 { return d.AllocatedBytes() }
func (d *nvmlDevice) TotalBytes() uint64    { return d.totalB }

func (d *nvmlDevice) UtilizationPercent() float64 {
	u, ret := d.handle.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return 0
	}
	return float64(u.Gpu)
}

func (d *nvmlDevice) TemperatureC() (float64, bool) {
	t, ret := d.handle.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, false
	}
	return float64(t), true
}

func (d *nvmlDevice) PowerWatts() (float64, bool) {
	mw, ret := d.handle.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, false
	}
	return float64(mw) / 1000.0, true
}

// NVML is observability-only; cache release and synchronization belong to
// the model runtime.
func (d *nvmlDevice) ReleaseCache() {}
func (d *nvmlDevice) Synchronize()  {}

func (d *nvmlDevice) NewStream() Stream {
	return tokenStream{id: int(d.nextID.Add(1) - 1)}
}

// Package device abstracts the compute accelerator: memory/utilization
// sampling, execution stream handles, and the resource monitor that feeds
// pressure decisions. It is structured into small files by concern:
//
//   - device.go: Device and Stream interfaces, token stream implementation.
//   - host.go: host fallback device sampling process memory via gopsutil.
//   - nvml.go / nvml_stub.go: NVML-backed device behind the `nvml` build tag.
//   - streams.go: round-robin stream allocator.
//   - monitor.go: metrics history, batch records, pressure heuristics.
//   - fake.go: controllable device for tests.
package device

// Device is a compute device with its own memory pool. Implementations
// must be safe for concurrent use.
type Device interface {
	// Name returns a human-readable device name.
	Name() string
	// Available reports whether this is a real accelerator. The host
	// fallback returns false; callers then skip stream isolation.
	Available() bool
	// AllocatedBytes returns currently allocated device memory.
	AllocatedBytes() uint64
	// ReservedBytes returns memory reserved by the allocator, which may
	// exceed AllocatedBytes. Implementations without the distinction
	// return AllocatedBytes.
	ReservedBytes() uint64
	// TotalBytes returns total device memory.
	TotalBytes() uint64
	// UtilizationPercent returns instantaneous compute utilization.
	UtilizationPercent() float64
	// TemperatureC returns the device temperature when known.
	TemperatureC() (float64, bool)
	// PowerWatts returns the current power draw when known.
	PowerWatts() (float64, bool)
	// ReleaseCache asks the runtime to return cached allocations to the
	// device allocator. Best effort.
	ReleaseCache()
	// Synchronize blocks until outstanding device work completes.
	Synchronize()
	// NewStream creates an execution stream on this device.
	NewStream() Stream
}

// Stream is an ordered queue of device operations. Model callables receive
// the stream they must issue work on; the caller synchronizes it before
// reading results back on the host.
type Stream interface {
	// ID identifies the stream within its device.
	ID() int
	// Synchronize blocks until work queued on this stream completes.
	Synchronize()
	// Close releases the stream.
	Close() error
}

// tokenStream is a stream handle with no device-side state. The built-in
// devices hand these out; a model runtime maps the ID onto its own stream
// objects.
type tokenStream struct{ id int }

func (s tokenStream) ID() int         { return s.id }
func (s tokenStream) Synchronize()    {}
func (s tokenStream) Close() error    { return nil }

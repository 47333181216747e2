package device

import (
	"sync"
	"sync/atomic"
)

// Fake is a controllable device for tests. Fields are set through the
// setters; reads are safe under concurrent use.
type Fake struct {
	mu          sync.Mutex
	name        string
	available   bool
	allocatedB  uint64
	totalB      uint64
	utilization float64

	ReleaseCalls atomic.Int64
	SyncCalls    atomic.Int64
	nextID       atomic.Int64
	streams      []*FakeStream
}

// NewFake returns a fake device presenting as an available accelerator
// with the given total memory.
func NewFake(totalBytes uint64) *Fake {
	return &Fake{name: "fake0", available: true, totalB: totalBytes}
}

func (f *Fake) SetAllocated(b uint64) {
	f.mu.Lock()
	f.allocatedB = b
	f.mu.Unlock()
}

func (f *Fake) SetUtilization(pct float64) {
	f.mu.Lock()
	f.utilization = pct
	f.mu.Unlock()
}

func (f *Fake) SetAvailable(v bool) {
	f.mu.Lock()
	f.available = v
	f.mu.Unlock()
}

func (f *Fake) Name() string { return f.name }

func (f *Fake) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *Fake) AllocatedBytes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocatedB
}

func (f *Fake) ReservedBytes() uint64 { return f.AllocatedBytes() }

func (f *Fake) TotalBytes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalB
}

func (f *Fake) UtilizationPercent() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.utilization
}

func (f *Fake) TemperatureC() (float64, bool) { return 0, false }
func (f *Fake) PowerWatts() (float64, bool)   { return 0, false }

func (f *Fake) ReleaseCache() { f.ReleaseCalls.Add(1) }
func (f *Fake) Synchronize()  { f.SyncCalls.Add(1) }

func (f *Fake) NewStream() Stream {
	s := &FakeStream{id: int(f.nextID.Add(1) - 1)}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s
}

// Streams returns every stream handed out so far.
func (f *Fake) Streams() []*FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeStream, len(f.streams))
	copy(out, f.streams)
	return out
}

// FakeStream counts synchronize/close calls.
type FakeStream struct {
	id        int
	SyncCalls atomic.Int64
	Closed    atomic.Bool
}

func (s *FakeStream) ID() int      { return s.id }
func (s *FakeStream) Synchronize() { s.SyncCalls.Add(1) }
func (s *FakeStream) Close() error {
	s.Closed.Store(true)
	return nil
}

package device

import "sync"

// Allocator hands out a fixed set of pre-created execution streams in
// round-robin order. Multiple streams let independent inference calls
// overlap transfer and compute instead of serializing through the default
// device queue; callers must synchronize a stream before reading its
// results on the host.
type Allocator struct {
	mu      sync.Mutex
	streams []Stream
	next    int
}

// NewAllocator pre-creates n streams on dev. When isolation is disabled or
// no accelerator is present it creates none and Next returns nil, which
// callers treat as "use the default device queue".
func NewAllocator(dev Device, n int, enabled bool) *Allocator {
	a := &Allocator{}
	if !enabled || dev == nil || !dev.Available() || n <= 0 {
		return a
	}
	a.streams = make([]Stream, n)
	for i := range a.streams {
		a.streams[i] = dev.NewStream()
	}
	return a
}

// Next returns the next stream in rotation, or nil when isolation is off.
// Hot path: one counter increment under the lock.
func (a *Allocator) Next() Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.streams) == 0 {
		return nil
	}
	s := a.streams[a.next%len(a.streams)]
	a.next++
	return s
}

// Size returns the number of managed streams.
func (a *Allocator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}

// SynchronizeAll blocks until work on every managed stream completes.
func (a *Allocator) SynchronizeAll() {
	a.mu.Lock()
	streams := append([]Stream(nil), a.streams...)
	a.mu.Unlock()
	for _, s := range streams {
		s.Synchronize()
	}
}

// Close synchronizes and releases every managed stream.
func (a *Allocator) Close() {
	a.mu.Lock()
	streams := a.streams
	a.streams = nil
	a.mu.Unlock()
	for _, s := range streams {
		s.Synchronize()
		_ = s.Close()
	}
}

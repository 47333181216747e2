package device

import "testing"

func TestAllocatorRoundRobin(t *testing.T) {
	dev := NewFake(1024 * bytesPerMB)
	a := NewAllocator(dev, 4, true)
	if a.Size() != 4 {
		t.Fatalf("expected 4 streams, got %d", a.Size())
	}

	// Request more streams than available; assignment must cycle.
	var ids []int
	for i := 0; i < 8; i++ {
		s := a.Next()
		if s == nil {
			t.Fatalf("expected stream at call %d", i)
		}
		ids = append(ids, s.ID())
	}
	for i := 0; i < 4; i++ {
		if ids[i] != ids[i+4] {
			t.Fatalf("expected rotation: ids[%d]=%d ids[%d]=%d", i, ids[i], i+4, ids[i+4])
		}
	}
}

func TestAllocatorDisabled(t *testing.T) {
	dev := NewFake(1024 * bytesPerMB)
	a := NewAllocator(dev, 4, false)
	if a.Size() != 0 || a.Next() != nil {
		t.Fatalf("expected no streams when isolation disabled")
	}
}

func TestAllocatorNoDevice(t *testing.T) {
	a := NewAllocator(NewHost(), 4, true)
	if a.Next() != nil {
		t.Fatalf("expected nil stream without an accelerator")
	}
}

func TestAllocatorSynchronizeAllAndClose(t *testing.T) {
	dev := NewFake(1024 * bytesPerMB)
	a := NewAllocator(dev, 2, true)
	a.SynchronizeAll()
	for _, s := range dev.Streams() {
		if s.SyncCalls.Load() != 1 {
			t.Fatalf("expected each stream synchronized once, got %d", s.SyncCalls.Load())
		}
	}
	a.Close()
	for _, s := range dev.Streams() {
		if !s.Closed.Load() {
			t.Fatalf("expected stream closed")
		}
	}
	if a.Next() != nil {
		t.Fatalf("expected nil stream after close")
	}
}

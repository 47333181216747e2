package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	p := newWorkerPool(2, 4)
	defer p.close()

	var ran atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		ok := p.submit(func() {
			if ran.Add(1) == 4 {
				close(done)
			}
		})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("tasks did not finish, ran %d of 4", ran.Load())
	}
}

func TestPoolBackpressure(t *testing.T) {
	p := newWorkerPool(1, 1)
	defer p.close()

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	p.submit(func() { close(started); <-block })
	<-started

	// One slot in the queue, then saturation.
	if !p.submit(func() {}) {
		t.Fatalf("queue slot rejected")
	}
	if p.submit(func() {}) {
		t.Fatalf("saturated pool accepted a task")
	}
}

func TestPoolCloseDrainsAndRejects(t *testing.T) {
	p := newWorkerPool(1, 4)
	var ran atomic.Int64
	for i := 0; i < 3; i++ {
		p.submit(func() { ran.Add(1) })
	}
	p.close()
	if got := ran.Load(); got != 3 {
		t.Fatalf("close drained %d tasks, want 3", got)
	}
	if p.submit(func() {}) {
		t.Fatalf("closed pool accepted a task")
	}
	if !p.isClosed() {
		t.Fatalf("isClosed = false after close")
	}
	// Second close is a no-op.
	p.close()
}

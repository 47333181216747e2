package scheduler

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Register("hrnet")
	if got := r.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}
	if m := s.Metrics(); m.Status != StatusPending {
		t.Fatalf("initial status = %q, want pending", m.Status)
	}

	r.UpdateStatus(s.ID, StatusRunning, "")
	r.UpdateStatus(s.ID, StatusCompleted, "")
	m, ok := r.Unregister(s.ID)
	if !ok {
		t.Fatalf("Unregister lost the session")
	}
	if m.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", m.Status)
	}
	if m.End.IsZero() || m.Duration() < 0 {
		t.Fatalf("terminal session missing end timestamp")
	}
	if got := r.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount = %d after unregister, want 0", got)
	}
}

func TestSessionTerminalIsSticky(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Register("hrnet")
	r.UpdateStatus(s.ID, StatusTimeout, "")
	end := s.Metrics().End

	// A late completion racing the timeout must not overwrite it.
	r.UpdateStatus(s.ID, StatusCompleted, "")
	m := s.Metrics()
	if m.Status != StatusTimeout {
		t.Fatalf("status = %q, want timeout to stick", m.Status)
	}
	if !m.End.Equal(end) {
		t.Fatalf("end timestamp restamped by late transition")
	}
}

func TestSessionErrorRecorded(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Register("hrnet")
	r.UpdateStatus(s.ID, StatusFailed, "kernel assertion failed")
	if m := s.Metrics(); m.Error != "kernel assertion failed" {
		t.Fatalf("error = %q", m.Error)
	}
}

func TestSessionIDsUnique(t *testing.T) {
	r := NewSessionRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := r.Register("hrnet")
		if seen[s.ID] {
			t.Fatalf("duplicate session id %q", s.ID)
		}
		seen[s.ID] = true
	}
}

func TestSessionCancelAll(t *testing.T) {
	r := NewSessionRegistry()
	a := r.Register("hrnet")
	b := r.Register("unet")
	r.UpdateStatus(b.ID, StatusCompleted, "")

	r.CancelAll()
	if m := a.Metrics(); m.Status != StatusCancelled {
		t.Fatalf("pending session = %q, want cancelled", m.Status)
	}
	// Terminal sessions are untouched.
	if m := b.Metrics(); m.Status != StatusCompleted {
		t.Fatalf("completed session = %q after CancelAll", m.Status)
	}
}

func TestSessionSnapshot(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Register("hrnet")
	s.setMemoryBefore(100)
	s.setMemoryAfter(160)

	snap := r.Snapshot()
	m, ok := snap[s.ID]
	if !ok {
		t.Fatalf("snapshot missing session %q", s.ID)
	}
	if m.MemoryBefore != 100 || m.MemoryAfter != 160 {
		t.Fatalf("memory samples = %d/%d, want 100/160", m.MemoryBefore, m.MemoryAfter)
	}
	if m.Start.After(time.Now()) {
		t.Fatalf("start timestamp in the future")
	}
}

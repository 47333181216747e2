package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of an inference session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimeout, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// SessionMetrics is the bookkeeping record folded into aggregates when a
// session ends.
type SessionMetrics struct {
	Start        time.Time
	End          time.Time
	MemoryBefore uint64
	MemoryAfter  uint64
	Status       Status
	Error        string
}

// Duration returns the session's wall-clock duration, zero until terminal.
func (m SessionMetrics) Duration() time.Duration {
	if m.End.IsZero() {
		return 0
	}
	return m.End.Sub(m.Start)
}

// Session is the record for one in-flight (possibly batched) device call.
type Session struct {
	ID    string
	Model string

	mu      sync.Mutex
	metrics SessionMetrics
}

func newSession(id, model string) *Session {
	return &Session{
		ID:    id,
		Model: model,
		metrics: SessionMetrics{
			Start:  time.Now(),
			Status: StatusPending,
		},
	}
}

// Metrics returns a copy of the session's current metrics.
func (s *Session) Metrics() SessionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// setMemoryBefore records the pre-call memory sample.
func (s *Session) setMemoryBefore(b uint64) {
	s.mu.Lock()
	s.metrics.MemoryBefore = b
	s.mu.Unlock()
}

// setMemoryAfter records the post-call memory sample.
func (s *Session) setMemoryAfter(b uint64) {
	s.mu.Lock()
	s.metrics.MemoryAfter = b
	s.mu.Unlock()
}

// updateStatus applies a transition. The first terminal transition stamps
// the end timestamp; later terminal transitions are no-ops rather than
// errors, since races between timeout detection and late completion are
// expected.
func (s *Session) updateStatus(status Status, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics.Status.Terminal() {
		return
	}
	s.metrics.Status = status
	if errText != "" {
		s.metrics.Error = errText
	}
	if status.Terminal() {
		s.metrics.End = time.Now()
	}
}

// SessionRegistry tracks in-flight sessions. All operations are safe under
// concurrent access from workers and the facade; the lock only guards map
// and counter updates, never a device call.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	seq      atomic.Uint64
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Register creates and tracks a session for model.
func (r *SessionRegistry) Register(model string) *Session {
	id := fmt.Sprintf("%s-%d-%d", model, time.Now().UnixNano(), r.seq.Add(1))
	s := newSession(id, model)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// UpdateStatus transitions a session by id. Unknown ids are ignored.
func (r *SessionRegistry) UpdateStatus(id string, status Status, errText string) {
	r.mu.Lock()
	s := r.sessions[id]
	r.mu.Unlock()
	if s != nil {
		s.updateStatus(status, errText)
	}
}

// Unregister removes a session and returns its final metrics for
// aggregation. The zero metrics and false are returned for unknown ids.
func (r *SessionRegistry) Unregister(id string) (SessionMetrics, bool) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if s == nil {
		return SessionMetrics{}, false
	}
	return s.Metrics(), true
}

// ActiveCount returns the number of tracked sessions.
func (r *SessionRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the metrics of every tracked session keyed by id.
func (r *SessionRegistry) Snapshot() map[string]SessionMetrics {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	out := make(map[string]SessionMetrics, len(sessions))
	for _, s := range sessions {
		out[s.ID] = s.Metrics()
	}
	return out
}

// CancelAll marks every tracked session CANCELLED. Used during shutdown
// for work withdrawn before execution.
func (r *SessionRegistry) CancelAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.updateStatus(StatusCancelled, "")
	}
}

package scheduler

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"segmentd/internal/device"
	"segmentd/internal/registry"
	"segmentd/pkg/types"
)

// Executor runs model calls on a bounded worker pool with per-call
// deadlines, stream assignment, and memory pressure handling. No per-model
// lock is held around the device call itself, so different (or the same)
// model can execute in parallel across workers; the session registry lock
// only guards bookkeeping.
type Executor struct {
	cfg      Config
	dev      device.Device
	monitor  *device.Monitor
	streams  *device.Allocator
	sessions *SessionRegistry
	pool     *workerPool
	log      zerolog.Logger

	// baseCtx outlives any single request: a caller timeout abandons the
	// result but does not cancel device work already submitted.
	baseCtx context.Context

	totalInferences atomic.Int64
	timeoutCount    atomic.Int64
	failureCount    atomic.Int64
}

func newExecutor(baseCtx context.Context, cfg Config, dev device.Device, monitor *device.Monitor, streams *device.Allocator, log zerolog.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		dev:      dev,
		monitor:  monitor,
		streams:  streams,
		sessions: NewSessionRegistry(),
		pool:     newWorkerPool(cfg.Workers, cfg.Workers*4),
		log:      log,
		baseCtx:  baseCtx,
	}
}

type execResult struct {
	out types.Tensor
	err error
}

// Execute runs one model call with the given deadline.
//
// Timeout policy: the deadline stops the caller from waiting and is
// reported immediately; it does not stop a kernel already executing on the
// device. The worker writes into a buffered channel, so a late completion
// is discarded without touching the already-unregistered session.
func (e *Executor) Execute(ctx context.Context, h *registry.Handle, input types.Tensor, timeout time.Duration) (types.Tensor, error) {
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	if e.cfg.Monitoring {
		if err := e.checkResources(); err != nil {
			return types.Tensor{}, err
		}
		if err := e.relievePressure(); err != nil {
			return types.Tensor{}, err
		}
	}

	stream := e.streams.Next()

	sess := e.sessions.Register(h.Name)
	sess.setMemoryBefore(e.dev.AllocatedBytes())
	start := time.Now()
	defer func() {
		m, _ := e.sessions.Unregister(sess.ID)
		e.log.Debug().
			Str("session", sess.ID).
			Str("model", h.Name).
			Str("status", string(m.Status)).
			Dur("dur", time.Since(start)).
			Msg("session end")
	}()

	ch := make(chan execResult, 1)
	var abandoned atomic.Bool
	ok := e.pool.submit(func() {
		// Caller already gave up and nobody will read the result; skip
		// work that has not started.
		if abandoned.Load() {
			return
		}
		e.sessions.UpdateStatus(sess.ID, StatusRunning, "")
		h.Eval()
		out, err := h.Forward(e.baseCtx, input, stream)
		if err == nil && stream != nil {
			stream.Synchronize()
		}
		ch <- execResult{out: out, err: err}
	})
	if !ok {
		e.sessions.UpdateStatus(sess.ID, StatusCancelled, "worker pool unavailable")
		if e.pool.isClosed() {
			return types.Tensor{}, errShutdown
		}
		return types.Tensor{}, queueFullError{model: h.Name}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			if looksLikeOOM(res.err) {
				e.emergencyCleanup()
				e.failureCount.Add(1)
				failuresTotal.WithLabelValues(h.Name).Inc()
				e.sessions.UpdateStatus(sess.ID, StatusFailed, res.err.Error())
				cur := float64(e.dev.AllocatedBytes()) / (1024 * 1024)
				return types.Tensor{}, resourceError{currentMB: cur, limitMB: float64(e.cfg.MemoryLimitBytes) / (1024 * 1024), msg: "device out of memory during inference"}
			}
			e.failureCount.Add(1)
			failuresTotal.WithLabelValues(h.Name).Inc()
			e.sessions.UpdateStatus(sess.ID, StatusFailed, res.err.Error())
			return types.Tensor{}, executionError{model: h.Name, err: res.err}
		}
		sess.setMemoryAfter(e.dev.AllocatedBytes())
		e.sessions.UpdateStatus(sess.ID, StatusCompleted, "")
		e.totalInferences.Add(1)
		inferencesTotal.WithLabelValues(h.Name).Inc()
		return res.out, nil

	case <-ctx.Done():
		abandoned.Store(true)
		// CANCELLED is reserved for work withdrawn before it started; a
		// call already on the device records the cancellation as FAILED.
		if sess.Metrics().Status == StatusRunning {
			e.sessions.UpdateStatus(sess.ID, StatusFailed, ctx.Err().Error())
		} else {
			e.sessions.UpdateStatus(sess.ID, StatusCancelled, ctx.Err().Error())
		}
		return types.Tensor{}, ctx.Err()

	case <-timer.C:
		// Best-effort: a task that has not started is skipped; a running
		// call continues and its late result lands in the buffered
		// channel, unread.
		abandoned.Store(true)
		e.sessions.UpdateStatus(sess.ID, StatusTimeout, "")
		e.noteTimeout(h.Name)
		return types.Tensor{}, timeoutError{model: h.Name, timeout: timeout, inputSize: input.Elems()}
	}
}

// noteTimeout folds one deadline miss into the counters and releases the
// device cache. Shared by the executor's batch deadline and the facade's
// per-request deadline, so every timeout surfaced to a caller is counted
// exactly where it fired.
func (e *Executor) noteTimeout(model string) {
	e.timeoutCount.Add(1)
	timeoutsTotal.WithLabelValues(model).Inc()
	e.dev.ReleaseCache()
}

// checkResources fails fast when memory is over the configured hard limit.
func (e *Executor) checkResources() error {
	allocated := e.dev.AllocatedBytes()
	deviceMemoryMB.Set(float64(allocated) / (1024 * 1024))
	if e.cfg.MemoryLimitBytes > 0 && allocated > e.cfg.MemoryLimitBytes {
		e.dev.ReleaseCache()
		return resourceError{
			currentMB: float64(allocated) / (1024 * 1024),
			limitMB:   float64(e.cfg.MemoryLimitBytes) / (1024 * 1024),
			msg:       "pre-flight memory check failed",
		}
	}
	return nil
}

// relievePressure runs emergency cleanup at the emergency threshold and
// fails when usage stays above the safety threshold afterwards.
func (e *Executor) relievePressure() error {
	snap, ok := e.monitor.Current()
	if !ok || !e.dev.Available() {
		return nil
	}
	if snap.UsagePercent < emergencyThreshold {
		return nil
	}
	e.log.Warn().Float64("usage_percent", snap.UsagePercent).Msg("emergency memory cleanup")
	e.emergencyCleanup()
	snap, ok = e.monitor.Current()
	if ok && snap.UsagePercent > safetyThreshold {
		return resourceError{
			currentMB: snap.AllocatedMB,
			limitMB:   snap.TotalMB * safetyThreshold / 100,
			msg:       "device memory pressure persists after cleanup",
		}
	}
	return nil
}

// emergencyCleanup forces a cache release, synchronizes all streams, and
// runs a GC pass.
func (e *Executor) emergencyCleanup() {
	e.dev.ReleaseCache()
	e.streams.SynchronizeAll()
	runtime.GC()
}

// Counters returns the aggregate totals. Reads tolerate slightly stale
// values; they never block writers.
func (e *Executor) Counters() (total, timeouts, failures int64) {
	return e.totalInferences.Load(), e.timeoutCount.Load(), e.failureCount.Load()
}

// Sessions exposes the session registry.
func (e *Executor) Sessions() *SessionRegistry { return e.sessions }

func looksLikeOOM(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "out of memory") || strings.Contains(msg, "oom")
}

package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"segmentd/internal/device"
	"segmentd/internal/registry"
	"segmentd/pkg/types"
)

const defaultThreshold = 0.5

// Service is the facade the HTTP layer talks to. It owns the device
// monitor, the stream allocator, the executor, and one batch queue per
// registered model.
type Service struct {
	cfg     Config
	reg     *registry.Registry
	dev     device.Device
	monitor *device.Monitor
	streams *device.Allocator
	exec    *Executor
	queues  map[string]*BatchQueue
	log     zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	started time.Time

	shutdownOnce sync.Once
	mu           sync.Mutex
	closed       bool
}

// NewService wires the scheduler together. Call Start before serving
// traffic and Shutdown when done.
func NewService(cfg Config, reg *registry.Registry, dev device.Device, log zerolog.Logger) *Service {
	cfg = cfg.withDefaults()
	baseCtx, cancel := context.WithCancel(context.Background())
	monitor := device.NewMonitor(dev)
	streams := device.NewAllocator(dev, cfg.Workers, cfg.StreamIsolation)
	exec := newExecutor(baseCtx, cfg, dev, monitor, streams, log)

	s := &Service{
		cfg:     cfg,
		reg:     reg,
		dev:     dev,
		monitor: monitor,
		streams: streams,
		exec:    exec,
		queues:  make(map[string]*BatchQueue, reg.Len()),
		log:     log,
		baseCtx: baseCtx,
		cancel:  cancel,
		started: time.Now(),
	}
	for _, m := range reg.List() {
		h, _ := reg.Resolve(m.Name)
		s.queues[m.Name] = newBatchQueue(h, exec, monitor, cfg, log)
	}
	return s
}

// Start launches the background sampling loop and the per-model queue
// loops.
func (s *Service) Start() {
	if s.cfg.Monitoring {
		s.monitor.Start(s.cfg.SampleInterval)
	}
	for _, q := range s.queues {
		q.Start()
	}
	s.log.Info().
		Int("workers", s.cfg.Workers).
		Int("models", s.reg.Len()).
		Bool("stream_isolation", s.streams.Size() > 0).
		Bool("monitoring", s.cfg.Monitoring).
		Msg("scheduler started")
}

// Infer runs one segmentation request end to end: resolve the model, ride
// a batch through the device, then threshold the logits into a binary
// mask.
func (s *Service) Infer(ctx context.Context, req types.SegmentRequest) (types.SegmentResponse, error) {
	name := req.Model
	if name == "" {
		name = s.cfg.DefaultModel
	}
	h, ok := s.reg.Resolve(name)
	if !ok {
		return types.SegmentResponse{}, modelNotFoundError{name: name}
	}
	if err := req.Input.Validate(); err != nil {
		return types.SegmentResponse{}, executionError{model: name, err: err}
	}
	if len(h.InputShape) > 0 && !sameShape(req.Input.Shape, h.InputShape) {
		return types.SegmentResponse{}, executionError{
			model: name,
			err:   fmt.Errorf("input shape %v does not match model shape %v", req.Input.Shape, h.InputShape),
		}
	}

	s.mu.Lock()
	closed := s.closed
	q := s.queues[name]
	s.mu.Unlock()
	if closed || q == nil {
		return types.SegmentResponse{}, errShutdown
	}

	start := time.Now()
	done, err := q.Submit(req.Input)
	if err != nil {
		return types.SegmentResponse{}, err
	}

	timeout := s.cfg.DefaultTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return types.SegmentResponse{}, res.err
		}
		threshold := req.Threshold
		if threshold <= 0 || threshold >= 1 {
			threshold = defaultThreshold
		}
		return types.SegmentResponse{
			Model:      name,
			Mask:       maskFromLogits(res.out.Data, threshold),
			Shape:      res.out.Shape,
			BatchSize:  res.batch,
			DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
		}, nil
	case <-ctx.Done():
		return types.SegmentResponse{}, ctx.Err()
	case <-timer.C:
		// The batch keeps executing; from the caller's side this is a
		// timeout and must show up in the counters and cache cleanup
		// exactly like one detected by the executor.
		s.exec.noteTimeout(name)
		return types.SegmentResponse{}, timeoutError{model: name, timeout: timeout, inputSize: req.Input.Elems()}
	}
}

// maskFromLogits applies a sigmoid and thresholds into a 0/1 mask.
func maskFromLogits(logits []float32, threshold float64) []uint8 {
	mask := make([]uint8, len(logits))
	for i, v := range logits {
		p := 1 / (1 + math.Exp(-float64(v)))
		if p >= threshold {
			mask[i] = 1
		}
	}
	return mask
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Models lists the registered model descriptors.
func (s *Service) Models() []types.Model { return s.reg.List() }

// Ready reports whether the service accepts work.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.reg.Len() > 0
}

// Status snapshots queue depths and scheduler state.
func (s *Service) Status() types.StatusResponse {
	s.mu.Lock()
	closed := s.closed
	queues := make([]types.QueueStatus, 0, len(s.queues))
	for _, q := range s.queues {
		queues = append(queues, q.Status())
	}
	s.mu.Unlock()
	sort.Slice(queues, func(i, j int) bool { return queues[i].Model < queues[j].Model })

	state := "ready"
	if closed {
		state = "shutdown"
	}
	now := time.Now()
	return types.StatusResponse{
		State:           state,
		Queues:          queues,
		ActiveSessions:  s.exec.Sessions().ActiveCount(),
		Workers:         s.cfg.Workers,
		StreamIsolation: s.streams.Size() > 0,
		UptimeSeconds:   int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix:  now.Unix(),
	}
}

// Metrics snapshots the aggregate counters, device summary, and per-model
// batch stats.
func (s *Service) Metrics() types.MetricsResponse {
	total, timeouts, failures := s.exec.Counters()
	denom := total
	if denom < 1 {
		denom = 1
	}
	return types.MetricsResponse{
		TotalInferences: total,
		TimeoutCount:    timeouts,
		FailureCount:    failures,
		TimeoutRate:     float64(timeouts) / float64(denom),
		FailureRate:     float64(failures) / float64(denom),
		ActiveSessions:  s.exec.Sessions().ActiveCount(),
		Device:          s.monitor.Summary(),
		PerModel:        s.monitor.ModelStats(),
	}
}

// Sessions exposes in-flight session metrics keyed by id.
func (s *Service) Sessions() map[string]SessionMetrics {
	return s.exec.Sessions().Snapshot()
}

// Warmup runs one inference per model so first requests do not pay
// first-call initialization costs. Per-model failures are logged, not
// fatal.
func (s *Service) Warmup(ctx context.Context) {
	for _, m := range s.reg.List() {
		if len(m.InputShape) == 0 {
			continue
		}
		h, _ := s.reg.Resolve(m.Name)
		elems := 1
		for _, d := range m.InputShape {
			elems *= d
		}
		input, err := types.Stack([]types.Tensor{{
			Shape: append([]int(nil), m.InputShape...),
			Data:  make([]float32, elems),
		}})
		if err != nil {
			continue
		}
		start := time.Now()
		if _, err := s.exec.Execute(ctx, h, input, s.cfg.DefaultTimeout); err != nil {
			s.log.Warn().Err(err).Str("model", m.Name).Msg("warmup failed")
			continue
		}
		s.log.Info().Str("model", m.Name).Dur("dur", time.Since(start)).Msg("model warmed up")
	}
}

// Shutdown stops intake, optionally waits for in-flight sessions up to
// timeout, cancels whatever remains, and releases device resources. Safe
// to call more than once; only the first call does the work.
func (s *Service) Shutdown(wait bool, timeout time.Duration) {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		queues := make([]*BatchQueue, 0, len(s.queues))
		for _, q := range s.queues {
			queues = append(queues, q)
		}
		s.mu.Unlock()

		s.log.Info().Bool("wait", wait).Dur("timeout", timeout).Msg("scheduler shutting down")
		for _, q := range queues {
			q.Close()
		}

		if wait && timeout > 0 {
			deadline := time.Now().Add(timeout)
			for s.exec.Sessions().ActiveCount() > 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
		}
		if n := s.exec.Sessions().ActiveCount(); n > 0 {
			s.log.Warn().Int("sessions", n).Msg("cancelling sessions still in flight")
		}
		s.exec.Sessions().CancelAll()
		s.cancel()
		s.exec.pool.close()
		s.monitor.Stop()
		s.streams.Close()
		s.dev.ReleaseCache()
		s.log.Info().Msg("scheduler stopped")
	})
}

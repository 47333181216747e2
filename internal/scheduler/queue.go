package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"segmentd/internal/device"
	"segmentd/internal/registry"
	"segmentd/pkg/types"
)

// itemResult carries one request's slice of a batch outcome. The channel is
// buffered so the queue loop never blocks on a caller that stopped waiting.
type itemResult struct {
	out   types.Tensor
	batch int
	err   error
}

type queueItem struct {
	input    types.Tensor
	enqueued time.Time
	done     chan itemResult
}

// BatchQueue coalesces single-image requests for one model into batched
// device calls. A batch is released when the adaptive target size is
// reached, when the oldest request has waited MaxQueueDelay, or when the
// queue hits capacity. Results fan back out in submission order.
//
// Under memory pressure the target size halves down to 1; after
// recoveryStreak consecutive successful batches it grows back one step at a
// time, never past the model's optimal batch size.
type BatchQueue struct {
	handle  *registry.Handle
	exec    *Executor
	monitor *device.Monitor
	cfg     Config
	log     zerolog.Logger

	mu     sync.Mutex
	items  []*queueItem
	closed bool

	target  int
	streak  int
	stopped chan struct{}
	loop    sync.WaitGroup
}

func newBatchQueue(h *registry.Handle, exec *Executor, monitor *device.Monitor, cfg Config, log zerolog.Logger) *BatchQueue {
	target := h.OptimalBatchSize
	if target <= 0 {
		target = 1
	}
	return &BatchQueue{
		handle:  h,
		exec:    exec,
		monitor: monitor,
		cfg:     cfg,
		log:     log.With().Str("model", h.Name).Logger(),
		target:  target,
		stopped: make(chan struct{}),
	}
}

// Start launches the queue's drain loop.
func (q *BatchQueue) Start() {
	q.loop.Add(1)
	go q.run()
}

// Submit enqueues one input and returns the channel its result will arrive
// on. Submissions to a full or closed queue fail immediately; nothing is
// silently dropped.
func (q *BatchQueue) Submit(input types.Tensor) (<-chan itemResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, errShutdown
	}
	if len(q.items) >= q.cfg.MaxQueueSize {
		return nil, queueFullError{model: q.handle.Name}
	}
	it := &queueItem{
		input:    input,
		enqueued: time.Now(),
		done:     make(chan itemResult, 1),
	}
	q.items = append(q.items, it)
	queueDepth.WithLabelValues(q.handle.Name).Set(float64(len(q.items)))
	return it.done, nil
}

// Depth returns the number of queued requests.
func (q *BatchQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// NextBatchSize returns the current adaptive batch target.
func (q *BatchQueue) NextBatchSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.target
}

// Status reports the queue's depth, capacity, and batch target.
func (q *BatchQueue) Status() types.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return types.QueueStatus{
		Model:         q.handle.Name,
		Depth:         len(q.items),
		Capacity:      q.cfg.MaxQueueSize,
		NextBatchSize: q.target,
	}
}

// Close stops the drain loop and fails every still-queued request. Safe to
// call more than once.
func (q *BatchQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	close(q.stopped)
	q.loop.Wait()
	for _, it := range pending {
		it.done <- itemResult{err: errShutdown}
	}
	queueDepth.WithLabelValues(q.handle.Name).Set(0)
}

func (q *BatchQueue) run() {
	defer q.loop.Done()
	idle := time.NewTicker(defaultIdlePoll)
	defer idle.Stop()
	for {
		select {
		case <-q.stopped:
			return
		case <-idle.C:
		}
		q.adjustTarget()
		batch := q.drainReady()
		if len(batch) == 0 {
			continue
		}
		q.processBatch(batch)
	}
}

// adjustTarget halves the batch target under memory pressure and grows it
// back one step after a streak of clean batches.
func (q *BatchQueue) adjustTarget() {
	reduce := q.monitor.ShouldReduceBatchSize(pressureThreshold)
	q.mu.Lock()
	defer q.mu.Unlock()
	if reduce {
		if q.target > 1 {
			q.target /= 2
			if q.target < 1 {
				q.target = 1
			}
			q.log.Warn().Int("batch_size", q.target).Msg("reducing batch size under memory pressure")
		}
		q.streak = 0
		return
	}
	if q.target < q.handle.OptimalBatchSize && q.streak >= recoveryStreak {
		q.target++
		q.streak = 0
		q.log.Info().Int("batch_size", q.target).Msg("recovering batch size")
	}
}

// drainReady removes and returns the next batch, or nil when no release
// condition holds yet.
func (q *BatchQueue) drainReady() []*queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return nil
	}
	ready := n >= q.target ||
		n >= q.cfg.MaxQueueSize ||
		time.Since(q.items[0].enqueued) >= q.cfg.MaxQueueDelay
	if !ready {
		return nil
	}
	take := n
	if take > q.target {
		take = q.target
	}
	if take > q.handle.MaxBatchSize {
		take = q.handle.MaxBatchSize
	}
	batch := q.items[:take]
	q.items = append([]*queueItem(nil), q.items[take:]...)
	queueDepth.WithLabelValues(q.handle.Name).Set(float64(len(q.items)))
	return batch
}

func (q *BatchQueue) processBatch(batch []*queueItem) {
	inputs := make([]types.Tensor, len(batch))
	for i, it := range batch {
		inputs[i] = it.input
	}
	stacked, err := types.Stack(inputs)
	if err != nil {
		q.fail(batch, executionError{model: q.handle.Name, err: err})
		return
	}

	memBefore := q.exec.dev.AllocatedBytes()
	start := time.Now()
	// The whole batch shares one deadline, stretched with its size so a
	// full batch is not penalized against a single call.
	timeout := q.cfg.DefaultTimeout * time.Duration(len(batch))
	out, err := q.exec.Execute(context.Background(), q.handle, stacked, timeout)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	q.monitor.RecordBatch(q.handle.Name, len(batch), start, memBefore, err == nil, errMsg)
	batchSizeObserved.WithLabelValues(q.handle.Name).Observe(float64(len(batch)))

	if err != nil {
		q.mu.Lock()
		q.streak = 0
		q.mu.Unlock()
		q.fail(batch, err)
		return
	}
	q.mu.Lock()
	q.streak++
	q.mu.Unlock()

	for i, it := range batch {
		row, rerr := out.Row(i)
		if rerr != nil {
			it.done <- itemResult{err: executionError{model: q.handle.Name, err: rerr}}
			continue
		}
		it.done <- itemResult{out: row, batch: len(batch)}
	}
}

func (q *BatchQueue) fail(batch []*queueItem, err error) {
	for _, it := range batch {
		it.done <- itemResult{err: err}
	}
}

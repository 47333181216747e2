package device

import (
	"sort"
	"sync"
	"time"

	"segmentd/pkg/types"
)

// Defaults applied when corresponding MonitorConfig fields are unset.
const (
	defaultHistorySize = 100
	defaultSampleEvery = time.Second

	// Trailing window for the batch failure heuristic.
	batchFailureWindow = 5
	// Batch records retained per model.
	batchHistorySize = 50
	// Per-image latency samples retained per model for percentiles.
	latencyBufferSize = 1000
)

const bytesPerMB = 1024 * 1024

// Snapshot is a point-in-time sample of device memory and utilization.
type Snapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	DeviceName         string    `json:"device_name"`
	AllocatedMB        float64   `json:"memory_allocated_mb"`
	ReservedMB         float64   `json:"memory_reserved_mb"`
	FreeMB             float64   `json:"memory_free_mb"`
	TotalMB            float64   `json:"memory_total_mb"`
	UsagePercent       float64   `json:"memory_usage_percent"`
	UtilizationPercent float64   `json:"utilization_percent"`
	TemperatureC       *float64  `json:"temperature_celsius,omitempty"`
	PowerWatts         *float64  `json:"power_draw_watts,omitempty"`
}

// BatchRecord captures one batch's processing outcome.
type BatchRecord struct {
	Model              string  `json:"model_name"`
	BatchSize          int     `json:"batch_size"`
	InferenceTimeMs    float64 `json:"inference_time_ms"`
	ThroughputImgsSec  float64 `json:"throughput_imgs_sec"`
	MemoryBeforeMB     float64 `json:"memory_before_mb"`
	MemoryAfterMB      float64 `json:"memory_after_mb"`
	MemoryDeltaMB      float64 `json:"memory_delta_mb"`
	UtilizationPercent float64 `json:"gpu_utilization"`
	Success            bool    `json:"success"`
	Error              string  `json:"error_message,omitempty"`
}

type modelBatches struct {
	records          []BatchRecord
	latenciesMs      []float64
	totalBatches     int64
	totalRequests    int64
	successBatches   int64
	sumThroughput    float64
	totalInferenceMs float64
}

// Monitor samples a device into a bounded rolling history and records
// per-model batch outcomes for pressure decisions and summary stats.
type Monitor struct {
	dev         Device
	historySize int

	mu       sync.Mutex
	history  []Snapshot
	peakMB   float64
	perModel map[string]*modelBatches

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewMonitor creates a monitor over dev. Sampling does not start until
// Start is called.
func NewMonitor(dev Device) *Monitor {
	return &Monitor{
		dev:         dev,
		historySize: defaultHistorySize,
		perModel:    make(map[string]*modelBatches),
	}
}

// Current samples the device. ok is false when no device is attached.
func (m *Monitor) Current() (Snapshot, bool) {
	if m.dev == nil {
		return Snapshot{}, false
	}
	allocated := float64(m.dev.AllocatedBytes()) / bytesPerMB
	reserved := float64(m.dev.ReservedBytes()) / bytesPerMB
	total := float64(m.dev.TotalBytes()) / bytesPerMB
	free := total - allocated
	if free < 0 {
		free = 0
	}
	usage := 0.0
	if total > 0 {
		usage = allocated / total * 100
	}
	if usage > 100 {
		usage = 100
	}
	snap := Snapshot{
		Timestamp:          time.Now(),
		DeviceName:         m.dev.Name(),
		AllocatedMB:        allocated,
		ReservedMB:         reserved,
		FreeMB:             free,
		TotalMB:            total,
		UsagePercent:       usage,
		UtilizationPercent: m.dev.UtilizationPercent(),
	}
	if t, ok := m.dev.TemperatureC(); ok {
		snap.TemperatureC = &t
	}
	if p, ok := m.dev.PowerWatts(); ok {
		snap.PowerWatts = &p
	}

	m.mu.Lock()
	if allocated > m.peakMB {
		m.peakMB = allocated
	}
	m.mu.Unlock()
	return snap, true
}

// Start launches the background sampling loop. A second Start while
// running is a no-op.
func (m *Monitor) Start(interval time.Duration) {
	if interval <= 0 {
		interval = defaultSampleEvery
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if snap, ok := m.Current(); ok {
					m.appendHistory(snap)
				}
			}
		}
	}()
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stopCh, m.doneCh
	m.mu.Unlock()
	close(stop)
	<-done
}

func (m *Monitor) appendHistory(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, snap)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}
}

// RecordBatch records the outcome of one batch call. memoryBefore is the
// allocated-bytes sample taken before the call.
func (m *Monitor) RecordBatch(model string, batchSize int, start time.Time, memoryBefore uint64, success bool, errMsg string) BatchRecord {
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
	throughput := 0.0
	if elapsedMs > 0 {
		throughput = float64(batchSize) / elapsedMs * 1000
	}
	var memoryAfter uint64
	if m.dev != nil {
		memoryAfter = m.dev.AllocatedBytes()
	}
	deltaMB := (float64(memoryAfter) - float64(memoryBefore)) / bytesPerMB
	if deltaMB < 0 {
		deltaMB = 0
	}
	util := 0.0
	if snap, ok := m.Current(); ok {
		util = snap.UtilizationPercent
	}

	rec := BatchRecord{
		Model:              model,
		BatchSize:          batchSize,
		InferenceTimeMs:    elapsedMs,
		ThroughputImgsSec:  throughput,
		MemoryBeforeMB:     float64(memoryBefore) / bytesPerMB,
		MemoryAfterMB:      float64(memoryAfter) / bytesPerMB,
		MemoryDeltaMB:      deltaMB,
		UtilizationPercent: util,
		Success:            success,
		Error:              errMsg,
	}

	m.mu.Lock()
	mb := m.perModel[model]
	if mb == nil {
		mb = &modelBatches{}
		m.perModel[model] = mb
	}
	mb.records = append(mb.records, rec)
	if len(mb.records) > batchHistorySize {
		mb.records = mb.records[len(mb.records)-batchHistorySize:]
	}
	mb.totalBatches++
	mb.totalRequests += int64(batchSize)
	if success {
		mb.successBatches++
		mb.sumThroughput += throughput
		mb.totalInferenceMs += elapsedMs
		if batchSize > 0 {
			perImage := elapsedMs / float64(batchSize)
			mb.latenciesMs = append(mb.latenciesMs, perImage)
			if len(mb.latenciesMs) > latencyBufferSize {
				mb.latenciesMs = mb.latenciesMs[len(mb.latenciesMs)-latencyBufferSize:]
			}
		}
	}
	m.mu.Unlock()
	return rec
}

// ShouldReduceBatchSize reports memory pressure: true when the current
// memory usage exceeds threshold percent, or when at least 2 of the last 5
// recorded batches for any model failed. Failures can lag a memory spike,
// so the trailing window is checked independently of the live sample.
func (m *Monitor) ShouldReduceBatchSize(threshold float64) bool {
	if snap, ok := m.Current(); ok && m.dev.Available() && snap.UsagePercent > threshold {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mb := range m.perModel {
		recs := mb.records
		if len(recs) > batchFailureWindow {
			recs = recs[len(recs)-batchFailureWindow:]
		}
		failures := 0
		for _, r := range recs {
			if !r.Success {
				failures++
			}
		}
		if failures >= 2 {
			return true
		}
	}
	return false
}

// Summary aggregates the history window into a device summary.
func (m *Monitor) Summary() types.DeviceSummary {
	out := types.DeviceSummary{}
	if m.dev != nil {
		out.DeviceAvailable = m.dev.Available()
		out.DeviceName = m.dev.Name()
		out.TotalMemoryMB = float64(m.dev.TotalBytes()) / bytesPerMB
	}
	if snap, ok := m.Current(); ok {
		out.CurrentMemoryMB = snap.AllocatedMB
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out.PeakMemoryMB = m.peakMB
	if n := len(m.history); n > 0 {
		var sumMem, sumUtil float64
		for _, s := range m.history {
			sumMem += s.AllocatedMB
			sumUtil += s.UtilizationPercent
		}
		out.AvgMemoryMB = sumMem / float64(n)
		out.AvgUtilizationPercent = sumUtil / float64(n)
	}
	return out
}

// ModelStats returns per-model batch aggregates including latency
// percentiles over the retained sample buffer.
func (m *Monitor) ModelStats() map[string]types.ModelBatchStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]types.ModelBatchStats, len(m.perModel))
	for name, mb := range m.perModel {
		stats := types.ModelBatchStats{
			TotalBatches:  mb.totalBatches,
			TotalRequests: mb.totalRequests,
		}
		if mb.totalBatches > 0 {
			stats.SuccessRatePercent = float64(mb.successBatches) / float64(mb.totalBatches) * 100
		}
		if mb.successBatches > 0 {
			stats.AvgThroughputImgsSec = mb.sumThroughput / float64(mb.successBatches)
		}
		stats.P50LatencyMs = percentile(mb.latenciesMs, 50)
		stats.P95LatencyMs = percentile(mb.latenciesMs, 95)
		stats.P99LatencyMs = percentile(mb.latenciesMs, 99)
		out[name] = stats
	}
	return out
}

// History returns a copy of the rolling snapshot history.
func (m *Monitor) History() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

func percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(p / 100 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

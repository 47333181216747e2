package device

import (
	"testing"
	"time"
)

func TestCurrentClampsAndComputesUsage(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	dev.SetAllocated(250 * bytesPerMB)
	m := NewMonitor(dev)

	snap, ok := m.Current()
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.AllocatedMB != 250 || snap.TotalMB != 1000 {
		t.Fatalf("unexpected memory: %+v", snap)
	}
	if snap.UsagePercent != 25 {
		t.Fatalf("expected 25%% usage, got %v", snap.UsagePercent)
	}
	if snap.FreeMB != 750 {
		t.Fatalf("expected 750MB free, got %v", snap.FreeMB)
	}

	// Allocated beyond total must clamp instead of going negative/over 100.
	dev.SetAllocated(2000 * bytesPerMB)
	snap, _ = m.Current()
	if snap.FreeMB != 0 || snap.UsagePercent != 100 {
		t.Fatalf("expected clamped snapshot, got %+v", snap)
	}
}

func TestCurrentNoDevice(t *testing.T) {
	m := NewMonitor(nil)
	if _, ok := m.Current(); ok {
		t.Fatalf("expected no snapshot without a device")
	}
}

func TestShouldReduceBatchSizeOnUtilization(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	dev.SetAllocated(900 * bytesPerMB)
	m := NewMonitor(dev)

	if !m.ShouldReduceBatchSize(85) {
		t.Fatalf("expected pressure at 90%% usage vs 85%% threshold")
	}
	dev.SetAllocated(100 * bytesPerMB)
	if m.ShouldReduceBatchSize(85) {
		t.Fatalf("expected no pressure at 10%% usage")
	}
}

func TestShouldReduceBatchSizeOnTrailingFailures(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	m := NewMonitor(dev)
	start := time.Now().Add(-10 * time.Millisecond)

	m.RecordBatch("hrnet", 4, start, 0, true, "")
	m.RecordBatch("hrnet", 4, start, 0, false, "oom")
	if m.ShouldReduceBatchSize(99) {
		t.Fatalf("one failure in window should not trigger")
	}
	m.RecordBatch("hrnet", 4, start, 0, false, "oom")
	if !m.ShouldReduceBatchSize(99) {
		t.Fatalf("two failures in last five should trigger")
	}
}

func TestRecordBatchAggregates(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	dev.SetAllocated(10 * bytesPerMB)
	m := NewMonitor(dev)
	start := time.Now().Add(-20 * time.Millisecond)

	rec := m.RecordBatch("hrnet", 4, start, 5*bytesPerMB, true, "")
	if rec.BatchSize != 4 || !rec.Success {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.InferenceTimeMs < 15 {
		t.Fatalf("expected >=15ms elapsed, got %v", rec.InferenceTimeMs)
	}
	if rec.ThroughputImgsSec <= 0 {
		t.Fatalf("expected positive throughput, got %v", rec.ThroughputImgsSec)
	}
	if rec.MemoryDeltaMB != 5 {
		t.Fatalf("expected 5MB delta, got %v", rec.MemoryDeltaMB)
	}

	stats := m.ModelStats()["hrnet"]
	if stats.TotalBatches != 1 || stats.TotalRequests != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRatePercent != 100 {
		t.Fatalf("expected 100%% success, got %v", stats.SuccessRatePercent)
	}
	if stats.P95LatencyMs <= 0 {
		t.Fatalf("expected positive p95, got %v", stats.P95LatencyMs)
	}
}

func TestRecordBatchNegativeDeltaClamped(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	dev.SetAllocated(1 * bytesPerMB)
	m := NewMonitor(dev)
	rec := m.RecordBatch("hrnet", 1, time.Now(), 50*bytesPerMB, true, "")
	if rec.MemoryDeltaMB != 0 {
		t.Fatalf("expected clamped delta, got %v", rec.MemoryDeltaMB)
	}
}

func TestMonitorStartStop(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	dev.SetAllocated(100 * bytesPerMB)
	m := NewMonitor(dev)
	m.Start(time.Millisecond)
	// Double start must be a no-op.
	m.Start(time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	m.Stop()

	if len(m.History()) == 0 {
		t.Fatalf("expected sampled history after running monitor")
	}
}

func TestHistoryBounded(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	m := NewMonitor(dev)
	for i := 0; i < defaultHistorySize+20; i++ {
		snap, _ := m.Current()
		m.appendHistory(snap)
	}
	if got := len(m.History()); got != defaultHistorySize {
		t.Fatalf("expected history capped at %d, got %d", defaultHistorySize, got)
	}
}

func TestSummaryTracksPeak(t *testing.T) {
	dev := NewFake(1000 * bytesPerMB)
	m := NewMonitor(dev)
	dev.SetAllocated(400 * bytesPerMB)
	m.Current()
	dev.SetAllocated(100 * bytesPerMB)
	m.Current()

	sum := m.Summary()
	if sum.PeakMemoryMB != 400 {
		t.Fatalf("expected peak 400MB, got %v", sum.PeakMemoryMB)
	}
	if sum.CurrentMemoryMB != 100 {
		t.Fatalf("expected current 100MB, got %v", sum.CurrentMemoryMB)
	}
	if !sum.DeviceAvailable || sum.DeviceName != "fake0" {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestPercentile(t *testing.T) {
	if p := percentile(nil, 95); p != 0 {
		t.Fatalf("expected 0 for empty samples, got %v", p)
	}
	samples := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if p := percentile(samples, 50); p != 6 {
		t.Fatalf("expected p50=6, got %v", p)
	}
	if p := percentile(samples, 99); p != 10 {
		t.Fatalf("expected p99=10, got %v", p)
	}
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"segmentd/internal/device"
	"segmentd/internal/registry"
	"segmentd/pkg/types"
)

func newTestService(t *testing.T, cfg Config) (*Service, *device.Fake) {
	t.Helper()
	r := registry.New()
	m := types.Model{
		Name:             "hrnet",
		Family:           "hrnet",
		MaxBatchSize:     4,
		OptimalBatchSize: 2,
		InputShape:       []int{2, 2},
		OutputShape:      []int{2, 2},
	}
	// Positive logits map to 1 under any sane threshold.
	if err := r.Register(m, constForward(5), nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	dev := device.NewFake(1 << 30)
	svc := NewService(cfg, r, dev, zerolog.Nop())
	svc.Start()
	t.Cleanup(func() { svc.Shutdown(false, 0) })
	return svc, dev
}

func TestServiceInfer(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 2, DefaultModel: "hrnet"})

	resp, err := svc.Infer(context.Background(), types.SegmentRequest{
		Model: "hrnet",
		Input: singleInput(),
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if resp.Model != "hrnet" {
		t.Fatalf("model = %q", resp.Model)
	}
	if len(resp.Mask) != 4 {
		t.Fatalf("mask length = %d, want 4", len(resp.Mask))
	}
	for i, v := range resp.Mask {
		if v != 1 {
			t.Fatalf("mask[%d] = %d, want 1 for positive logits", i, v)
		}
	}
	if resp.BatchSize < 1 {
		t.Fatalf("batch size = %d", resp.BatchSize)
	}
	if resp.DurationMs <= 0 {
		t.Fatalf("duration = %f", resp.DurationMs)
	}
}

func TestServiceInferDefaultModel(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 2, DefaultModel: "hrnet"})
	resp, err := svc.Infer(context.Background(), types.SegmentRequest{Input: singleInput()})
	if err != nil {
		t.Fatalf("Infer with default model: %v", err)
	}
	if resp.Model != "hrnet" {
		t.Fatalf("model = %q, want default", resp.Model)
	}
}

func TestServiceInferUnknownModel(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 2})
	_, err := svc.Infer(context.Background(), types.SegmentRequest{
		Model: "nope",
		Input: singleInput(),
	})
	if !IsModelNotFound(err) {
		t.Fatalf("err = %v, want model not found", err)
	}
}

func TestServiceInferShapeMismatch(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 2})
	_, err := svc.Infer(context.Background(), types.SegmentRequest{
		Model: "hrnet",
		Input: types.Tensor{Shape: []int{3, 3}, Data: make([]float32, 9)},
	})
	if !IsExecution(err) {
		t.Fatalf("err = %v, want execution error for shape mismatch", err)
	}
}

func TestServiceInferInvalidTensor(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 2})
	_, err := svc.Infer(context.Background(), types.SegmentRequest{
		Model: "hrnet",
		Input: types.Tensor{Shape: []int{2, 2}, Data: []float32{1}},
	})
	if !IsExecution(err) {
		t.Fatalf("err = %v, want execution error for short data", err)
	}
}

func TestServiceInferTimeoutBookkeeping(t *testing.T) {
	r := registry.New()
	m := types.Model{
		Name:             "hrnet",
		MaxBatchSize:     4,
		OptimalBatchSize: 2,
		InputShape:       []int{2, 2},
		OutputShape:      []int{2, 2},
	}
	release := make(chan struct{})
	slow := func(_ context.Context, input types.Tensor, _ device.Stream) (types.Tensor, error) {
		<-release
		return constForward(5)(context.Background(), input, nil)
	}
	if err := r.Register(m, slow, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	dev := device.NewFake(1 << 30)
	svc := NewService(Config{Workers: 1, DefaultModel: "hrnet"}, r, dev, zerolog.Nop())
	svc.Start()
	t.Cleanup(func() {
		close(release)
		svc.Shutdown(false, 0)
	})

	// A per-request deadline that fires while the batch is still on the
	// device must be counted the same way as one the executor detects.
	_, err := svc.Infer(context.Background(), types.SegmentRequest{
		Model:     "hrnet",
		Input:     singleInput(),
		TimeoutMs: 30,
	})
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
	mt := svc.Metrics()
	if mt.TimeoutCount != 1 {
		t.Fatalf("timeout count = %d, want 1", mt.TimeoutCount)
	}
	if mt.TimeoutRate == 0 {
		t.Fatalf("timeout rate = 0 after a timed out request")
	}
	if dev.ReleaseCalls.Load() == 0 {
		t.Fatalf("cache not released after deadline")
	}
}

func TestServiceStatusAndMetrics(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 3, DefaultModel: "hrnet"})
	if _, err := svc.Infer(context.Background(), types.SegmentRequest{Input: singleInput()}); err != nil {
		t.Fatalf("Infer: %v", err)
	}

	st := svc.Status()
	if st.State != "ready" {
		t.Fatalf("state = %q", st.State)
	}
	if st.Workers != 3 {
		t.Fatalf("workers = %d, want 3", st.Workers)
	}
	if len(st.Queues) != 1 || st.Queues[0].Model != "hrnet" {
		t.Fatalf("queues = %+v", st.Queues)
	}
	if st.Queues[0].Capacity != defaultMaxQueueSize {
		t.Fatalf("capacity = %d", st.Queues[0].Capacity)
	}
	if st.ServerTimeUnix == 0 {
		t.Fatalf("server time missing")
	}

	mt := svc.Metrics()
	if mt.TotalInferences != 1 {
		t.Fatalf("total inferences = %d, want 1", mt.TotalInferences)
	}
	if mt.TimeoutRate != 0 || mt.FailureRate != 0 {
		t.Fatalf("rates = %f/%f, want 0/0", mt.TimeoutRate, mt.FailureRate)
	}
	stats, ok := mt.PerModel["hrnet"]
	if !ok {
		t.Fatalf("per-model stats missing")
	}
	if stats.TotalBatches != 1 || stats.TotalRequests != 1 {
		t.Fatalf("batch stats = %+v", stats)
	}
}

func TestServiceWarmup(t *testing.T) {
	svc, _ := newTestService(t, Config{Workers: 2})
	svc.Warmup(context.Background())
	if got := svc.Metrics().TotalInferences; got != 1 {
		t.Fatalf("warmup ran %d inferences, want 1", got)
	}
}

func TestServiceShutdown(t *testing.T) {
	svc, dev := newTestService(t, Config{Workers: 2, StreamIsolation: true})
	if !svc.Ready() {
		t.Fatalf("service not ready before shutdown")
	}

	svc.Shutdown(true, time.Second)
	if svc.Ready() {
		t.Fatalf("service still ready after shutdown")
	}
	if st := svc.Status(); st.State != "shutdown" {
		t.Fatalf("state = %q after shutdown", st.State)
	}
	if _, err := svc.Infer(context.Background(), types.SegmentRequest{Model: "hrnet", Input: singleInput()}); !IsShutdown(err) {
		t.Fatalf("err = %v, want shutdown", err)
	}
	if dev.ReleaseCalls.Load() == 0 {
		t.Fatalf("device cache not released on shutdown")
	}
	for _, s := range dev.Streams() {
		if !s.Closed.Load() {
			t.Fatalf("stream %d not closed on shutdown", s.ID())
		}
	}
	// Second shutdown is a no-op.
	svc.Shutdown(true, time.Second)
}

package types

// SegmentRequest represents a segmentation inference request payload.
type SegmentRequest struct {
	// Optional model name. If empty, the server default is used.
	// example: hrnet
	Model string `json:"model,omitempty" example:"hrnet"`
	// Input tensor (CHW), already preprocessed to the model's input shape.
	Input Tensor `json:"input"`
	// Probability threshold applied to the output mask.
	// example: 0.5
	Threshold float64 `json:"threshold,omitempty" example:"0.5"`
	// Per-request timeout in milliseconds; 0 uses the server default.
	// example: 2000
	TimeoutMs int `json:"timeout_ms,omitempty" example:"2000"`
}

// SegmentResponse is returned by POST /segment.
type SegmentResponse struct {
	// Model that produced the mask.
	// example: hrnet
	Model string `json:"model" example:"hrnet"`
	// Binary mask (0/1) flattened in row-major order.
	Mask []uint8 `json:"mask"`
	// Mask shape (HW).
	Shape []int `json:"shape"`
	// Size of the device batch this request rode in.
	// example: 4
	BatchSize int `json:"batch_size" example:"4"`
	// Wall-clock time spent inside the scheduler, in milliseconds.
	// example: 38.5
	DurationMs float64 `json:"duration_ms" example:"38.5"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of registered models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// QueueStatus summarizes one model's batch queue for /status.
type QueueStatus struct {
	// Model the queue feeds.
	// example: hrnet
	Model string `json:"model" example:"hrnet"`
	// Requests currently waiting in the queue.
	// example: 3
	Depth int `json:"depth" example:"3"`
	// Queue capacity before submissions are rejected.
	// example: 100
	Capacity int `json:"capacity" example:"100"`
	// Batch size the queue will use for the next batch (shrinks under pressure).
	// example: 8
	NextBatchSize int `json:"next_batch_size" example:"8"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall scheduler state (e.g., ready, shutdown).
	// example: ready
	State string `json:"state" example:"ready"`
	// Per-model batch queues.
	Queues []QueueStatus `json:"queues"`
	// Number of in-flight inference sessions.
	// example: 2
	ActiveSessions int `json:"active_sessions" example:"2"`
	// Configured worker pool size.
	// example: 4
	Workers int `json:"workers" example:"4"`
	// Whether execution-stream isolation is active.
	// example: true
	StreamIsolation bool `json:"stream_isolation" example:"true"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Optional top-level error message.
	Error string `json:"error,omitempty"`
}

// DeviceSummary reports device memory and utilization aggregates.
type DeviceSummary struct {
	// Whether an accelerator device is present.
	// example: true
	DeviceAvailable bool `json:"device_available" example:"true"`
	// Device name, or "host" when sampling process memory.
	// example: NVIDIA RTX A4000
	DeviceName string `json:"device_name" example:"NVIDIA RTX A4000"`
	// Total device memory in MB.
	// example: 16384
	TotalMemoryMB float64 `json:"total_memory_mb" example:"16384"`
	// Most recent allocated memory sample in MB.
	// example: 2048.5
	CurrentMemoryMB float64 `json:"current_memory_mb" example:"2048.5"`
	// Peak allocated memory observed in MB.
	// example: 4096.2
	PeakMemoryMB float64 `json:"peak_memory_mb" example:"4096.2"`
	// Average allocated memory over the history window in MB.
	AvgMemoryMB float64 `json:"avg_memory_mb"`
	// Average utilization over the history window in percent.
	AvgUtilizationPercent float64 `json:"avg_utilization_percent"`
}

// ModelBatchStats reports per-model batch processing aggregates.
type ModelBatchStats struct {
	// Total batches recorded.
	// example: 120
	TotalBatches int64 `json:"total_batches" example:"120"`
	// Total requests carried by those batches.
	// example: 860
	TotalRequests int64 `json:"total_requests" example:"860"`
	// Fraction of batches that succeeded, in percent.
	// example: 99.2
	SuccessRatePercent float64 `json:"success_rate_percent" example:"99.2"`
	// Average throughput over successful batches, images per second.
	// example: 42.7
	AvgThroughputImgsSec float64 `json:"avg_throughput_imgs_sec" example:"42.7"`
	// Latency percentiles per image, in milliseconds.
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

// MetricsResponse is the JSON metrics snapshot returned by GET /metrics/json.
type MetricsResponse struct {
	// Total completed inference calls.
	// example: 1024
	TotalInferences int64 `json:"total_inferences" example:"1024"`
	// Calls that exceeded their deadline.
	// example: 3
	TimeoutCount int64 `json:"timeout_count" example:"3"`
	// Calls that failed for non-timeout reasons.
	// example: 1
	FailureCount int64 `json:"failure_count" example:"1"`
	// TimeoutCount / max(1, TotalInferences).
	TimeoutRate float64 `json:"timeout_rate"`
	// FailureCount / max(1, TotalInferences).
	FailureRate float64 `json:"failure_rate"`
	// Sessions currently registered.
	// example: 2
	ActiveSessions int `json:"active_sessions" example:"2"`
	// Device memory and utilization aggregates.
	Device DeviceSummary `json:"device"`
	// Per-model batch statistics.
	PerModel map[string]ModelBatchStats `json:"per_model"`
}

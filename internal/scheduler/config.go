package scheduler

import "time"

// Defaults applied when corresponding Config fields are unset.
const (
	defaultWorkers        = 2
	defaultTimeout        = 60 * time.Second
	defaultMaxQueueDelay  = 5 * time.Millisecond
	defaultMaxQueueSize   = 100
	defaultIdlePoll       = time.Millisecond
	defaultSampleInterval = time.Second

	// Memory usage percent at which emergency cleanup runs.
	emergencyThreshold = 95.0
	// Memory usage percent that must hold after cleanup to proceed.
	safetyThreshold = 90.0
	// Memory usage percent above which batch sizes shrink.
	pressureThreshold = 85.0
	// Successful batches at a reduced size before the queue grows it again.
	recoveryStreak = 10
)

// Config encapsulates all tunables for Service construction.
type Config struct {
	// Workers bounds concurrent model calls.
	Workers int
	// DefaultTimeout applies when a request carries none.
	DefaultTimeout time.Duration
	// MemoryLimitBytes is the hard pre-flight memory ceiling; 0 disables.
	MemoryLimitBytes uint64
	// StreamIsolation pre-creates one execution stream per worker.
	StreamIsolation bool
	// Monitoring enables background device sampling and memory bookkeeping.
	Monitoring bool
	// MaxQueueDelay bounds how long the oldest queued request may wait
	// before a partial batch is released.
	MaxQueueDelay time.Duration
	// MaxQueueSize bounds each model's queue; submissions beyond it are
	// rejected, not silently dropped.
	MaxQueueSize int
	// SampleInterval is the monitor's background sampling period.
	SampleInterval time.Duration
	// DefaultModel is used when a request names none.
	DefaultModel string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.MaxQueueDelay <= 0 {
		c.MaxQueueDelay = defaultMaxQueueDelay
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaultMaxQueueSize
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = defaultSampleInterval
	}
	return c
}

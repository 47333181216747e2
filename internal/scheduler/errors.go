package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// timeoutError signals a per-request deadline exceeded. The device call may
// still be running when this is returned; see Executor timeout policy.
type timeoutError struct {
	model     string
	timeout   time.Duration
	inputSize int
}

func (e timeoutError) Error() string {
	return fmt.Sprintf("model %q inference timed out after %s for input of %d elements; consider a simpler model or a larger timeout", e.model, e.timeout, e.inputSize)
}

// ErrTimeout constructs a timeoutError.
func ErrTimeout(model string, timeout time.Duration, inputSize int) error {
	return timeoutError{model: model, timeout: timeout, inputSize: inputSize}
}

// IsTimeout reports whether err indicates a deadline exceeded (return 408).
func IsTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te)
}

// resourceError signals a memory/CPU limit breach, before or after a call.
type resourceError struct {
	currentMB float64
	limitMB   float64
	msg       string
}

func (e resourceError) Error() string {
	if e.limitMB > 0 {
		return fmt.Sprintf("%s: memory usage %.2fMB exceeds limit %.2fMB", e.msg, e.currentMB, e.limitMB)
	}
	return fmt.Sprintf("%s: memory usage %.2fMB", e.msg, e.currentMB)
}

// ErrResourceExhausted constructs a resourceError.
func ErrResourceExhausted(currentMB, limitMB float64, msg string) error {
	return resourceError{currentMB: currentMB, limitMB: limitMB, msg: msg}
}

// IsResourceExhausted reports whether err indicates a resource limit breach
// (return 507).
func IsResourceExhausted(err error) bool {
	var re resourceError
	return errors.As(err, &re)
}

// executionError wraps any other failure escaping the model callable.
type executionError struct {
	model string
	err   error
}

func (e executionError) Error() string {
	return fmt.Sprintf("inference failed for model %q: %v", e.model, e.err)
}

func (e executionError) Unwrap() error { return e.err }

// IsExecution reports whether err is a wrapped model-callable failure.
func IsExecution(err error) bool {
	var ee executionError
	return errors.As(err, &ee)
}

// queueFullError signals batch queue capacity reached for 429 mapping.
// Callers must treat it as backpressure, not a bug.
type queueFullError struct{ model string }

func (e queueFullError) Error() string { return "queue full for model: " + e.model }

// ErrQueueFull constructs a queueFullError.
func ErrQueueFull(model string) error { return queueFullError{model: model} }

// IsQueueFull reports whether err indicates backpressure (return 429).
func IsQueueFull(err error) bool {
	var qe queueFullError
	return errors.As(err, &qe)
}

// modelNotFoundError signals a request for an unregistered model.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether err indicates a missing model name.
func IsModelNotFound(err error) bool {
	var me modelNotFoundError
	return errors.As(err, &me)
}

// errShutdown is returned for work submitted after Shutdown began.
var errShutdown = errors.New("scheduler is shut down")

// ErrShutdown returns the sentinel shutdown error.
func ErrShutdown() error { return errShutdown }

// IsShutdown reports whether err indicates the scheduler is shut down.
func IsShutdown(err error) bool { return errors.Is(err, errShutdown) }

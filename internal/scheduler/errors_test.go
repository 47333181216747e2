package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
	}{
		{ErrTimeout("hrnet", time.Second, 4), IsTimeout},
		{ErrResourceExhausted(4096, 2048, "over limit"), IsResourceExhausted},
		{executionError{model: "hrnet", err: errors.New("boom")}, IsExecution},
		{ErrQueueFull("hrnet"), IsQueueFull},
		{ErrModelNotFound("missing"), IsModelNotFound},
		{ErrShutdown(), IsShutdown},
	}
	for i, c := range cases {
		if !c.pred(c.err) {
			t.Fatalf("case %d: predicate rejected its own error %v", i, c.err)
		}
		// Predicates see through wrapping.
		if !c.pred(fmt.Errorf("outer: %w", c.err)) {
			t.Fatalf("case %d: predicate missed wrapped error", i)
		}
	}
	if IsTimeout(ErrQueueFull("x")) || IsQueueFull(ErrTimeout("x", 0, 0)) {
		t.Fatalf("predicates cross-matched")
	}
}

func TestTimeoutErrorGuidance(t *testing.T) {
	msg := ErrTimeout("hrnet", 2*time.Second, 12).Error()
	if !strings.Contains(msg, "hrnet") || !strings.Contains(msg, "simpler model") {
		t.Fatalf("timeout message lacks guidance: %q", msg)
	}
}

func TestExecutionErrorUnwraps(t *testing.T) {
	cause := errors.New("bad kernel")
	err := executionError{model: "hrnet", err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("Unwrap lost the cause")
	}
}

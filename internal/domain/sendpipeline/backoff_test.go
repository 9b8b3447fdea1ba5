package sendpipeline

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBaseDelay: 100 * time.Millisecond, RetryMaxDelay: time.Second}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second,
	}
	for i, w := range want {
		attempt := uint32(i + 1)
		got := backoffDelay(attempt, cfg)
		if got != w {
			t.Fatalf("attempt %d: got %s, want %s", attempt, got, w)
		}
	}
}

func TestBackoffDelayMonotonicNonDecreasing(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBaseDelay: 50 * time.Millisecond, RetryMaxDelay: 5 * time.Second}

	prev := time.Duration(0)
	for attempt := uint32(1); attempt <= 20; attempt++ {
		d := backoffDelay(attempt, cfg)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %s < %s", attempt, d, prev)
		}
		if d > cfg.RetryMaxDelay {
			t.Fatalf("backoff exceeded cap at attempt %d: %s", attempt, d)
		}
		prev = d
	}
}

func TestBackoffDelayZeroConfigYieldsZero(t *testing.T) {
	t.Parallel()
	if d := backoffDelay(3, Config{}); d != 0 {
		t.Fatalf("expected zero delay for zero config, got %s", d)
	}
}

func TestClassifyFloodWaitZeroDelayIsNonRetryable(t *testing.T) {
	t.Parallel()
	d := classify(FloodWaitError{Delay: 0}, 1, DefaultConfig())
	if d.retry {
		t.Fatalf("expected a zero-delay flood wait to be treated as non-retryable, got %+v", d)
	}
}

func TestClassifyRPCErrorBelow500IsNonRetryable(t *testing.T) {
	t.Parallel()
	d := classify(RPCError{Code: 400, Name: "BAD_REQUEST"}, 1, DefaultConfig())
	if d.retry {
		t.Fatalf("expected a 4xx rpc error to be non-retryable, got %+v", d)
	}
}

func TestClassifyRPCErrorAbove500IsRetryable(t *testing.T) {
	t.Parallel()
	d := classify(RPCError{Code: 500, Name: "INTERNAL"}, 1, DefaultConfig())
	if !d.retry {
		t.Fatalf("expected a 5xx rpc error to be retryable, got %+v", d)
	}
}

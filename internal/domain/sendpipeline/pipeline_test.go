package sendpipeline_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telegram-userbot/internal/domain/sendpipeline"
)

// fakeTransport returns a scripted sequence of errors/results per call,
// repeating the last entry once exhausted.
type fakeTransport struct {
	mu      sync.Mutex
	calls   int32
	results []sendpipeline.SendResult
	errs    []error
}

func (f *fakeTransport) Execute(ctx context.Context, req sendpipeline.SendRequest) (sendpipeline.SendResult, error) {
	idx := int(atomic.AddInt32(&f.calls, 1)) - 1
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx >= len(f.errs) {
		idx = len(f.errs) - 1
	}
	return f.results[idx], f.errs[idx]
}

func waitForStatus(t *testing.T, ticket *sendpipeline.SendTicket, kind sendpipeline.SendStatusKind, timeout time.Duration) sendpipeline.SendStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	status := ticket.Status()
	for status.Kind != kind {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for status kind %d, last seen %+v", kind, status)
		}
		ctx, cancel := context.WithTimeout(context.Background(), remaining)
		next, ok := ticket.WaitChange(ctx)
		cancel()
		if !ok {
			t.Fatalf("wait canceled before reaching status kind %d", kind)
		}
		status = next
	}
	return status
}

func TestSendRetriesOnFloodWaitThenSucceeds(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{
		errs:    []error{sendpipeline.FloodWaitError{Delay: 20 * time.Millisecond}, nil},
		results: []sendpipeline.SendResult{{}, {Kind: sendpipeline.KindSendText, MessageID: 42}},
	}
	cfg := sendpipeline.DefaultConfig()
	p := sendpipeline.New(transport, cfg)
	defer p.Shutdown()

	ticket, err := p.Enqueue(sendpipeline.SendRequest{Kind: sendpipeline.KindSendText, Text: "hi"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status := waitForStatus(t, ticket, sendpipeline.StatusSent, 2*time.Second)
	if status.Result == nil || status.Result.MessageID != 42 {
		t.Fatalf("expected successful send after flood-wait retry, got %+v", status)
	}
}

func TestSendFailsAfterExceedingMaxAttempts(t *testing.T) {
	t.Parallel()
	persistent := sendpipeline.TransportError{Err: errAlwaysFails}
	transport := &fakeTransport{
		errs:    []error{persistent},
		results: []sendpipeline.SendResult{{}},
	}
	maxAttempts := uint32(2)
	cfg := sendpipeline.Config{
		QueueLimit:       8,
		MaxRetryAttempts: &maxAttempts,
		RetryBaseDelay:   5 * time.Millisecond,
		RetryMaxDelay:    20 * time.Millisecond,
	}
	p := sendpipeline.New(transport, cfg)
	defer p.Shutdown()

	ticket, err := p.Enqueue(sendpipeline.SendRequest{Kind: sendpipeline.KindSendText, Text: "hi"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status := waitForStatus(t, ticket, sendpipeline.StatusFailed, 2*time.Second)
	if status.Failure == nil || status.Failure.Attempts != maxAttempts {
		t.Fatalf("expected terminal failure after %d attempts, got %+v", maxAttempts, status)
	}
	if !status.Failure.Retryable {
		t.Fatalf("expected failure marked retryable (attempts exhausted, not a hard rejection): %+v", status.Failure)
	}
}

func TestInvalidMessageIdFailsWithoutRetry(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{
		errs:    []error{sendpipeline.ErrInvalidMessageId{Field: "message_id", Value: 1 << 40}},
		results: []sendpipeline.SendResult{{}},
	}
	p := sendpipeline.New(transport, sendpipeline.DefaultConfig())
	defer p.Shutdown()

	ticket, err := p.Enqueue(sendpipeline.SendRequest{Kind: sendpipeline.KindEditText, MessageID: 1})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	status := waitForStatus(t, ticket, sendpipeline.StatusFailed, time.Second)
	if status.Failure == nil || status.Failure.Attempts != 1 || status.Failure.Retryable {
		t.Fatalf("expected immediate non-retryable failure, got %+v", status)
	}
}

func TestEnqueueRejectsWhenQueueFull(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{
		errs:    []error{sendpipeline.FloodWaitError{Delay: time.Hour}},
		results: []sendpipeline.SendResult{{}},
	}
	cfg := sendpipeline.Config{QueueLimit: 1, RetryBaseDelay: time.Millisecond, RetryMaxDelay: time.Millisecond}
	p := sendpipeline.New(transport, cfg)
	defer p.Shutdown()

	if _, err := p.Enqueue(sendpipeline.SendRequest{Kind: sendpipeline.KindSendText}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if _, err := p.Enqueue(sendpipeline.SendRequest{Kind: sendpipeline.KindSendText}); err == nil {
		t.Fatalf("expected second Enqueue to report the queue full")
	}
}

func TestEnqueueRejectsAfterShutdown(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{errs: []error{nil}, results: []sendpipeline.SendResult{{}}}
	p := sendpipeline.New(transport, sendpipeline.DefaultConfig())
	p.Shutdown()

	if _, err := p.Enqueue(sendpipeline.SendRequest{Kind: sendpipeline.KindSendText}); err == nil {
		t.Fatalf("expected Enqueue to fail once the pipeline is shut down")
	}
}

type sentinelError struct{ msg string }

func (e sentinelError) Error() string { return e.msg }

var errAlwaysFails = sentinelError{"boom"}

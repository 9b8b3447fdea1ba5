package sendtransport_test

import (
	"context"
	"testing"

	"telegram-userbot/internal/domain/dialogid"
	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/sendpipeline"
	"telegram-userbot/internal/telegram/sendtransport"

	"github.com/gotd/td/tg"
)

type fakeResolver struct {
	peer tg.InputPeerClass
	err  error
}

func (f *fakeResolver) ResolveInputPeer(kind dialogid.PeerKind, rawID int64) (tg.InputPeerClass, error) {
	return f.peer, f.err
}

func TestExecuteSendTextRejectsOversizedReplyTo(t *testing.T) {
	t.Parallel()
	resolver := &fakeResolver{peer: &tg.InputPeerUser{UserID: 7}}
	transport := sendtransport.New(nil, resolver)

	tooLarge := events.MessageId(1 << 40)
	_, err := transport.Execute(context.Background(), sendpipeline.SendRequest{
		Kind:    sendpipeline.KindSendText,
		PeerID:  events.ChatId(7),
		Text:    "hi",
		ReplyTo: &tooLarge,
	})

	invalid, ok := err.(sendpipeline.ErrInvalidMessageId)
	if !ok {
		t.Fatalf("expected ErrInvalidMessageId, got %#v", err)
	}
	if invalid.Field != "reply_to" {
		t.Fatalf("expected field reply_to, got %q", invalid.Field)
	}
}

func TestExecuteEditRejectsOversizedMessageID(t *testing.T) {
	t.Parallel()
	resolver := &fakeResolver{peer: &tg.InputPeerUser{UserID: 7}}
	transport := sendtransport.New(nil, resolver)

	_, err := transport.Execute(context.Background(), sendpipeline.SendRequest{
		Kind:      sendpipeline.KindEditText,
		PeerID:    events.ChatId(7),
		MessageID: events.MessageId(1 << 40),
		Text:      "edited",
	})

	if _, ok := err.(sendpipeline.ErrInvalidMessageId); !ok {
		t.Fatalf("expected ErrInvalidMessageId, got %#v", err)
	}
}

func TestExecutePropagatesPeerResolutionFailure(t *testing.T) {
	t.Parallel()
	resolver := &fakeResolver{err: errResolveFailed}
	transport := sendtransport.New(nil, resolver)

	_, err := transport.Execute(context.Background(), sendpipeline.SendRequest{
		Kind:   sendpipeline.KindSendText,
		PeerID: events.ChatId(7),
		Text:   "hi",
	})

	transportErr, ok := err.(sendpipeline.TransportError)
	if !ok {
		t.Fatalf("expected TransportError wrapping the resolver failure, got %#v", err)
	}
	if transportErr.Unwrap() != errResolveFailed {
		t.Fatalf("expected wrapped error to be errResolveFailed, got %v", transportErr.Unwrap())
	}
}

type sentinelError struct{ msg string }

func (e sentinelError) Error() string { return e.msg }

var errResolveFailed = sentinelError{"peer not found"}

// TestExecuteRespectsCanceledContextBeforeResolvingPeer verifies the
// rate limiter is checked before peer resolution: a canceled context fails
// fast on the limiter wait rather than reaching the resolver at all.
func TestExecuteRespectsCanceledContextBeforeResolvingPeer(t *testing.T) {
	t.Parallel()
	resolver := &countingResolver{peer: &tg.InputPeerUser{UserID: 7}}
	transport := sendtransport.New(nil, resolver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transport.Execute(ctx, sendpipeline.SendRequest{
		Kind:   sendpipeline.KindSendText,
		PeerID: events.ChatId(7),
		Text:   "hi",
	})

	if err == nil {
		t.Fatal("expected an error from a canceled context")
	}
	if resolver.calls != 0 {
		t.Fatalf("expected peer resolution to be skipped, resolver was called %d times", resolver.calls)
	}
}

type countingResolver struct {
	peer  tg.InputPeerClass
	calls int
}

func (r *countingResolver) ResolveInputPeer(kind dialogid.PeerKind, rawID int64) (tg.InputPeerClass, error) {
	r.calls++
	return r.peer, nil
}

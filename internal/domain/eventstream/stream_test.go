package eventstream_test

import (
	"context"
	"testing"

	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/eventstream"
)

func newMessageEvent(id int) events.DomainEvent {
	return events.DomainEvent{
		Kind: events.KindMessageNew,
		MessageNew: &events.MessageNew{
			ChatID:    1,
			MessageID: events.MessageId(id),
		},
	}
}

func TestStreamDeliversInOrder(t *testing.T) {
	t.Parallel()
	s := eventstream.New(8)
	defer s.Stop()
	r := s.Subscribe()
	defer r.Close()

	s.Publish(newMessageEvent(1))
	s.Publish(newMessageEvent(2))

	ev, lagged, ok := r.Recv(context.Background())
	if !ok || lagged != 0 || ev.MessageNew.MessageID != 1 {
		t.Fatalf("first recv = %+v, %d, %v", ev, lagged, ok)
	}
	ev, lagged, ok = r.Recv(context.Background())
	if !ok || lagged != 0 || ev.MessageNew.MessageID != 2 {
		t.Fatalf("second recv = %+v, %d, %v", ev, lagged, ok)
	}
}

func TestStreamSignalsLagExactlyOnce(t *testing.T) {
	t.Parallel()
	s := eventstream.New(2)
	defer s.Stop()
	r := s.Subscribe()
	defer r.Close()

	for i := 1; i <= 5; i++ {
		s.Publish(newMessageEvent(i))
	}

	_, lagged, ok := r.Recv(context.Background())
	if !ok || lagged == 0 {
		t.Fatalf("expected a lagged signal, got lagged=%d ok=%v", lagged, ok)
	}
	// Resumes with the oldest still-retained event (msg 4, since buffer=2
	// retained the last two of five published: 4 and 5).
	ev, lagged2, ok := r.Recv(context.Background())
	if !ok || lagged2 != 0 || ev.MessageNew.MessageID != 4 {
		t.Fatalf("resume recv = %+v, %d, %v", ev, lagged2, ok)
	}
}

func TestStreamMultipleSubscribersIndependentLag(t *testing.T) {
	t.Parallel()
	s := eventstream.New(4)
	defer s.Stop()
	fast := s.Subscribe()
	defer fast.Close()
	slow := s.Subscribe()
	defer slow.Close()

	s.Publish(newMessageEvent(1))

	ev, _, ok := fast.Recv(context.Background())
	if !ok || ev.MessageNew.MessageID != 1 {
		t.Fatalf("fast subscriber missed event: %+v %v", ev, ok)
	}
	// slow subscriber hasn't drained yet but still holds its own copy.
	ev, lagged, ok := slow.Recv(context.Background())
	if !ok || lagged != 0 || ev.MessageNew.MessageID != 1 {
		t.Fatalf("slow subscriber = %+v %d %v", ev, lagged, ok)
	}
}

func TestStreamStopClosesReceivers(t *testing.T) {
	t.Parallel()
	s := eventstream.New(4)
	r := s.Subscribe()
	s.Stop()

	_, _, ok := r.Recv(context.Background())
	if ok {
		t.Fatalf("expected Recv to report closed after Stop")
	}
}

func TestStreamRecvRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	s := eventstream.New(4)
	defer s.Stop()
	r := s.Subscribe()
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, ok := r.Recv(ctx)
	if ok {
		t.Fatalf("expected Recv to return immediately on canceled context")
	}
}

// Package eventstream broadcasts domain events to many subscribers with a
// bounded per-subscriber buffer and an explicit lag signal, modeled after the
// generational wait-channel idiom the teacher uses for online/offline state
// (internal/infra/telegram/connection/con_manager.go) but generalized from a
// single boolean flip to a queued sequence of values.
package eventstream

import (
	"context"
	"sync"

	"telegram-userbot/internal/domain/events"
)

// Stream is a single-producer, multi-consumer broadcaster of domain events.
type Stream struct {
	buffer int

	mu          sync.Mutex
	subscribers map[*Receiver]struct{}
	stopOnce    sync.Once
	done        chan struct{}
}

// New creates a Stream whose subscribers buffer up to `buffer` events before
// being considered lagged. buffer must be > 0.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 1
	}
	return &Stream{
		buffer:      buffer,
		subscribers: make(map[*Receiver]struct{}),
		done:        make(chan struct{}),
	}
}

// Publish fans an event out to every live subscriber. It never blocks: a
// subscriber whose buffer is full is marked lagged and the oldest buffered
// event is dropped to make room, so the producer's throughput is never
// limited by a slow reader.
func (s *Stream) Publish(event events.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for r := range s.subscribers {
		r.deliver(event)
	}
}

// Subscribe registers a new receiver. The returned Receiver must eventually
// be closed via Receiver.Close to free resources.
func (s *Stream) Subscribe() *Receiver {
	r := &Receiver{
		stream: s,
	}
	r.cond = sync.NewCond(&r.mu)
	r.queue = make([]events.DomainEvent, 0, s.buffer)

	s.mu.Lock()
	s.subscribers[r] = struct{}{}
	s.mu.Unlock()
	return r
}

// Stop marks the stream closed; once their buffered events are drained,
// live receivers get ok == false from Recv. Idempotent.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		subs := make([]*Receiver, 0, len(s.subscribers))
		for r := range s.subscribers {
			subs = append(subs, r)
		}
		s.mu.Unlock()
		for _, r := range subs {
			r.closeByStream()
		}
	})
}

func (s *Stream) unsubscribe(r *Receiver) {
	s.mu.Lock()
	delete(s.subscribers, r)
	s.mu.Unlock()
}

// Receiver is one subscriber's lagged-safe view onto the Stream.
type Receiver struct {
	stream *Stream

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []events.DomainEvent
	lagged int
	closed bool
}

// deliver appends event to the receiver's buffer, dropping the oldest
// buffered event and incrementing the lag counter if the buffer is full.
func (r *Receiver) deliver(event events.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if len(r.queue) >= r.stream.buffer {
		r.queue = r.queue[1:]
		r.lagged++
	}
	r.queue = append(r.queue, event)
	r.cond.Signal()
}

// Recv blocks until an event is available, the stream is stopped, or ctx is
// canceled. If events were dropped since the last Recv, the first call after
// the gap returns (zero DomainEvent, lagged, true) instead of an event;
// `lagged` reports exactly how many were skipped. Subsequent calls resume
// with the oldest still-buffered event.
func (r *Receiver) Recv(ctx context.Context) (event events.DomainEvent, lagged int, ok bool) {
	// Translate ctx cancellation into a cond broadcast via a watcher
	// goroutine started for this call and stopped when it returns.
	if ctx != nil && ctx.Done() != nil {
		stopWatch := make(chan struct{})
		defer close(stopWatch)
		go func() {
			select {
			case <-ctx.Done():
				r.mu.Lock()
				r.cond.Broadcast()
				r.mu.Unlock()
			case <-stopWatch:
			}
		}()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.lagged > 0 {
			n := r.lagged
			r.lagged = 0
			return events.DomainEvent{}, n, true
		}
		if len(r.queue) > 0 {
			event = r.queue[0]
			r.queue = r.queue[1:]
			return event, 0, true
		}
		if r.closed {
			return events.DomainEvent{}, 0, false
		}
		if ctx != nil {
			select {
			case <-ctx.Done():
				return events.DomainEvent{}, 0, false
			default:
			}
		}
		r.cond.Wait()
	}
}

// closeByStream is invoked by Stream.Stop to mark this receiver closed.
func (r *Receiver) closeByStream() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Close unsubscribes this receiver from the stream. Safe to call more than
// once.
func (r *Receiver) Close() {
	r.stream.unsubscribe(r)
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

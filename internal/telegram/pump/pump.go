// Package pump drains raw Telegram updates into a bounded channel so the
// event mapper can consume them independently of the gotd/td dispatch
// goroutine. gotd/td delivers updates via push-style callback registration
// rather than a pull-style "next update" call, so this component adapts that
// push interface into the pull shape the rest of the engine expects: it owns
// the channel, and the registered callbacks below plus ReportError are its
// only producers.
//
// Grounded on the teacher's internal/domain/updates/handlers.go dispatcher
// registration (OnNewMessage / OnEditMessage / ...) and the goroutine
// start/stop bookkeeping in internal/app/runner.go.
package pump

import (
	"context"
	"sync"

	"telegram-userbot/internal/infra/logger"

	"github.com/gotd/td/tg"
)

// Event is the two-variant outcome the pump forwards: either a raw update or
// a terminal transport error. Exactly one field is non-zero.
type Event struct {
	Update tg.UpdateClass
	Err    error
}

// Pump owns the bounded channel and the stop signal. Its zero value is not
// usable; construct with New.
type Pump struct {
	events chan Event

	stopOnce sync.Once
	stopCh   chan struct{}
	errOnce  sync.Once
}

// New creates a Pump whose output channel has the given capacity.
func New(bufferSize int) *Pump {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Pump{
		events: make(chan Event, bufferSize),
		stopCh: make(chan struct{}),
	}
}

// Events returns the channel downstream consumers (the event mapper) read
// from. It is closed once the pump stops.
func (p *Pump) Events() <-chan Event {
	return p.events
}

// Register attaches this pump's producers to a tg.UpdateDispatcher. Call
// once per dispatcher, before the client starts running.
func (p *Pump) Register(dispatcher *tg.UpdateDispatcher) {
	dispatcher.OnNewMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateNewMessage) error {
		p.push(u)
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateNewChannelMessage) error {
		p.push(u)
		return nil
	})
	dispatcher.OnEditMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateEditMessage) error {
		p.push(u)
		return nil
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateEditChannelMessage) error {
		p.push(u)
		return nil
	})
	dispatcher.OnReadHistoryOutbox(func(ctx context.Context, _ tg.Entities, u *tg.UpdateReadHistoryOutbox) error {
		p.push(u)
		return nil
	})
	dispatcher.OnUserTyping(func(ctx context.Context, _ tg.Entities, u *tg.UpdateUserTyping) error {
		p.push(u)
		return nil
	})
}

// push forwards one raw update, blocking only until the pump is stopped.
func (p *Pump) push(u tg.UpdateClass) {
	select {
	case p.events <- Event{Update: u}:
	case <-p.stopCh:
	}
}

// ReportError forwards one terminal transport error and then stops the
// pump, matching the spec: "on a transport error it emits one Error and
// then terminates". Safe to call more than once; only the first call is
// forwarded.
func (p *Pump) ReportError(err error) {
	p.errOnce.Do(func() {
		select {
		case p.events <- Event{Err: err}:
		case <-p.stopCh:
			return
		}
		logger.Warnf("update pump: transport error, stopping: %v", err)
		p.Stop()
	})
}

// Stop is idempotent: it signals producers to stop blocking and closes the
// output channel. It does not await external goroutines since Register's
// callbacks return immediately once unblocked; callers that also run a
// reconnect loop around the transport must stop that loop separately.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		close(p.events)
	})
}

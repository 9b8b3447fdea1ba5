package events

import (
	"context"
	"sync"

	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/telegram/pump"
)

// EventSink receives mapped domain events. eventstream.Stream satisfies
// this.
type EventSink interface {
	Publish(DomainEvent)
}

// Driver consumes a pump's raw update channel, maps each update through
// Mapper, and publishes the result to a sink. It is the glue between C1 and
// C3 described in the system overview's data-flow line.
type Driver struct {
	mapper *Mapper
	sink   EventSink

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewDriver wires a Mapper and a sink together.
func NewDriver(sink EventSink) *Driver {
	return &Driver{
		mapper: NewMapper(),
		sink:   sink,
		done:   make(chan struct{}),
	}
}

// Run drains p.Events() until the channel closes or ctx is canceled,
// mapping and publishing each update. It blocks; call it in its own
// goroutine.
func (d *Driver) Run(ctx context.Context, p *pump.Pump) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				logger.Warnf("event driver: pump reported terminal error: %v", ev.Err)
				return
			}
			domainEvent, mapped := d.mapper.MapUpdate(ev.Update)
			if !mapped {
				continue
			}
			d.sink.Publish(domainEvent)
		}
	}
}

// Done returns a channel closed once Run has returned.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

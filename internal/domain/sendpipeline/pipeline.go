package sendpipeline

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"telegram-userbot/internal/infra/logger"
)

// Transport исполняет один запрос против реального транспорта (C7). Сама
// очередь ничего не знает о протоколе Telegram — только об этом
// одно-методном контракте.
type Transport interface {
	Execute(ctx context.Context, request SendRequest) (SendResult, error)
}

// command — сообщение от Enqueue воркеру.
type command struct {
	id      SendId
	request SendRequest
	watch   *StatusWatch
}

// Pipeline — очередь на отправку с единственным воркером, повторами и
// ограничением числа одновременно удерживаемых заданий.
type Pipeline struct {
	cfg       Config
	transport Transport

	commands chan command
	permits  chan struct{}
	idSeq    uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New запускает воркер в фоновой горутине и возвращает управляющий хэндл.
func New(transport Transport, cfg Config) *Pipeline {
	limit := cfg.QueueLimit
	if limit <= 0 {
		limit = 1
	}
	p := &Pipeline{
		cfg:       cfg,
		transport: transport,
		commands:  make(chan command, limit),
		permits:   make(chan struct{}, limit),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue регистрирует запрос и возвращает тикет для наблюдения за
// статусом. Неблокирующе: если очередь заполнена или остановлена,
// возвращает ErrQueueFull/ErrClosed соответственно.
func (p *Pipeline) Enqueue(request SendRequest) (*SendTicket, error) {
	select {
	case <-p.stopCh:
		return nil, ErrClosed{}
	default:
	}

	select {
	case p.permits <- struct{}{}:
	default:
		return nil, ErrQueueFull{}
	}

	id := SendId(atomic.AddUint64(&p.idSeq, 1))
	watch := newStatusWatch(SendStatus{Kind: StatusQueued})

	select {
	case p.commands <- command{id: id, request: request, watch: watch}:
		return &SendTicket{ID: id, watch: watch}, nil
	case <-p.stopCh:
		<-p.permits
		return nil, ErrClosed{}
	}
}

// Shutdown останавливает воркер и дожидается его завершения.
func (p *Pipeline) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

func (p *Pipeline) run() {
	defer close(p.doneCh)

	pq := &priorityQueue{}
	heap.Init(pq)
	var sequence uint64

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		var timerC <-chan time.Time
		if pq.Len() > 0 {
			delay := time.Until((*pq)[0].nextAttempt)
			if delay < 0 {
				delay = 0
			}
			timer.Reset(delay)
			timerC = timer.C
		}

		select {
		case <-p.stopCh:
			drainStop(pq)
			return

		case cmd, ok := <-p.commands:
			stopTimer(timer)
			if !ok {
				return
			}
			sequence++
			cmd.watch.set(SendStatus{Kind: StatusQueued})
			heap.Push(pq, &queueItem{
				id:          cmd.id,
				request:     cmd.request,
				watch:       cmd.watch,
				nextAttempt: time.Now(),
				sequence:    sequence,
				releaseFn:   func() { <-p.permits },
			})

		case <-timerC:
			now := time.Now()
			for pq.Len() > 0 && !(*pq)[0].nextAttempt.After(now) {
				item := heap.Pop(pq).(*queueItem)
				p.process(item, pq, &sequence)
			}
		}
	}
}

// stopTimer останавливает и дренирует таймер так, чтобы повторный Reset в
// следующей итерации не увидел устаревший тик.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// drainStop освобождает разрешения всех элементов, всё ещё ожидающих в
// очереди на момент остановки, и помечает их как неуспешные.
func drainStop(pq *priorityQueue) {
	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queueItem)
		item.watch.set(SendStatus{
			Kind: StatusFailed,
			Failure: &SendFailure{
				Error:     "send pipeline shut down",
				Attempts:  item.attempts,
				Retryable: true,
			},
		})
		item.release()
	}
}

func (p *Pipeline) process(item *queueItem, pq *priorityQueue, sequence *uint64) {
	item.attempts++
	attempt := item.attempts
	item.watch.set(SendStatus{Kind: StatusSending, Attempt: attempt})

	result, err := p.transport.Execute(context.Background(), item.request)
	if err == nil {
		item.watch.set(SendStatus{Kind: StatusSent, Attempt: attempt, Result: &result})
		item.release()
		return
	}

	decision := classify(err, attempt, p.cfg)
	if !decision.retry {
		item.watch.set(SendStatus{
			Kind:    StatusFailed,
			Attempt: attempt,
			Failure: &SendFailure{Error: err.Error(), Attempts: attempt, Retryable: decision.retryableOnFail},
		})
		item.release()
		logger.Warnf("send pipeline: send %d failed: %v", item.id, err)
		return
	}

	if p.exceededMaxAttempts(attempt) {
		item.watch.set(SendStatus{
			Kind:    StatusFailed,
			Attempt: attempt,
			Failure: &SendFailure{Error: err.Error(), Attempts: attempt, Retryable: true},
		})
		item.release()
		logger.Warnf("send pipeline: send %d exceeded retry attempts: %v", item.id, err)
		return
	}

	delay := decision.delay
	item.watch.set(SendStatus{Kind: StatusQueued, Attempt: attempt, NextRetryIn: &delay})
	item.nextAttempt = time.Now().Add(delay)
	*sequence++
	item.sequence = *sequence
	heap.Push(pq, item)
	logger.Warnf("send pipeline: retrying send %d in %s (attempt %d): %v", item.id, delay, attempt, err)
}

func (p *Pipeline) exceededMaxAttempts(attempt uint32) bool {
	if p.cfg.MaxRetryAttempts == nil {
		return false
	}
	return attempt >= *p.cfg.MaxRetryAttempts
}

type retryDecision struct {
	retry           bool
	delay           time.Duration
	retryableOnFail bool
}

// classify решает, стоит ли повторять запрос, и с какой паузой. Логика и
// пороги (код >= 500 и TransportError → экспоненциальный бэкофф,
// FLOOD_WAIT/SLOWMODE_WAIT/FLOOD_PREMIUM_WAIT с ненулевой паузой → пауза по
// значению сервера, остальное → без повтора)
// воспроизводят original_source/core/src/telegram/send.rs::retry_decision.
func classify(err error, attempt uint32, cfg Config) retryDecision {
	var floodErr FloodWaitError
	if errors.As(err, &floodErr) {
		if floodErr.Delay > 0 {
			return retryDecision{retry: true, delay: floodErr.Delay}
		}
		return retryDecision{retry: false, retryableOnFail: false}
	}

	var rpcErr RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code >= 500 {
			return retryDecision{retry: true, delay: backoffDelay(attempt, cfg)}
		}
		return retryDecision{retry: false, retryableOnFail: false}
	}

	var transportErr TransportError
	if errors.As(err, &transportErr) {
		return retryDecision{retry: true, delay: backoffDelay(attempt, cfg)}
	}

	var invalidID ErrInvalidMessageId
	if errors.As(err, &invalidID) {
		return retryDecision{retry: false, retryableOnFail: false}
	}

	// Ошибки аутентификации и всё неопознанное — терминальный отказ.
	return retryDecision{retry: false, retryableOnFail: false}
}

// backoffDelay — удвоение задержки до потолка, с насыщением вместо
// переполнения. Совпадает с backoff_delay из original_source.
func backoffDelay(attempt uint32, cfg Config) time.Duration {
	baseMS := uint64(cfg.RetryBaseDelay.Milliseconds())
	maxMS := uint64(cfg.RetryMaxDelay.Milliseconds())
	if baseMS == 0 || maxMS == 0 {
		return 0
	}

	delayMS := baseMS
	for step := uint32(1); step < attempt; step++ {
		delayMS = saturatingMul(delayMS, 2)
		if delayMS >= maxMS {
			delayMS = maxMS
			break
		}
	}
	return time.Duration(delayMS) * time.Millisecond
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	result := a * b
	if result/b != a {
		return ^uint64(0)
	}
	return result
}

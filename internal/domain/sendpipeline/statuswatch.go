package sendpipeline

import (
	"context"
	"sync"
)

// StatusWatch хранит последнее значение SendStatus и позволяет ждать
// следующего изменения без пропуска промежуточных обновлений целиком:
// читатель всегда видит самое свежее значение на момент пробуждения.
// Заменяет tokio::sync::watch, которому в стандартной библиотеке Go нет
// прямого аналога.
type StatusWatch struct {
	mu    sync.Mutex
	value SendStatus
	ch    chan struct{}
}

func newStatusWatch(initial SendStatus) *StatusWatch {
	return &StatusWatch{value: initial, ch: make(chan struct{})}
}

// set публикует новое значение и будит все блокированные WaitChange.
func (w *StatusWatch) set(v SendStatus) {
	w.mu.Lock()
	w.value = v
	old := w.ch
	w.ch = make(chan struct{})
	w.mu.Unlock()
	close(old)
}

// Get возвращает текущее значение без ожидания.
func (w *StatusWatch) Get() SendStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// WaitChange блокируется до следующего set или отмены ctx и возвращает
// самое свежее значение на момент пробуждения (если между изменением и
// пробуждением было несколько set, виден только последний).
func (w *StatusWatch) WaitChange(ctx context.Context) (SendStatus, bool) {
	w.mu.Lock()
	ch := w.ch
	w.mu.Unlock()

	select {
	case <-ch:
		return w.Get(), true
	case <-ctx.Done():
		return SendStatus{}, false
	}
}

// SendTicket — хэндл, выдаваемый Enqueue: идентификатор задания и доступ к
// его статусу.
type SendTicket struct {
	ID    SendId
	watch *StatusWatch
}

// Status возвращает текущий статус задания без блокировки.
func (t *SendTicket) Status() SendStatus {
	return t.watch.Get()
}

// WaitChange блокируется до следующего изменения статуса или отмены ctx.
func (t *SendTicket) WaitChange(ctx context.Context) (SendStatus, bool) {
	return t.watch.WaitChange(ctx)
}

package sendpipeline

import (
	"sync"
	"time"
)

// queueItem — один элемент приоритетной очереди воркера. Порядок —
// (nextAttempt ASC, sequence ASC): чем раньше истекает отложенный повтор и
// чем раньше элемент встал в очередь, тем выше приоритет.
type queueItem struct {
	id          SendId
	request     SendRequest
	watch       *StatusWatch
	attempts    uint32
	nextAttempt time.Time
	sequence    uint64

	releaseOnce sync.Once
	releaseFn   func()
}

// release отпускает разрешение на допуск ровно один раз, даже если элемент
// проходит через несколько попыток и повторных постановок в очередь.
func (it *queueItem) release() {
	it.releaseOnce.Do(func() {
		if it.releaseFn != nil {
			it.releaseFn()
		}
	})
}

// priorityQueue реализует heap.Interface поверх среза указателей на
// queueItem.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].nextAttempt.Equal(pq[j].nextAttempt) {
		return pq[i].sequence < pq[j].sequence
	}
	return pq[i].nextAttempt.Before(pq[j].nextAttempt)
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*queueItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

package chatcache

import (
	"context"
	"sync"
	"time"

	"telegram-userbot/internal/infra/logger"
)

// Flusher coalesces rapid cache mutations into a single debounced save: it
// resets a single deadline timer on every Dirty signal instead of saving on
// every mutation, so a burst of edits produces one write. Grounded on the
// teacher's Debouncer (internal/concurrency/debounce.go), adapted from its
// per-message-id debounce map to a single global dirty flag since the cache
// as a whole is the unit of persistence, not any one message.
type Flusher struct {
	cache *Cache
	store *Store
	delay time.Duration

	mu      sync.Mutex
	dirty   bool
	timer   *time.Timer
	stopped bool

	done chan struct{}
}

// NewFlusher wires a Cache to a Store with the given debounce delay.
func NewFlusher(cache *Cache, store *Store, delay time.Duration) *Flusher {
	f := &Flusher{
		cache: cache,
		store: store,
		delay: delay,
		done:  make(chan struct{}),
	}
	cache.SetDirtyHook(f.Dirty)
	return f
}

// Dirty schedules a save after the debounce delay, resetting any pending
// timer. Safe to call from any goroutine, including from within a cache
// mutation.
func (f *Flusher) Dirty() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.dirty = true
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.delay, f.flush)
}

// flush performs one save if the dirty flag is still set, clearing it
// first so a mutation arriving mid-save schedules a fresh flush rather than
// being silently absorbed.
func (f *Flusher) flush() {
	f.mu.Lock()
	if f.stopped || !f.dirty {
		f.mu.Unlock()
		return
	}
	f.dirty = false
	f.mu.Unlock()

	snap := f.cache.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), SaveTimeout)
	defer cancel()
	if err := f.store.Save(ctx, snap); err != nil {
		logger.Errorf("chat cache flusher: save failed: %v", err)
	}
}

// Shutdown stops future debounced saves and performs one final synchronous
// save if a mutation is still pending, mirroring the Debouncer's
// flush-on-stop guarantee.
func (f *Flusher) Shutdown() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	if f.timer != nil {
		f.timer.Stop()
	}
	pending := f.dirty
	f.dirty = false
	f.mu.Unlock()

	if pending {
		snap := f.cache.Snapshot()
		ctx, cancel := context.WithTimeout(context.Background(), SaveTimeout)
		defer cancel()
		if err := f.store.Save(ctx, snap); err != nil {
			logger.Errorf("chat cache flusher: final save failed: %v", err)
		}
	}
	close(f.done)
}

// Done returns a channel closed once Shutdown has completed its final save.
func (f *Flusher) Done() <-chan struct{} {
	return f.done
}

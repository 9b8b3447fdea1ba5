package chatcache_test

import (
	"path/filepath"
	"testing"
	"time"

	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
)

func TestFlusherCoalescesBurstIntoOneSave(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	store, err := chatcache.OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	cache := chatcache.New(chatcache.Limits{})
	flusher := chatcache.NewFlusher(cache, store, 30*time.Millisecond)

	for i := 1; i <= 5; i++ {
		cache.ApplyEvent(events.DomainEvent{
			Kind: events.KindMessageNew,
			MessageNew: &events.MessageNew{
				ChatID:    1,
				MessageID: events.MessageId(i),
				Timestamp: int64(i),
				Text:      "x",
			},
		})
	}

	time.Sleep(100 * time.Millisecond)

	loaded, err := store.Load(t.Context())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 5 {
		t.Fatalf("expected all 5 messages persisted by the debounced flush, got %d", len(loaded.Messages))
	}

	flusher.Shutdown()
}

func TestFlusherShutdownFlushesPendingWrite(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	store, err := chatcache.OpenStore(dbPath)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	cache := chatcache.New(chatcache.Limits{})
	flusher := chatcache.NewFlusher(cache, store, time.Hour)

	cache.ApplyEvent(events.DomainEvent{
		Kind: events.KindMessageNew,
		MessageNew: &events.MessageNew{
			ChatID:    1,
			MessageID: 1,
			Timestamp: 1,
			Text:      "pending",
		},
	})

	flusher.Shutdown()
	<-flusher.Done()

	loaded, err := store.Load(t.Context())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Messages) != 1 {
		t.Fatalf("expected Shutdown to flush the pending write, got %d messages", len(loaded.Messages))
	}
}

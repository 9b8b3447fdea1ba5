package chatcache_test

import (
	"testing"

	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
)

func newMsgEvent(chatID events.ChatId, msgID events.MessageId, ts int64, text string) events.DomainEvent {
	return events.DomainEvent{
		Kind: events.KindMessageNew,
		MessageNew: &events.MessageNew{
			ChatID:    chatID,
			MessageID: msgID,
			AuthorID:  1,
			Timestamp: ts,
			Text:      text,
		},
	}
}

func TestApplyEventEditUpdatesCachedText(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	c.ApplyEvent(newMsgEvent(1, 100, 10, "hello"))
	c.ApplyEvent(events.DomainEvent{
		Kind: events.KindMessageEdited,
		MessageEdited: &events.MessageEdited{
			ChatID:    1,
			MessageID: 100,
			Timestamp: 20,
			Text:      "hello, edited",
		},
	})

	msgs := c.MessagesForChat(1, 0)
	if len(msgs) != 1 || msgs[0].Text != "hello, edited" {
		t.Fatalf("expected edited text, got %+v", msgs)
	}
	if msgs[0].EditTimestamp == nil || *msgs[0].EditTimestamp != 20 {
		t.Fatalf("expected edit timestamp 20, got %+v", msgs[0].EditTimestamp)
	}
}

func TestApplyEventEditOnUnknownMessageIsNoop(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	c.ApplyEvent(newMsgEvent(1, 100, 10, "hello"))
	c.ApplyEvent(events.DomainEvent{
		Kind: events.KindMessageEdited,
		MessageEdited: &events.MessageEdited{
			ChatID:    1,
			MessageID: 999,
			Timestamp: 20,
			Text:      "ghost edit",
		},
	})

	msgs := c.MessagesForChat(1, 0)
	if len(msgs) != 1 || msgs[0].Text != "hello" {
		t.Fatalf("expected original message untouched, got %+v", msgs)
	}
}

func TestEvictionPerChatMessageLimit(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{MaxMessagesPerChat: 2})

	for i := 1; i <= 5; i++ {
		c.ApplyEvent(newMsgEvent(1, events.MessageId(i), int64(i), "x"))
	}

	msgs := c.MessagesForChat(1, 0)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 retained messages, got %d", len(msgs))
	}
	if msgs[0].MessageID != 4 || msgs[1].MessageID != 5 {
		t.Fatalf("expected the newest two messages retained, got %+v", msgs)
	}
}

func TestEvictionByChatCountRemovesOldestUpdated(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{MaxChats: 2})

	c.ApplyEvent(newMsgEvent(1, 1, 10, "a"))
	c.ApplyEvent(newMsgEvent(2, 2, 20, "b"))
	c.ApplyEvent(newMsgEvent(3, 3, 30, "c"))

	summaries := c.ChatSummaries()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 chats retained, got %d", len(summaries))
	}
	for _, s := range summaries {
		if s.ChatID == 1 {
			t.Fatalf("expected oldest-updated chat 1 to be evicted, still present: %+v", summaries)
		}
	}
}

func TestEvictionByByteBudget(t *testing.T) {
	t.Parallel()
	// Each empty-title chat holding one empty message costs 128 bytes
	// (chatOverheadBytes + messageOverheadBytes); budget of 200 allows only
	// one chat to remain.
	c := chatcache.New(chatcache.Limits{MaxBytes: 200})

	c.ApplyEvent(newMsgEvent(1, 1, 10, ""))
	c.ApplyEvent(newMsgEvent(2, 2, 20, ""))

	summaries := c.ChatSummaries()
	if len(summaries) != 1 {
		t.Fatalf("expected exactly 1 chat retained under byte budget, got %d: %+v", len(summaries), summaries)
	}
	if summaries[0].ChatID != 2 {
		t.Fatalf("expected the most recently updated chat to survive, got %+v", summaries)
	}
}

func TestReadReceiptZeroesUnreadAndTouchesUpdatedAt(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	c.ApplyEvent(newMsgEvent(1, 1, 10, "hi"))
	c.ApplyEvent(events.DomainEvent{
		Kind: events.KindReadReceipt,
		ReadReceipt: &events.ReadReceipt{
			ChatID:            1,
			Timestamp:         50,
			LastReadMessageID: 1,
		},
	})

	summaries := c.ChatSummaries()
	if len(summaries) != 1 {
		t.Fatalf("expected 1 chat, got %d", len(summaries))
	}
	if summaries[0].UnreadCount == nil || *summaries[0].UnreadCount != 0 {
		t.Fatalf("expected unread count zeroed, got %+v", summaries[0].UnreadCount)
	}
}

func TestReadReceiptOnUnknownChatIsNoop(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	c.ApplyEvent(events.DomainEvent{
		Kind: events.KindReadReceipt,
		ReadReceipt: &events.ReadReceipt{
			ChatID:    99,
			Timestamp: 50,
		},
	})
	if len(c.ChatSummaries()) != 0 {
		t.Fatalf("expected no chat created by a read receipt on an unknown chat")
	}
}

func TestTypingDoesNotMutateState(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	stats := c.ApplyEvent(events.DomainEvent{
		Kind:   events.KindTyping,
		Typing: &events.Typing{ChatID: 1, UserID: 2, Timestamp: 10},
	})
	if stats != (chatcache.EvictionStats{}) {
		t.Fatalf("expected no eviction stats from a typing event, got %+v", stats)
	}
	if len(c.ChatSummaries()) != 0 {
		t.Fatalf("expected typing event to create no chat")
	}
}

func TestSnapshotRoundTripsThroughLoadSnapshot(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	c.ApplyEvent(newMsgEvent(1, 1, 10, "hello"))
	c.ApplyEvent(newMsgEvent(1, 2, 20, "world"))
	c.ApplyEvent(newMsgEvent(2, 3, 15, "other chat"))

	snap := c.Snapshot()

	reloaded := chatcache.New(chatcache.Limits{})
	reloaded.LoadSnapshot(snap)

	msgs := reloaded.MessagesForChat(1, 0)
	if len(msgs) != 2 || msgs[0].Text != "hello" || msgs[1].Text != "world" {
		t.Fatalf("reloaded messages mismatch: %+v", msgs)
	}
	if len(reloaded.ChatSummaries()) != 2 {
		t.Fatalf("expected 2 chats after reload, got %d", len(reloaded.ChatSummaries()))
	}
}

func TestDirtyHookFiresOnMutation(t *testing.T) {
	t.Parallel()
	c := chatcache.New(chatcache.Limits{})
	fired := 0
	c.SetDirtyHook(func() { fired++ })

	c.ApplyEvent(newMsgEvent(1, 1, 10, "hi"))
	if fired != 1 {
		t.Fatalf("expected dirty hook to fire once, fired=%d", fired)
	}
}

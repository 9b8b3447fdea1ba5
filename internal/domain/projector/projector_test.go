package projector_test

import (
	"testing"

	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/projector"
)

func newMessage(chatID events.ChatId, msgID events.MessageId, ts int64, text string, outgoing bool) events.DomainEvent {
	return events.DomainEvent{
		Kind: events.KindMessageNew,
		MessageNew: &events.MessageNew{
			ChatID:    chatID,
			MessageID: msgID,
			AuthorID:  events.UserId(7),
			Timestamp: ts,
			Text:      text,
			Outgoing:  outgoing,
		},
	}
}

func TestRefreshSortsChatsByLastMessageDescThenTitleAsc(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{})
	cache.ApplyEvent(newMessage(1, 1, 100, "a", false))
	cache.ApplyEvent(newMessage(2, 2, 300, "b", false))
	cache.ApplyEvent(newMessage(3, 3, 300, "c", false))

	p := projector.New(10)
	view := p.Refresh(cache)

	if len(view.Chats) != 3 {
		t.Fatalf("expected 3 chats, got %d", len(view.Chats))
	}
	// chats 2 and 3 tie at ts=300 and both carry the cache's empty title (the
	// "Chat <id>" label is applied only after sorting), so their relative
	// order is not asserted; chat 1 has the oldest timestamp and sorts last.
	if view.Chats[2].ID != 1 {
		t.Fatalf("expected chat 1 (oldest timestamp) last, got order %+v", view.Chats)
	}
}

func TestRefreshKeepsPreviousSelectionWhenStillPresent(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{})
	cache.ApplyEvent(newMessage(1, 1, 100, "a", false))
	cache.ApplyEvent(newMessage(2, 2, 200, "b", false))

	p := projector.New(10)
	p.Refresh(cache)
	p.Select(1)

	view := p.Refresh(cache)
	selected, ok := p.Selected()
	if !ok || selected != 1 {
		t.Fatalf("expected selection to stay on chat 1, got %v (ok=%v)", selected, ok)
	}
	for _, c := range view.Chats {
		if c.ID == 1 && !c.IsSelected {
			t.Fatalf("expected chat 1 marked selected in view: %+v", view.Chats)
		}
	}
}

func TestRefreshFallsBackToFirstChatWhenSelectionGone(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{MaxChats: 1})
	cache.ApplyEvent(newMessage(1, 1, 100, "a", false))
	p := projector.New(10)
	p.Refresh(cache)
	p.Select(1)

	// evict chat 1 by adding chats beyond MaxChats: 1, forcing it out.
	cache.ApplyEvent(newMessage(2, 2, 200, "b", false))

	view := p.Refresh(cache)
	if len(view.Chats) != 1 || view.Chats[0].ID != 2 {
		t.Fatalf("expected only chat 2 to remain, got %+v", view.Chats)
	}
	selected, ok := p.Selected()
	if !ok || selected != 2 {
		t.Fatalf("expected selection to move to chat 2, got %v (ok=%v)", selected, ok)
	}
}

func TestRefreshEmptyTitleFallsBackToChatIDLabel(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{})
	cache.ApplyEvent(newMessage(42, 1, 100, "a", false))

	p := projector.New(10)
	view := p.Refresh(cache)

	if len(view.Chats) != 1 || view.Chats[0].Title != "Chat 42" {
		t.Fatalf("expected fallback title %q, got %+v", "Chat 42", view.Chats)
	}
}

func TestRefreshMessagesSortedAscendingWithAuthorLabels(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{})
	cache.ApplyEvent(newMessage(1, 1, 300, "third", false))
	cache.ApplyEvent(newMessage(1, 2, 100, "first", true))
	cache.ApplyEvent(newMessage(1, 3, 200, "second", false))

	p := projector.New(10)
	p.Select(1)
	view := p.Refresh(cache)

	if len(view.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(view.Messages))
	}
	if view.Messages[0].Text != "first" || view.Messages[1].Text != "second" || view.Messages[2].Text != "third" {
		t.Fatalf("expected ascending timestamp order, got %+v", view.Messages)
	}
	if view.Messages[0].AuthorLabel != "You" {
		t.Fatalf("expected outgoing message labeled You, got %q", view.Messages[0].AuthorLabel)
	}
	if view.Messages[1].AuthorLabel != "User 7" {
		t.Fatalf("expected incoming message labeled User 7, got %q", view.Messages[1].AuthorLabel)
	}
}

func TestRefreshRespectsMessageLimit(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{})
	for i := 1; i <= 5; i++ {
		cache.ApplyEvent(newMessage(1, events.MessageId(i), int64(i*10), "m", false))
	}

	p := projector.New(2)
	p.Select(1)
	view := p.Refresh(cache)

	if len(view.Messages) != 2 {
		t.Fatalf("expected message limit of 2 to be respected, got %d", len(view.Messages))
	}
	if view.Messages[0].Text != "m" || view.Messages[1].ID != 5 {
		t.Fatalf("expected the two most recent messages, got %+v", view.Messages)
	}
}

func TestRefreshNoChatsLeavesNothingSelected(t *testing.T) {
	t.Parallel()
	cache := chatcache.New(chatcache.Limits{})
	p := projector.New(10)
	view := p.Refresh(cache)

	if len(view.Chats) != 0 || len(view.Messages) != 0 {
		t.Fatalf("expected empty view, got %+v", view)
	}
	if _, ok := p.Selected(); ok {
		t.Fatalf("expected no selection with an empty cache")
	}
}

package events_test

import (
	"testing"

	"telegram-userbot/internal/domain/dialogid"
	"telegram-userbot/internal/domain/events"

	"github.com/gotd/td/tg"
)

func TestMapUpdateNewMessage(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	update := &tg.UpdateNewMessage{
		Message: &tg.Message{
			ID:     7,
			PeerID: &tg.PeerUser{UserID: 100},
			FromID: &tg.PeerUser{UserID: 100},
			Date:   1700000000,
			Message: "hello",
		},
	}

	got, ok := mapper.MapUpdate(update)
	if !ok {
		t.Fatal("expected update to map")
	}
	if got.Kind != events.KindMessageNew {
		t.Fatalf("expected KindMessageNew, got %v", got.Kind)
	}
	want := events.ChatId(dialogid.FromPeer(dialogid.KindUser, 100))
	if got.MessageNew.ChatID != want {
		t.Fatalf("ChatID = %d, want %d", got.MessageNew.ChatID, want)
	}
	if got.MessageNew.MessageID != 7 {
		t.Fatalf("MessageID = %d, want 7", got.MessageNew.MessageID)
	}
	if got.MessageNew.AuthorID != 100 {
		t.Fatalf("AuthorID = %d, want 100", got.MessageNew.AuthorID)
	}
	if got.MessageNew.Text != "hello" {
		t.Fatalf("Text = %q, want hello", got.MessageNew.Text)
	}
}

func TestMapUpdateEditMessagePrefersEditDate(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	update := &tg.UpdateEditMessage{
		Message: &tg.Message{
			ID:       7,
			PeerID:   &tg.PeerUser{UserID: 100},
			FromID:   &tg.PeerUser{UserID: 100},
			Date:     1700000000,
			EditDate: 1700000500,
			Message:  "edited text",
		},
	}

	got, ok := mapper.MapUpdate(update)
	if !ok {
		t.Fatal("expected update to map")
	}
	if got.Kind != events.KindMessageEdited {
		t.Fatalf("expected KindMessageEdited, got %v", got.Kind)
	}
	if got.MessageEdited.Timestamp != 1700000500 {
		t.Fatalf("Timestamp = %d, want edit date 1700000500", got.MessageEdited.Timestamp)
	}
}

func TestMapUpdateDropsNonUserAuthor(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	update := &tg.UpdateNewChannelMessage{
		Message: &tg.Message{
			ID:     7,
			PeerID: &tg.PeerChannel{ChannelID: 55},
			FromID: &tg.PeerChannel{ChannelID: 55},
			Date:   1700000000,
		},
	}

	_, ok := mapper.MapUpdate(update)
	if ok {
		t.Fatal("expected a channel-authored message with no user FromID to be dropped")
	}
}

func TestMapUpdateIncomingMessageFallsBackToPeerID(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	update := &tg.UpdateNewMessage{
		Message: &tg.Message{
			ID:     8,
			PeerID: &tg.PeerUser{UserID: 200},
			Out:    false,
			Date:   1700000000,
		},
	}

	got, ok := mapper.MapUpdate(update)
	if !ok {
		t.Fatal("expected incoming message to map using PeerID as author")
	}
	if got.MessageNew.AuthorID != 200 {
		t.Fatalf("AuthorID = %d, want 200 (from PeerID)", got.MessageNew.AuthorID)
	}
	if got.MessageNew.Outgoing {
		t.Fatal("expected Outgoing to be false")
	}
}

func TestMapUpdateReadHistoryOutbox(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	update := &tg.UpdateReadHistoryOutbox{
		Peer:  &tg.PeerUser{UserID: 300},
		MaxID: 42,
	}

	got, ok := mapper.MapUpdate(update)
	if !ok {
		t.Fatal("expected read receipt to map")
	}
	if got.Kind != events.KindReadReceipt {
		t.Fatalf("expected KindReadReceipt, got %v", got.Kind)
	}
	if got.ReadReceipt.LastReadMessageID != 42 {
		t.Fatalf("LastReadMessageID = %d, want 42", got.ReadReceipt.LastReadMessageID)
	}
}

func TestMapUpdateTyping(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	got, ok := mapper.MapUpdate(&tg.UpdateUserTyping{UserID: 9})
	if !ok {
		t.Fatal("expected typing update to map")
	}
	if got.Kind != events.KindTyping {
		t.Fatalf("expected KindTyping, got %v", got.Kind)
	}
	if got.Typing.UserID != 9 {
		t.Fatalf("UserID = %d, want 9", got.Typing.UserID)
	}
}

func TestMapUpdateUnsupportedVariantDropped(t *testing.T) {
	t.Parallel()
	mapper := events.NewMapper()

	_, ok := mapper.MapUpdate(&tg.UpdateDeleteMessages{})
	if ok {
		t.Fatal("expected unsupported update variant to be dropped")
	}
}

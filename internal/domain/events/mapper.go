package events

import (
	"telegram-userbot/internal/domain/dialogid"
	"telegram-userbot/internal/infra/logger"

	"github.com/gotd/td/tg"
)

// Mapper is a stateless translator from raw tg update variants to
// DomainEvent. It performs no I/O and holds no mutable state, so a single
// instance may be shared across goroutines.
type Mapper struct{}

// NewMapper returns a ready-to-use Mapper.
func NewMapper() *Mapper { return &Mapper{} }

// MapUpdate translates one raw update into a DomainEvent. Unsupported
// variants return (DomainEvent{}, false); the caller must not propagate them.
func (Mapper) MapUpdate(update tg.UpdateClass) (DomainEvent, bool) {
	switch u := update.(type) {
	case *tg.UpdateNewMessage:
		return mapMessageNew(u.Message)
	case *tg.UpdateNewChannelMessage:
		return mapMessageNew(u.Message)
	case *tg.UpdateEditMessage:
		return mapMessageEdited(u.Message)
	case *tg.UpdateEditChannelMessage:
		return mapMessageEdited(u.Message)
	case *tg.UpdateReadHistoryOutbox:
		return mapReadReceipt(u.Peer, u.MaxID)
	case *tg.UpdateUserTyping:
		return mapTyping(u.UserID)
	default:
		logger.Debugf("event mapper: dropping unsupported update %T", update)
		return DomainEvent{}, false
	}
}

func mapMessageNew(raw tg.MessageClass) (DomainEvent, bool) {
	fields, ok := parseMessage(raw)
	if !ok {
		return DomainEvent{}, false
	}
	return DomainEvent{
		Kind: KindMessageNew,
		MessageNew: &MessageNew{
			ChatID:    fields.chatID,
			MessageID: fields.messageID,
			AuthorID:  fields.authorID,
			Timestamp: fields.date,
			Text:      fields.text,
			Outgoing:  fields.outgoing,
		},
	}, true
}

func mapMessageEdited(raw tg.MessageClass) (DomainEvent, bool) {
	fields, ok := parseMessage(raw)
	if !ok {
		return DomainEvent{}, false
	}
	timestamp := fields.date
	if fields.editDate != 0 {
		timestamp = fields.editDate
	}
	return DomainEvent{
		Kind: KindMessageEdited,
		MessageEdited: &MessageEdited{
			ChatID:    fields.chatID,
			MessageID: fields.messageID,
			EditorID:  fields.authorID,
			Timestamp: timestamp,
			Text:      fields.text,
			Outgoing:  fields.outgoing,
		},
	}, true
}

func mapReadReceipt(peer tg.PeerClass, maxID int) (DomainEvent, bool) {
	chatID := chatIDFromPeer(peer)
	readerID, ok := userIDFromPeer(peer)
	if !ok {
		logger.Warnf("event mapper: read receipt on non-user peer %T", peer)
		return DomainEvent{}, false
	}
	return DomainEvent{
		Kind: KindReadReceipt,
		ReadReceipt: &ReadReceipt{
			ChatID:            chatID,
			ReaderID:          readerID,
			LastReadMessageID: MessageId(maxID),
		},
	}, true
}

func mapTyping(userID int64) (DomainEvent, bool) {
	chatID := ChatId(dialogid.FromPeer(dialogid.KindUser, userID))
	return DomainEvent{
		Kind: KindTyping,
		Typing: &Typing{
			ChatID: chatID,
			UserID: UserId(userID),
		},
	}, true
}

type parsedMessage struct {
	chatID    ChatId
	messageID MessageId
	authorID  UserId
	date      int64
	editDate  int64
	text      string
	outgoing  bool
}

// parseMessage extracts the fields shared by new-message and edit-message
// handling. Service messages and other non-text variants are dropped.
func parseMessage(raw tg.MessageClass) (parsedMessage, bool) {
	msg, ok := raw.(*tg.Message)
	if !ok {
		logger.Debugf("event mapper: dropping unsupported message variant %T", raw)
		return parsedMessage{}, false
	}

	authorPeer := msg.FromID
	if authorPeer == nil && !msg.Out {
		authorPeer = msg.PeerID
	}
	authorID, ok := userIDFromPeer(authorPeer)
	if !ok {
		logger.Warnf("event mapper: message %d missing user author", msg.ID)
		return parsedMessage{}, false
	}

	return parsedMessage{
		chatID:    chatIDFromPeer(msg.PeerID),
		messageID: MessageId(msg.ID),
		authorID:  authorID,
		date:      int64(msg.Date),
		editDate:  int64(msg.EditDate),
		text:      msg.Message,
		outgoing:  msg.Out,
	}, true
}

func chatIDFromPeer(peer tg.PeerClass) ChatId {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return ChatId(dialogid.FromPeer(dialogid.KindUser, p.UserID))
	case *tg.PeerChat:
		return ChatId(dialogid.FromPeer(dialogid.KindChat, p.ChatID))
	case *tg.PeerChannel:
		return ChatId(dialogid.FromPeer(dialogid.KindChannel, p.ChannelID))
	default:
		return 0
	}
}

func userIDFromPeer(peer tg.PeerClass) (UserId, bool) {
	user, ok := peer.(*tg.PeerUser)
	if !ok {
		return 0, false
	}
	return UserId(user.UserID), true
}

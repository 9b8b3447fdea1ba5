// Package dialogid folds the three Telegram peer address spaces (user, basic
// group, channel/supergroup) into one signed 64-bit chat identifier. Every
// component that converts between chat ids and raw peers (the event mapper
// and the send transport adapter) shares these functions so the folding
// scheme is defined exactly once.
package dialogid

// channelIDOffset is the magic constant the bot API convention subtracts
// channel ids from. Matches grammers/telethon's bot_api_dialog_id scheme.
const channelIDOffset = -1000000000000

// PeerKind enumerates the raw peer address spaces folded by FromPeer.
type PeerKind int

const (
	KindUser PeerKind = iota
	KindChat
	KindChannel
)

// FromPeer folds a (kind, raw id) pair into the canonical chat id space:
// users are unchanged, basic groups are negated, channels are offset by
// channelIDOffset. Raw ids are expected positive, as Telegram's wire format
// represents them.
func FromPeer(kind PeerKind, rawID int64) int64 {
	switch kind {
	case KindChat:
		return -rawID
	case KindChannel:
		return channelIDOffset - rawID
	default:
		return rawID
	}
}

// ToRawPeer reverses FromPeer: given a folded chat id, it recovers which
// address space it came from and the raw id within that space. Components
// that must turn a ChatId back into a protocol-level peer (the send
// transport) use this instead of re-deriving the arithmetic themselves.
func ToRawPeer(chatID int64) (kind PeerKind, rawID int64) {
	switch {
	case chatID <= channelIDOffset:
		return KindChannel, channelIDOffset - chatID
	case chatID < 0:
		return KindChat, -chatID
	default:
		return KindUser, chatID
	}
}

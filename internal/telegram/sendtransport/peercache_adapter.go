package sendtransport

import (
	"telegram-userbot/internal/domain/dialogid"

	"github.com/gotd/td/tg"
)

// peerCache is the subset of internal/infra/telegram/cache.PeerCache the
// adapter depends on, named here to avoid an import cycle back into infra.
type peerCache interface {
	GetInputPeerByKind(class string, id int64) (tg.InputPeerClass, error)
}

// PeerCacheResolver adapts the teacher's string-keyed PeerCache to the
// PeerResolver interface Execute expects.
type PeerCacheResolver struct {
	cache peerCache
}

// NewPeerCacheResolver wraps an existing PeerCache.
func NewPeerCacheResolver(cache peerCache) *PeerCacheResolver {
	return &PeerCacheResolver{cache: cache}
}

// ResolveInputPeer implements PeerResolver.
func (r *PeerCacheResolver) ResolveInputPeer(kind dialogid.PeerKind, rawID int64) (tg.InputPeerClass, error) {
	return r.cache.GetInputPeerByKind(peerKindClass(kind), rawID)
}

func peerKindClass(kind dialogid.PeerKind) string {
	switch kind {
	case dialogid.KindChat:
		return "chat"
	case dialogid.KindChannel:
		return "channel"
	default:
		return "user"
	}
}

// Package cache holds the peer-resolution cache C7's transport adapter
// (internal/telegram/sendtransport) resolves folded chat ids against: a
// singleton map from raw user/chat/channel ids to the tg.InputPeer* values
// the wire protocol needs to address an RPC. Peers are learned:
//   - up front, via BuildPeerCache's one-time dialog list warm-up;
//   - for User peers only, on a cache miss via a users.getUsers RPC;
//   - from tg.Entities passed to GetInputPeerRaw. Its only caller,
//     GetInputPeerByKind, passes empty entities, and the update handlers do
//     not feed this cache, so no peer is learned from live updates.
// Chat/Channel ids have no RPC fallback, so GetInputPeerByKind("chat"/
// "channel", ...) fails for any peer the warm-up did not return.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	tgruntime "telegram-userbot/internal/infra/telegram/runtime"

	"github.com/gotd/td/tg"
)

// PeerCache resolves folded chat/user/channel ids into tg.InputPeerClass
// values. Thread-safe via its own RWMutex; used as a package-level singleton
// created by Init and reached through the global wrapper functions below.
type PeerCache struct {
	ctx context.Context
	api *tg.Client

	mu       sync.RWMutex
	channels map[int64]*tg.InputPeerChannel
	users    map[int64]*tg.InputPeerUser
	chats    map[int64]*tg.InputPeerChat
}

var (
	peerCacheMu       sync.RWMutex
	peerCacheInstance *PeerCache

	errPeerCacheInitError      = errors.New("peercache initialization error; nil arguments")
	errPeerCacheNotInitialized = errors.New("peercache: peer cache not initialized; call peercache.Init before use")
)

// Init creates the singleton cache. Both arguments are required; ctx backs
// the fallback RPCs this cache makes on cache misses (users.getUsers, and
// BuildPeerCache's messages.getDialogs). Calling Init again replaces the
// previous instance.
func Init(ctx context.Context, api *tg.Client) {
	if ctx == nil || api == nil {
		panic(errPeerCacheInitError)
	}
	c := &PeerCache{
		ctx:      ctx,
		api:      api,
		channels: make(map[int64]*tg.InputPeerChannel),
		users:    make(map[int64]*tg.InputPeerUser),
		chats:    make(map[int64]*tg.InputPeerChat),
	}
	peerCacheMu.Lock()
	peerCacheInstance = c
	peerCacheMu.Unlock()
}

// mustPeerCache returns the singleton or panics with
// errPeerCacheNotInitialized if Init was never called.
func mustPeerCache() *PeerCache {
	peerCacheMu.RLock()
	c := peerCacheInstance
	peerCacheMu.RUnlock()
	if c == nil {
		panic(errPeerCacheNotInitialized)
	}
	return c
}

func (c *PeerCache) getChannel(id int64) (*tg.InputPeerChannel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.channels[id]
	return p, ok
}

func (c *PeerCache) getUser(id int64) (*tg.InputPeerUser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	return u, ok
}

func (c *PeerCache) getChat(id int64) (*tg.InputPeerChat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.chats[id]
	return ch, ok
}

func (c *PeerCache) putChannel(id int64, ch *tg.InputPeerChannel) {
	if id == 0 || ch == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[id] = ch
}

func (c *PeerCache) putUser(id int64, u *tg.InputPeerUser) {
	if id == 0 || u == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[id] = u
}

func (c *PeerCache) putChat(id int64, ch *tg.InputPeerChat) {
	if id == 0 || ch == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[id] = ch
}

// GetInputPeerByKind resolves a peer by its dialogid.PeerKind string tag
// ("user"|"chat"|"channel", see internal/telegram/sendtransport/peercache_adapter.go)
// and raw id. Thin wrapper around GetInputPeerRaw with no entities attached,
// since every call site currently feeds it a folded id recovered after the
// fact (dialogid.ToRawPeer), not a live tg.Message carrying entities.
func (c *PeerCache) GetInputPeerByKind(class string, id int64) (tg.InputPeerClass, error) {
	var msg *tg.Message
	switch class {
	case "user":
		msg = &tg.Message{PeerID: &tg.PeerUser{UserID: id}}
	case "chat":
		msg = &tg.Message{PeerID: &tg.PeerChat{ChatID: id}}
	case "channel":
		msg = &tg.Message{PeerID: &tg.PeerChannel{ChannelID: id}}
	default:
		return nil, fmt.Errorf("peercache: unknown peer kind %q", class)
	}
	return c.GetInputPeerRaw(tg.Entities{}, msg)
}

// GetInputPeerByKind reaches the singleton. See (*PeerCache).GetInputPeerByKind.
func GetInputPeerByKind(class string, id int64) (tg.InputPeerClass, error) {
	return mustPeerCache().GetInputPeerByKind(class, id)
}

// GetInputPeerRaw resolves msg.PeerID to a tg.InputPeerClass:
//  1. local cache (fastest path, and the only path for Chat/Channel once
//     BuildPeerCache or a prior entities sighting has seeded it);
//  2. entities carried alongside the update or RPC response that produced msg;
//  3. for User peers only, a users.getUsers fallback RPC — Chat/Channel ids
//     have no access_hash-bearing fallback call, so a miss there is terminal.
//
// Whatever is resolved this way is cached for next time.
func (c *PeerCache) GetInputPeerRaw(entities tg.Entities, msg *tg.Message) (tg.InputPeerClass, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}

	switch peer := msg.PeerID.(type) {
	case *tg.PeerUser:
		if p, ok := c.getUser(peer.UserID); ok {
			return p, nil
		}
		if user, ok := entities.Users[peer.UserID]; ok && user != nil {
			p := &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			c.putUser(user.ID, p)
			return p, nil
		}
		return c.getUserFallback(peer.UserID)

	case *tg.PeerChat:
		if p, ok := c.getChat(peer.ChatID); ok {
			return p, nil
		}
		if chat, ok := entities.Chats[peer.ChatID]; ok && chat != nil {
			p := &tg.InputPeerChat{ChatID: chat.ID}
			c.putChat(chat.ID, p)
			return p, nil
		}
		return nil, fmt.Errorf("chat %d not found in cache or entities", peer.ChatID)

	case *tg.PeerChannel:
		if p, ok := c.getChannel(peer.ChannelID); ok {
			return p, nil
		}
		if ch, ok := entities.Channels[peer.ChannelID]; ok && ch != nil {
			p := &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
			c.putChannel(ch.ID, p)
			return p, nil
		}
		return nil, fmt.Errorf("channel %d not found in cache or entities", peer.ChannelID)

	default:
		return nil, fmt.Errorf("unsupported PeerID type: %T", peer)
	}
}

// GetInputPeerRaw reaches the singleton. See (*PeerCache).GetInputPeerRaw.
func GetInputPeerRaw(entities tg.Entities, msg *tg.Message) (tg.InputPeerClass, error) {
	return mustPeerCache().GetInputPeerRaw(entities, msg)
}

// getUserFallback calls users.getUsers when a user id is in neither the
// cache nor entities. A zero access_hash is enough for the server to
// identify the user and return the real one.
func (c *PeerCache) getUserFallback(userID int64) (*tg.InputPeerUser, error) {
	users, err := c.api.UsersGetUsers(c.ctx, []tg.InputUserClass{
		&tg.InputUser{UserID: userID, AccessHash: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("UsersGetUsers failed: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %d not found", userID)
	}
	if u, ok := users[0].(*tg.User); ok {
		p := &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
		c.putUser(u.ID, p)
		return p, nil
	}
	return nil, fmt.Errorf("unexpected type for user %d", userID)
}

// getDialogs pages through messages.getDialogs, tracking offset_date/
// offset_id/offset_peer per Telegram's pagination contract and a small
// randomized pause between pages so a cold-start warm-up doesn't read as a
// burst of API calls.
func (c *PeerCache) getDialogs() (*tg.MessagesDialogs, error) {
	const (
		waitMinMs = 500
		waitMaxMs = 1500
		limit     = 100
	)
	result := &tg.MessagesDialogs{}

	offsetDate := 0
	offsetID := 0
	offsetPeer := tg.InputPeerClass(&tg.InputPeerEmpty{})

	userHashes := make(map[int64]int64, limit)
	channelHashes := make(map[int64]int64, limit)

	tgruntime.WaitRandomTimeMs(c.ctx, waitMinMs, waitMaxMs)

	for {
		resp, err := c.api.MessagesGetDialogs(c.ctx, &tg.MessagesGetDialogsRequest{
			OffsetDate: offsetDate,
			OffsetID:   offsetID,
			OffsetPeer: offsetPeer,
			Limit:      limit,
		})
		if err != nil {
			return nil, fmt.Errorf("MessagesGetDialogs: %w", err)
		}

		batch, err := normalizeDialogs(resp)
		if err != nil {
			return nil, err
		}
		if len(batch.Dialogs) == 0 {
			break
		}

		result.Dialogs = append(result.Dialogs, batch.Dialogs...)
		result.Messages = append(result.Messages, batch.Messages...)
		result.Chats = append(result.Chats, batch.Chats...)
		result.Users = append(result.Users, batch.Users...)

		updateHashesFromBatch(batch, userHashes, channelHashes)

		lastDialog := batch.Dialogs[len(batch.Dialogs)-1]
		prevOffsetDate := offsetDate
		prevOffsetID := offsetID

		switch d := lastDialog.(type) {
		case *tg.Dialog:
			offsetID = d.TopMessage
			offsetDate = messageDate(batch.Messages, d.TopMessage)
			offsetPeer = dialogPeerToInput(d.Peer, userHashes, channelHashes)
		case *tg.DialogFolder:
			offsetID = d.TopMessage
			offsetDate = messageDate(batch.Messages, d.TopMessage)
			offsetPeer = dialogPeerToInput(d.Peer, userHashes, channelHashes)
		}

		if offsetDate == 0 {
			offsetDate = prevOffsetDate
		}
		if offsetID == 0 {
			offsetID = prevOffsetID
		}
		if offsetPeer == nil {
			offsetPeer = &tg.InputPeerEmpty{}
		}

		if len(batch.Dialogs) < limit {
			break
		}

		tgruntime.WaitRandomTimeMs(c.ctx, waitMinMs, waitMaxMs)
	}

	return result, nil
}

// updateHashesFromBatch records user/channel access_hash values seen in a
// dialogs page, needed to build the next page's offset_peer.
func updateHashesFromBatch(batch *tg.MessagesDialogs, userHashes, channelHashes map[int64]int64) {
	for _, u := range batch.Users {
		if user, ok := u.(*tg.User); ok {
			userHashes[user.ID] = user.AccessHash
		}
	}
	for _, ch := range batch.Chats {
		if channel, ok := ch.(*tg.Channel); ok {
			channelHashes[channel.ID] = channel.AccessHash
		}
	}
}

// BuildPeerCache fetches the account's full dialog list and seeds the
// user/chat/channel maps from it. Called once at startup (internal/app.App.Init)
// before the send pipeline can be asked to address a Group or Channel peer,
// since GetInputPeerRaw has no RPC fallback for those two kinds and nothing
// else seeds them.
func (c *PeerCache) BuildPeerCache() error {
	dialogs, err := c.getDialogs()
	if err != nil {
		return err
	}

	for _, chat := range dialogs.Chats {
		switch v := chat.(type) {
		case *tg.Channel:
			c.putChannel(v.ID, &tg.InputPeerChannel{ChannelID: v.ID, AccessHash: v.AccessHash})
		case *tg.Chat:
			c.putChat(v.ID, &tg.InputPeerChat{ChatID: v.ID})
		}
	}

	for _, user := range dialogs.Users {
		if u, ok := user.(*tg.User); ok {
			c.putUser(u.ID, &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash})
		}
	}

	return nil
}

// BuildPeerCache warms up the singleton. See (*PeerCache).BuildPeerCache.
func BuildPeerCache() error {
	return mustPeerCache().BuildPeerCache()
}

// normalizeDialogs reduces the three possible messages.getDialogs response
// shapes to one. MessagesDialogsNotModified is reported as an error since
// this cache always pages from scratch and never sends a hash that could
// produce that response in the first place; a caller seeing it back
// indicates a Telegram-side change worth surfacing, not silently ignoring.
func normalizeDialogs(resp tg.MessagesDialogsClass) (*tg.MessagesDialogs, error) {
	switch d := resp.(type) {
	case *tg.MessagesDialogs:
		return d, nil
	case *tg.MessagesDialogsSlice:
		return &tg.MessagesDialogs{
			Dialogs:  d.Dialogs,
			Messages: d.Messages,
			Chats:    d.Chats,
			Users:    d.Users,
		}, nil
	case *tg.MessagesDialogsNotModified:
		return nil, errors.New("dialogs not modified")
	default:
		return nil, fmt.Errorf("unexpected dialogs response: %T", resp)
	}
}

// messageDate finds a message by id and returns its unix date, covering
// both ordinary and service messages.
func messageDate(messages []tg.MessageClass, id int) int {
	for _, msg := range messages {
		switch m := msg.(type) {
		case *tg.Message:
			if m.ID == id {
				return m.Date
			}
		case *tg.MessageService:
			if m.ID == id {
				return m.Date
			}
		}
	}
	return 0
}

// dialogPeerToInput builds the tg.InputPeerClass used to page dialogs,
// using access_hash values collected from earlier pages.
func dialogPeerToInput(peer tg.PeerClass, userHashes, channelHashes map[int64]int64) tg.InputPeerClass {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return &tg.InputPeerUser{UserID: p.UserID, AccessHash: userHashes[p.UserID]}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: p.ChannelID, AccessHash: channelHashes[p.ChannelID]}
	default:
		return &tg.InputPeerEmpty{}
	}
}

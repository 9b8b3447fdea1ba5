package chatcache

import (
	"container/list"
	"sync"

	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/infra/logger"
)

// chatEntry holds one chat's summary, its insertion-ordered message deque,
// and the running byte totals used by the byte-budget eviction rule.
type chatEntry struct {
	summary   ChatSummary
	messages  *list.List // of CachedMessage
	index     map[events.MessageId]*list.Element
	updatedAt int64

	messageBytesTotal uint64
	summaryBytesTotal uint64
}

func newChatEntry(chatID events.ChatId) *chatEntry {
	return &chatEntry{
		summary:  ChatSummary{ChatID: chatID, PeerKind: KindUnknown},
		messages: list.New(),
		index:    make(map[events.MessageId]*list.Element),
	}
}

func (e *chatEntry) bytes() uint64 {
	return saturatingAdd(e.messageBytesTotal, e.summaryBytesTotal)
}

// Cache is the bounded in-memory chat/message model (C4). Readers and
// writers are serialized by a single RWMutex; a panic inside an apply-event
// call is recovered so one malformed event cannot take down the caller's
// goroutine or leave the cache permanently locked (Go mutexes, unlike the
// source language's, are never "poisoned" by a panicking holder, but the
// recover still protects the calling goroutine).
type Cache struct {
	mu     sync.RWMutex
	chats  map[events.ChatId]*chatEntry
	limits Limits

	currentBytes uint64
	onDirty      func()
}

// New creates an empty Cache enforcing limits.
func New(limits Limits) *Cache {
	return &Cache{
		chats:  make(map[events.ChatId]*chatEntry),
		limits: limits,
	}
}

// SetDirtyHook installs a callback invoked after every mutating ApplyEvent
// call (even if the event was a no-op). The flusher (C5) uses this to learn
// it must schedule a save.
func (c *Cache) SetDirtyHook(fn func()) {
	c.mu.Lock()
	c.onDirty = fn
	c.mu.Unlock()
}

// ApplyEvent mutates the cache per the event's kind, runs eviction, and
// returns what eviction removed.
func (c *Cache) ApplyEvent(ev events.DomainEvent) (stats EvictionStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("chat cache: recovered panic applying event: %v", r)
		}
	}()

	switch ev.Kind {
	case events.KindMessageNew:
		c.applyMessageNew(ev.MessageNew)
	case events.KindMessageEdited:
		c.applyMessageEdited(ev.MessageEdited)
	case events.KindReadReceipt:
		c.applyReadReceipt(ev.ReadReceipt)
	case events.KindTyping:
		// No state mutation.
		return EvictionStats{}
	}

	stats = c.evictLocked()
	if c.onDirty != nil {
		c.onDirty()
	}
	return stats
}

func (c *Cache) applyMessageNew(m *events.MessageNew) {
	entry, ok := c.chats[m.ChatID]
	if !ok {
		entry = newChatEntry(m.ChatID)
		c.summaryBytesAdd(entry, summaryBytes(entry.summary.Title))
		c.chats[m.ChatID] = entry
	}

	cached := CachedMessage{
		ChatID:    m.ChatID,
		MessageID: m.MessageID,
		AuthorID:  m.AuthorID,
		Timestamp: m.Timestamp,
		Text:      m.Text,
		Outgoing:  m.Outgoing,
	}

	if el, exists := entry.index[m.MessageID]; exists {
		old := el.Value.(CachedMessage)
		entry.messageBytesTotal = saturatingSub(entry.messageBytesTotal, messageBytes(old))
		el.Value = cached
		c.messageBytesAdd(entry, messageBytes(cached))
	} else {
		el := entry.messages.PushBack(cached)
		entry.index[m.MessageID] = el
		c.messageBytesAdd(entry, messageBytes(cached))
	}

	msgID := m.MessageID
	ts := m.Timestamp
	entry.summary.LastMessageID = &msgID
	entry.summary.LastMessageAt = &ts
	entry.updatedAt = m.Timestamp
}

func (c *Cache) applyMessageEdited(m *events.MessageEdited) {
	entry, ok := c.chats[m.ChatID]
	if !ok {
		return
	}
	el, ok := entry.index[m.MessageID]
	if !ok {
		return
	}
	old := el.Value.(CachedMessage)
	entry.messageBytesTotal = saturatingSub(entry.messageBytesTotal, messageBytes(old))

	updated := old
	updated.Text = m.Text
	ts := m.Timestamp
	updated.EditTimestamp = &ts
	el.Value = updated

	c.messageBytesAdd(entry, messageBytes(updated))
	entry.updatedAt = m.Timestamp
}

func (c *Cache) applyReadReceipt(r *events.ReadReceipt) {
	entry, ok := c.chats[r.ChatID]
	if !ok {
		return
	}
	zero := uint32(0)
	entry.summary.UnreadCount = &zero
	entry.updatedAt = r.Timestamp
}

func (c *Cache) messageBytesAdd(entry *chatEntry, delta uint64) {
	entry.messageBytesTotal = saturatingAdd(entry.messageBytesTotal, delta)
	c.currentBytes = saturatingAdd(c.currentBytes, delta)
}

func (c *Cache) summaryBytesAdd(entry *chatEntry, delta uint64) {
	entry.summaryBytesTotal = saturatingAdd(entry.summaryBytesTotal, delta)
	c.currentBytes = saturatingAdd(c.currentBytes, delta)
}

// evictLocked enforces the three limits in the order the spec mandates.
// Caller must hold c.mu.
func (c *Cache) evictLocked() EvictionStats {
	var stats EvictionStats

	if c.limits.MaxMessagesPerChat > 0 {
		for _, entry := range c.chats {
			for entry.messages.Len() > c.limits.MaxMessagesPerChat {
				front := entry.messages.Front()
				msg := front.Value.(CachedMessage)
				entry.messageBytesTotal = saturatingSub(entry.messageBytesTotal, messageBytes(msg))
				c.currentBytes = saturatingSub(c.currentBytes, messageBytes(msg))
				delete(entry.index, msg.MessageID)
				entry.messages.Remove(front)
				stats.MessagesRemoved++
			}
		}
	}

	if c.limits.MaxChats > 0 {
		for len(c.chats) > c.limits.MaxChats {
			victim := c.oldestChatLocked()
			if victim == 0 {
				break
			}
			c.removeChatLocked(victim)
			stats.ChatsRemoved++
		}
	}

	if c.limits.MaxBytes > 0 {
		for c.currentBytes > c.limits.MaxBytes {
			victim := c.oldestChatLocked()
			if victim == 0 {
				break
			}
			c.removeChatLocked(victim)
			stats.ChatsRemoved++
		}
	}

	return stats
}

// oldestChatLocked returns the ChatId with the smallest updatedAt, or 0 if
// the cache is empty. Caller must hold c.mu.
func (c *Cache) oldestChatLocked() events.ChatId {
	var victim events.ChatId
	found := false
	var oldest int64
	for id, entry := range c.chats {
		if !found || entry.updatedAt < oldest {
			victim = id
			oldest = entry.updatedAt
			found = true
		}
	}
	if !found {
		return 0
	}
	return victim
}

// removeChatLocked deletes a chat entry entirely and unwinds its byte
// contribution. Caller must hold c.mu.
func (c *Cache) removeChatLocked(id events.ChatId) {
	entry, ok := c.chats[id]
	if !ok {
		return
	}
	c.currentBytes = saturatingSub(c.currentBytes, entry.bytes())
	delete(c.chats, id)
}

// ChatSummaries returns a copy of every chat summary, in unspecified order.
func (c *Cache) ChatSummaries() []ChatSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChatSummary, 0, len(c.chats))
	for _, entry := range c.chats {
		out = append(out, entry.summary)
	}
	return out
}

// MessagesForChat returns a copy of the last `limit` messages for chatID in
// insertion order, or all of them if limit <= 0.
func (c *Cache) MessagesForChat(chatID events.ChatId, limit int) []CachedMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.chats[chatID]
	if !ok {
		return nil
	}

	all := make([]CachedMessage, 0, entry.messages.Len())
	for el := entry.messages.Front(); el != nil; el = el.Next() {
		all = append(all, el.Value.(CachedMessage))
	}
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}

// Snapshot returns every summary and every retained message, in
// deterministic per-chat order (messages ordered by insertion within each
// chat; chats ordered by ChatID for determinism).
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Chats: make([]ChatSummary, 0, len(c.chats)),
	}
	ids := make([]events.ChatId, 0, len(c.chats))
	for id := range c.chats {
		ids = append(ids, id)
	}
	sortChatIDs(ids)

	for _, id := range ids {
		entry := c.chats[id]
		snap.Chats = append(snap.Chats, entry.summary)
		for el := entry.messages.Front(); el != nil; el = el.Next() {
			snap.Messages = append(snap.Messages, el.Value.(CachedMessage))
		}
	}
	return snap
}

// LoadSnapshot replaces the cache's entire contents, recomputing byte
// totals and updatedAt from the snapshot's messages (latest message
// timestamp per chat, or 0 if the chat has none).
func (c *Cache) LoadSnapshot(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.chats = make(map[events.ChatId]*chatEntry, len(snap.Chats))
	c.currentBytes = 0

	for _, summary := range snap.Chats {
		entry := newChatEntry(summary.ChatID)
		entry.summary = summary
		c.summaryBytesAdd(entry, summaryBytes(summary.Title))
		c.chats[summary.ChatID] = entry
	}

	for _, msg := range snap.Messages {
		entry, ok := c.chats[msg.ChatID]
		if !ok {
			entry = newChatEntry(msg.ChatID)
			c.summaryBytesAdd(entry, summaryBytes(entry.summary.Title))
			c.chats[msg.ChatID] = entry
		}
		el := entry.messages.PushBack(msg)
		entry.index[msg.MessageID] = el
		c.messageBytesAdd(entry, messageBytes(msg))
		if msg.Timestamp > entry.updatedAt {
			entry.updatedAt = msg.Timestamp
		}
	}
}

// CurrentBytes reports the cache's current accounted byte total.
func (c *Cache) CurrentBytes() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentBytes
}

func sortChatIDs(ids []events.ChatId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

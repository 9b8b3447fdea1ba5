// Package projector реализует C8 — проекцию кэша чатов в модель представления
// для терминального интерфейса: сортировку, выбор текущего чата и форматирование
// сообщений. Сам кэш (internal/domain/chatcache) ничего не знает об отображении;
// проектор — единственное место, где сортировка и форматирование определены.
package projector

import (
	"sort"
	"strconv"
	"time"

	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
)

// ChatItem — одна строка списка чатов.
type ChatItem struct {
	ID         events.ChatId
	Title      string
	Unread     uint32
	IsSelected bool
}

// MessageItem — одно отформатированное сообщение выбранного чата.
type MessageItem struct {
	ID          events.MessageId
	AuthorLabel string
	Timestamp   string
	Text        string
	Outgoing    bool
}

// View — результат Refresh: список чатов плюс сообщения выбранного чата.
type View struct {
	Chats    []ChatItem
	Messages []MessageItem
}

// Projector хранит единственный бит UI-состояния, который кэш сам по себе
// не отслеживает: какой чат сейчас выбран. Пересобирается целиком при
// каждом Refresh, поэтому гонок с ApplyEvent не возникает — проектор только
// читает кэш через его экспортированные методы.
type Projector struct {
	selected     *events.ChatId
	messageLimit int
}

// New создаёт проектор с лимитом сообщений на выбранный чат. Ничего не
// выбрано до первого Refresh.
func New(messageLimit int) *Projector {
	return &Projector{messageLimit: messageLimit}
}

// Select фиксирует выбранный чат явным действием пользователя; следующий
// Refresh будет использовать его, если чат всё ещё присутствует в кэше.
func (p *Projector) Select(id events.ChatId) {
	selected := id
	p.selected = &selected
}

// Selected возвращает текущий выбранный чат, если он есть.
func (p *Projector) Selected() (events.ChatId, bool) {
	if p.selected == nil {
		return 0, false
	}
	return *p.selected, true
}

// Refresh пересобирает вид из текущего состояния кэша:
//  1. сортирует сводки по last_message_at (отсутствие — как 0) по убыванию,
//     при равенстве — по заголовку по возрастанию;
//  2. сохраняет прежний выбор, если чат всё ещё есть, иначе выбирает первый
//     чат из отсортированного списка, иначе не выбирает ничего;
//  3. формирует элементы списка чатов, подставляя "Chat <id>" для пустых
//     заголовков;
//  4. для выбранного чата достаёт до messageLimit последних сообщений,
//     сортирует по времени по возрастанию и форматирует их.
func (p *Projector) Refresh(cache *chatcache.Cache) View {
	summaries := cache.ChatSummaries()
	sort.Slice(summaries, func(i, j int) bool {
		li, lj := lastMessageAt(summaries[i]), lastMessageAt(summaries[j])
		if li != lj {
			return li > lj
		}
		return summaries[i].Title < summaries[j].Title
	})

	p.resolveSelection(summaries)

	chats := make([]ChatItem, 0, len(summaries))
	for _, s := range summaries {
		unread := uint32(0)
		if s.UnreadCount != nil {
			unread = *s.UnreadCount
		}
		chats = append(chats, ChatItem{
			ID:         s.ChatID,
			Title:      displayTitle(s),
			Unread:     unread,
			IsSelected: p.selected != nil && *p.selected == s.ChatID,
		})
	}

	var messages []MessageItem
	if p.selected != nil {
		messages = p.projectMessages(cache, *p.selected)
	}

	return View{Chats: chats, Messages: messages}
}

// resolveSelection реализует правило шага 2: остаться на прежнем чате, если
// он всё ещё в списке; иначе перейти на первый; иначе снять выбор.
func (p *Projector) resolveSelection(summaries []chatcache.ChatSummary) {
	if p.selected != nil {
		for _, s := range summaries {
			if s.ChatID == *p.selected {
				return
			}
		}
	}
	if len(summaries) == 0 {
		p.selected = nil
		return
	}
	first := summaries[0].ChatID
	p.selected = &first
}

func (p *Projector) projectMessages(cache *chatcache.Cache, chatID events.ChatId) []MessageItem {
	msgs := cache.MessagesForChat(chatID, p.messageLimit)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })

	items := make([]MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, MessageItem{
			ID:          m.MessageID,
			AuthorLabel: authorLabel(m),
			Timestamp:   formatTimestamp(m.Timestamp),
			Text:        m.Text,
			Outgoing:    m.Outgoing,
		})
	}
	return items
}

func lastMessageAt(s chatcache.ChatSummary) int64 {
	if s.LastMessageAt == nil {
		return 0
	}
	return *s.LastMessageAt
}

func displayTitle(s chatcache.ChatSummary) string {
	if s.Title == "" {
		return chatIDLabel(s.ChatID)
	}
	return s.Title
}

func chatIDLabel(id events.ChatId) string {
	return "Chat " + strconv.FormatInt(int64(id), 10)
}

func authorLabel(m chatcache.CachedMessage) string {
	if m.Outgoing {
		return "You"
	}
	return "User " + strconv.FormatInt(int64(m.AuthorID), 10)
}

// formatTimestamp renders a unix timestamp as HH:MM UTC, falling back to the
// raw integer for a year outside time.Format's four-digit range.
func formatTimestamp(ts int64) string {
	t := time.Unix(ts, 0).UTC()
	if t.Year() < 1 || t.Year() > 9999 {
		return strconv.FormatInt(ts, 10)
	}
	return t.Format("15:04")
}

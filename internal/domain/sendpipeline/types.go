// Package sendpipeline реализует упорядоченную по времени повторов очередь
// исходящих запросов к Telegram: постановку в очередь с ограничением на
// число одновременно удерживаемых заданий, воркер с приоритетной очередью
// на основе container/heap и классификацию ошибок на «повторить после
// паузы» / «завершить с ошибкой».
//
// По структуре соответствует send-пайплайну из original_source (mpsc +
// BinaryHeap + watch-каналы статуса), адаптированному на идиомы Go: вместо
// tokio::sync::watch используется StatusWatch на чистом sync.Mutex, вместо
// BinaryHeap — container/heap.
package sendpipeline

import (
	"fmt"
	"time"

	"telegram-userbot/internal/domain/events"
)

// SendId — идентификатор одного поставленного в очередь запроса, уникальный
// в пределах жизни Pipeline.
type SendId uint64

// RequestKind различает три вида исходящих запросов.
type RequestKind int

const (
	KindSendText RequestKind = iota
	KindEditText
	KindDeleteMessage
)

func (k RequestKind) String() string {
	switch k {
	case KindSendText:
		return "send_text"
	case KindEditText:
		return "edit_text"
	case KindDeleteMessage:
		return "delete_message"
	default:
		return "unknown"
	}
}

// SendRequest описывает один исходящий запрос. Поля, не относящиеся к Kind,
// игнорируются — например, ReplyTo валиден только при KindSendText.
type SendRequest struct {
	Kind      RequestKind
	PeerID    events.ChatId
	Text      string
	ReplyTo   *events.MessageId // только KindSendText
	MessageID events.MessageId  // KindEditText, KindDeleteMessage
}

// SendResult — итог успешного исполнения запроса.
type SendResult struct {
	Kind          RequestKind
	MessageID     events.MessageId
	DeletedCount  int // только KindDeleteMessage
}

// SendStatusKind перечисляет стадии жизненного цикла задания.
type SendStatusKind int

const (
	StatusQueued SendStatusKind = iota
	StatusSending
	StatusSent
	StatusFailed
)

// SendFailure описывает терминальную неудачу доставки.
type SendFailure struct {
	Error     string
	Attempts  uint32
	Retryable bool
}

// SendStatus — текущее состояние одного задания. Ровно одно из Result/Failure
// заполнено, если Kind соответственно Sent/Failed.
type SendStatus struct {
	Kind        SendStatusKind
	Attempt     uint32
	NextRetryIn *time.Duration // только Queued после неуспешной попытки
	Result      *SendResult    // только Sent
	Failure     *SendFailure   // только Failed
}

// Config параметрирует пайплайн. Нулевое значение MaxRetryAttempts (nil)
// означает неограниченное число попыток.
type Config struct {
	QueueLimit       int
	MaxRetryAttempts *uint32
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

// DefaultConfig возвращает параметры по умолчанию, совпадающие с исходной
// реализацией: лимит очереди 256, база задержки 500мс, потолок 30с,
// попытки не ограничены.
func DefaultConfig() Config {
	return Config{
		QueueLimit:     256,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  30 * time.Second,
	}
}

// ErrQueueFull возвращается Enqueue, если все QueueLimit разрешений заняты.
type ErrQueueFull struct{}

func (ErrQueueFull) Error() string { return "send queue is full" }

// ErrClosed возвращается Enqueue после Shutdown.
type ErrClosed struct{}

func (ErrClosed) Error() string { return "send pipeline is closed" }

// ErrInvalidMessageId — ошибка транспорта (C7): message id не помещается в
// 32-битное поле протокола. Не подлежит повтору.
type ErrInvalidMessageId struct {
	Field string
	Value int64
}

func (e ErrInvalidMessageId) Error() string {
	return fmt.Sprintf("invalid message id for %s: %d", e.Field, e.Value)
}

// FloodWaitError сигнализирует о требовании сервера подождать: FLOOD_WAIT,
// SLOWMODE_WAIT, FLOOD_PREMIUM_WAIT. Delay нулевой длины не считается
// ошибкой, требующей паузы, и классифицируется как терминальный отказ без
// повтора (Retryable=false).
type FloodWaitError struct {
	Delay time.Duration
}

func (e FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.Delay)
}

// RPCError оборачивает код и имя ошибки, вернувшейся от сервера Telegram
// (вне флуд-контроля).
type RPCError struct {
	Code int
	Name string
}

func (e RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Name)
}

// TransportError оборачивает ошибки уровня соединения: I/O, разрыв
// транспорта, десериализация, сброс запроса, неверный DC. Все они
// считаются временными и подлежат повтору с экспоненциальной паузой.
type TransportError struct {
	Err error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

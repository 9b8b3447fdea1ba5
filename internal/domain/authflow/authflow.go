// Package authflow реализует C9 — явный, основанный на исходах автомат
// авторизации поверх транспорта, который умеет только отправлять RPC.
// В отличие от gotd/td собственного auth.Flow (см. teacher's
// internal/telegram/auth/auth.go, TerminalAuthenticator), здесь нет
// встроенного интерактивного цикла: каждый шаг принимает то, что уже
// собрал вызывающий (код, пароль), и возвращает исход из закрытого
// множества, так что и телефонный, и QR-путь можно тестировать скриптовым
// транспортом без терминала.
package authflow

import (
	"context"
	"encoding/base64"
)

// LoginToken непрозрачен для вызывающего: его значение имеет смысл только
// для Transport, который его выдал и которому он будет передан обратно в
// SignIn.
type LoginToken struct {
	raw any
}

// PasswordToken аналогично непрозрачен; заполняется транспортом при исходе
// PasswordRequired и передаётся обратно в CheckPassword.
type PasswordToken struct {
	raw any
}

// OutcomeKind — закрытое множество исходов SignIn/CheckPassword.
type OutcomeKind int

const (
	OutcomeAuthorized OutcomeKind = iota
	OutcomePasswordRequired
	OutcomeInvalidCode
	OutcomeInvalidPassword
	OutcomeSignUpRequired
)

// Outcome описывает результат одного шага телефонного входа.
// PasswordToken заполнен только при Kind == OutcomePasswordRequired.
type Outcome struct {
	Kind          OutcomeKind
	PasswordToken PasswordToken
}

// QrOutcomeKind — закрытое множество исходов QR-входа.
type QrOutcomeKind int

const (
	QrAuthorized QrOutcomeKind = iota
	QrPending
)

// QrOutcome описывает результат ExportLoginToken/ImportLoginToken. Token
// содержит сырые байты, которые нужно закодировать в URL для отображения
// пользователю; ExpiresAt и DCID опциональны, как в TL-схеме.
type QrOutcome struct {
	Kind      QrOutcomeKind
	Token     []byte
	ExpiresAt *int64
	DCID      *int
}

// Transport — единственная зависимость от протокола; реализуется адаптером
// над tg.Client (см. internal/telegram/authtransport). Ничего в этом пакете не знает
// о gotd/td напрямую.
type Transport interface {
	IsAuthorized(ctx context.Context) (bool, error)
	RequestLoginCode(ctx context.Context, phone, apiHash string) (LoginToken, error)
	SignIn(ctx context.Context, token LoginToken, code string) (Outcome, error)
	CheckPassword(ctx context.Context, token PasswordToken, password string) (Outcome, error)
	ExportLoginToken(ctx context.Context, apiID int, apiHash string, exceptIDs []int64) (QrOutcome, error)
	ImportLoginToken(ctx context.Context, token []byte, dcID *int) (QrOutcome, error)
}

// NewLoginToken и NewPasswordToken позволяют транспортам конструировать
// непрозрачные токены без экспорта их внутреннего поля.
func NewLoginToken(raw any) LoginToken       { return LoginToken{raw: raw} }
func NewPasswordToken(raw any) PasswordToken { return PasswordToken{raw: raw} }

// Raw возвращает значение, которое транспорт положил в токен. Предназначен
// только для реализаций Transport, которым нужно различать собственные
// внутренние структуры при приёме токена обратно.
func (t LoginToken) Raw() any    { return t.raw }
func (t PasswordToken) Raw() any { return t.raw }

// Flow — точка входа, оборачивающая один Transport. Сам по себе он не
// хранит состояние сессии входа — каждый вызов Begin* создаёт отдельную
// сессию, что позволяет вести параллельные попытки входа разными номерами
// (маловероятно в реальном CLI, но упрощает тесты).
type Flow struct {
	transport Transport
}

// New оборачивает транспорт в автомат авторизации.
func New(transport Transport) *Flow {
	return &Flow{transport: transport}
}

// IsAuthorized проксирует в транспорт без изменений.
func (f *Flow) IsAuthorized(ctx context.Context) (bool, error) {
	return f.transport.IsAuthorized(ctx)
}

// PhoneSession хранит состояние одной попытки телефонного входа между
// шагами: код и (если потребуется) пароль вводятся в отдельных вызовах
// вызывающего кода, поэтому LoginToken и PasswordToken должны пережить
// возврат из BeginPhoneLogin.
type PhoneSession struct {
	transport     Transport
	loginToken    LoginToken
	passwordToken PasswordToken
	havePassword  bool
}

// BeginPhoneLogin запрашивает код подтверждения и возвращает сессию,
// хранящую токен, который понадобится на шаге SubmitCode.
func (f *Flow) BeginPhoneLogin(ctx context.Context, phone, apiHash string) (*PhoneSession, error) {
	token, err := f.transport.RequestLoginCode(ctx, phone, apiHash)
	if err != nil {
		return nil, err
	}
	return &PhoneSession{transport: f.transport, loginToken: token}, nil
}

// SubmitCode передаёт введённый код в транспорт. На InvalidCode вызывающий
// должен заново запросить код у пользователя и повторить вызов с той же
// сессией (LoginToken не расходуется ошибкой). На PasswordRequired сессия
// запоминает PasswordToken для последующего SubmitPassword.
func (s *PhoneSession) SubmitCode(ctx context.Context, code string) (Outcome, error) {
	outcome, err := s.transport.SignIn(ctx, s.loginToken, code)
	if err != nil {
		return Outcome{}, err
	}
	if outcome.Kind == OutcomePasswordRequired {
		s.passwordToken = outcome.PasswordToken
		s.havePassword = true
	}
	return outcome, nil
}

// SubmitPassword завершает двухфакторный вход. Вызывать только после
// SubmitCode вернул OutcomePasswordRequired; иначе ErrNoPendingPassword.
func (s *PhoneSession) SubmitPassword(ctx context.Context, password string) (Outcome, error) {
	if !s.havePassword {
		return Outcome{}, ErrNoPendingPassword{}
	}
	return s.transport.CheckPassword(ctx, s.passwordToken, password)
}

// ErrNoPendingPassword is returned by SubmitPassword when no prior
// SubmitCode call reported OutcomePasswordRequired.
type ErrNoPendingPassword struct{}

func (ErrNoPendingPassword) Error() string {
	return "authflow: no pending password challenge for this session"
}

// QrSession хранит состояние QR-входа: последний экспортированный токен
// и, если Telegram перенаправил вход на другой дата-центр, его id — оба
// значения нужны для повторного импорта на следующем опросе.
type QrSession struct {
	transport Transport
	token     []byte
	dcID      *int
}

// BeginQrLogin экспортирует первый login-токен. Если вход уже выполнен
// (учётная запись уже авторизована этим же клиентом), исход может быть
// QrAuthorized сразу, без отображения URL.
func (f *Flow) BeginQrLogin(ctx context.Context, apiID int, apiHash string, exceptIDs []int64) (*QrSession, QrOutcome, error) {
	outcome, err := f.transport.ExportLoginToken(ctx, apiID, apiHash, exceptIDs)
	if err != nil {
		return nil, QrOutcome{}, err
	}
	session := &QrSession{transport: f.transport}
	if outcome.Kind == QrPending {
		session.token = outcome.Token
		session.dcID = outcome.DCID
	}
	return session, outcome, nil
}

// LoginURL формирует ссылку tg://login для текущего токена сессии,
// закодированную в base64url без паддинга, как того требует QR-вход.
func (s *QrSession) LoginURL() string {
	return "tg://login?token=" + base64.RawURLEncoding.EncodeToString(s.token)
}

// Poll повторно импортирует текущий токен в текущий DC. Вызывающий должен
// звать этот метод после того, как пользователь успел отсканировать код,
// обычно по таймеру. Если исход снова QrPending с новым телом токена или
// другим DC, сессия обновляется и вызывающий обязан заново отрисовать
// LoginURL.
func (s *QrSession) Poll(ctx context.Context) (QrOutcome, error) {
	outcome, err := s.transport.ImportLoginToken(ctx, s.token, s.dcID)
	if err != nil {
		return QrOutcome{}, err
	}
	if outcome.Kind == QrPending {
		s.token = outcome.Token
		s.dcID = outcome.DCID
	}
	return outcome, nil
}

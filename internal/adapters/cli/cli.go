// Package cli — интерактивная консоль поверх readline для навигации по
// кэшированным чатам, просмотра сообщений и отправки/правки/удаления через
// очередь отправки. Сервис стартует фоном и интегрируется в lifecycle:
// Start/Stop идемпотентны, Ctrl-C на пустой строке инициирует общий
// shutdown — тот же приём, что и в предыдущей версии этой консоли.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-userbot/internal/domain/authflow"
	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/projector"
	"telegram-userbot/internal/domain/sendpipeline"
	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/pr"

	"rsc.io/qr"
)

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

var commandDescriptors = []commandDescriptor{
	{name: "list", description: "Print cached chats, most recent first"},
	{name: "open <n>", description: "Select chat number n from the last 'list' output"},
	{name: "msg <text>", description: "Send text to the currently open chat"},
	{name: "edit <id> <text>", description: "Edit message id in the currently open chat"},
	{name: "delete <id>", description: "Delete message id in the currently open chat"},
	{name: "whoami", description: "Display information about the current account"},
	{name: "dump", description: "Pretty-print the full cache snapshot for debugging"},
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "exit", description: "Stop the CLI and terminate the service"},
}

// Service инкапсулирует интерактивную консоль. projector держит sort/select
// state поверх cache; pipeline исполняет send/edit/delete.
type Service struct {
	cache     *chatcache.Cache
	view      *projector.Projector
	pipeline  *sendpipeline.Pipeline
	self      func(ctx context.Context) (string, int64, error)
	stopApp   context.CancelFunc

	lastList []projector.ChatItem // индексация "open <n>" по последнему выводу list

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService собирает CLI-сервис. self возвращает display name и id текущего
// аккаунта для "whoami"; обычно это тонкая обёртка над C12's Client.Self.
func NewService(
	cache *chatcache.Cache,
	view *projector.Projector,
	pipeline *sendpipeline.Pipeline,
	self func(ctx context.Context) (string, int64, error),
	stopApp context.CancelFunc,
) *Service {
	return &Service{cache: cache, view: view, pipeline: pipeline, self: self, stopApp: stopApp}
}

// Start запускает основной цикл в отдельной горутине. Повторные вызовы безопасно игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Go(func() {
			s.run(runCtx)
		})
	})
}

// Stop прерывает readline, отменяет локальный контекст и дожидается завершения run-цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	pr.Println("Chat console started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		line, err := pr.Rl().Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}

		cmd := strings.TrimSpace(line)
		if s.handleCommand(ctx, cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers mirrors the previous console's Ctrl-C/'?' shortcuts.
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}
	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

func printCommandHelp() {
	pr.Println("Available commands:")
	for _, d := range commandDescriptors {
		pr.Printf("  %-16s - %s\n", d.name, d.description)
	}
}

func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, strings.Fields(d.name)[0])
	}
	return strings.Join(names, ", ")
}

func (s *Service) handleCommand(ctx context.Context, cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "help":
		printCommandHelp()
	case "list":
		s.handleList()
	case "open":
		s.handleOpen(fields[1:])
	case "msg":
		s.handleSend(ctx, strings.TrimSpace(strings.TrimPrefix(cmd, "msg")))
	case "edit":
		s.handleEdit(ctx, fields[1:])
	case "delete":
		s.handleDelete(ctx, fields[1:])
	case "whoami":
		s.handleWhoami(ctx)
	case "dump":
		pr.PP(s.cache.Snapshot())
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	default:
		pr.Println("unknown command:", fields[0])
	}
	return false
}

func (s *Service) handleList() {
	view := s.view.Refresh(s.cache)
	s.lastList = view.Chats
	if len(view.Chats) == 0 {
		pr.Println("No chats cached yet.")
		return
	}
	for i, chat := range view.Chats {
		marker := " "
		if chat.IsSelected {
			marker = "*"
		}
		pr.Printf("%s %2d. %s (unread=%d)\n", marker, i+1, chat.Title, chat.Unread)
	}
	if len(view.Messages) > 0 {
		pr.Println("--- messages ---")
		for _, m := range view.Messages {
			dir := "<-"
			if m.Outgoing {
				dir = "->"
			}
			pr.Printf("[%s] %s %s: %s\n", m.Timestamp, dir, m.AuthorLabel, m.Text)
		}
	}
}

func (s *Service) handleOpen(args []string) {
	if len(args) != 1 {
		pr.ErrPrintln("usage: open <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.lastList) {
		pr.ErrPrintln("open: out of range, run 'list' first")
		return
	}
	s.view.Select(s.lastList[n-1].ID)
	pr.Printf("Opened chat %q.\n", s.lastList[n-1].Title)
	s.handleList()
}

func (s *Service) handleSend(ctx context.Context, text string) {
	if text == "" {
		pr.ErrPrintln("usage: msg <text>")
		return
	}
	chatID, ok := s.view.Selected()
	if !ok {
		pr.ErrPrintln("no chat open, use 'open <n>' first")
		return
	}
	s.enqueueAndWait(ctx, sendpipeline.SendRequest{Kind: sendpipeline.KindSendText, PeerID: chatID, Text: text})
}

func (s *Service) handleEdit(ctx context.Context, args []string) {
	if len(args) < 2 {
		pr.ErrPrintln("usage: edit <id> <text>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		pr.ErrPrintln("edit: invalid message id")
		return
	}
	chatID, ok := s.view.Selected()
	if !ok {
		pr.ErrPrintln("no chat open, use 'open <n>' first")
		return
	}
	text := strings.Join(args[1:], " ")
	s.enqueueAndWait(ctx, sendpipeline.SendRequest{
		Kind: sendpipeline.KindEditText, PeerID: chatID, MessageID: events.MessageId(id), Text: text,
	})
}

func (s *Service) handleDelete(ctx context.Context, args []string) {
	if len(args) != 1 {
		pr.ErrPrintln("usage: delete <id>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		pr.ErrPrintln("delete: invalid message id")
		return
	}
	chatID, ok := s.view.Selected()
	if !ok {
		pr.ErrPrintln("no chat open, use 'open <n>' first")
		return
	}
	s.enqueueAndWait(ctx, sendpipeline.SendRequest{
		Kind: sendpipeline.KindDeleteMessage, PeerID: chatID, MessageID: events.MessageId(id),
	})
}

const sendWaitTimeout = 30 * time.Second

func (s *Service) enqueueAndWait(ctx context.Context, req sendpipeline.SendRequest) {
	ticket, err := s.pipeline.Enqueue(req)
	if err != nil {
		pr.ErrPrintln("enqueue failed:", err)
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, sendWaitTimeout)
	defer cancel()
	for {
		status, ok := ticket.WaitChange(waitCtx)
		if !ok {
			pr.ErrPrintln("timed out waiting for send result")
			return
		}
		switch status.Kind {
		case sendpipeline.StatusSent:
			pr.Println("ok.")
			return
		case sendpipeline.StatusFailed:
			pr.ErrPrintln("failed:", status.Err)
			return
		}
	}
}

func (s *Service) handleWhoami(ctx context.Context) {
	if s.self == nil {
		pr.ErrPrintln("account info is not available")
		return
	}
	name, id, err := s.self(ctx)
	if err != nil {
		pr.ErrPrintln("whoami error:", err)
		return
	}
	pr.Println(fmt.Sprintf("You are: %s, id=%d", name, id))
}

// AuthCLI runs the phone or QR login flow interactively over readline,
// rendering the QR code as terminal ASCII art when that method is chosen.
// apiID/apiHash are the app's own MTProto credentials (config.Env().APIID/
// APIHash): auth.exportLoginToken mints a token scoped to them, so the QR
// path needs the real values, not zero/empty placeholders.
// Grounded on the same readline plumbing used by Service, kept as a free
// function since it only runs once, before the chat console starts.
func AuthCLI(ctx context.Context, flow *authflow.Flow, method string, apiID int, apiHash string) error {
	authorized, err := flow.IsAuthorized(ctx)
	if err != nil {
		return err
	}
	if authorized {
		return nil
	}

	switch method {
	case "qr":
		return runQRLogin(ctx, flow, apiID, apiHash)
	default:
		return runPhoneLogin(ctx, flow)
	}
}

func runPhoneLogin(ctx context.Context, flow *authflow.Flow) error {
	pr.Print("Phone number: ")
	phone, err := pr.Rl().Readline()
	if err != nil {
		return err
	}
	session, err := flow.BeginPhoneLogin(ctx, strings.TrimSpace(phone), "")
	if err != nil {
		return err
	}

	for {
		pr.Print("Login code: ")
		code, err := pr.Rl().Readline()
		if err != nil {
			return err
		}
		outcome, err := session.SubmitCode(ctx, strings.TrimSpace(code))
		if err != nil {
			return err
		}
		switch outcome.Kind {
		case authflow.OutcomeAuthorized:
			pr.Println("Logged in.")
			return nil
		case authflow.OutcomeInvalidCode:
			pr.ErrPrintln("invalid code, try again")
			continue
		case authflow.OutcomePasswordRequired:
			return submitPassword(ctx, session)
		case authflow.OutcomeSignUpRequired:
			return fmt.Errorf("authflow: account sign-up is not supported by this client")
		}
	}
}

func submitPassword(ctx context.Context, session *authflow.PhoneSession) error {
	for {
		password, err := pr.ReadPassword("Two-factor password: ")
		if err != nil {
			return err
		}
		outcome, err := session.SubmitPassword(ctx, strings.TrimSpace(password))
		if err != nil {
			return err
		}
		switch outcome.Kind {
		case authflow.OutcomeAuthorized:
			pr.Println("Logged in.")
			return nil
		case authflow.OutcomeInvalidPassword:
			pr.ErrPrintln("invalid password, try again")
			continue
		}
	}
}

const qrPollInterval = 2 * time.Second

func runQRLogin(ctx context.Context, flow *authflow.Flow, apiID int, apiHash string) error {
	session, outcome, err := flow.BeginQrLogin(ctx, apiID, apiHash, nil)
	if err != nil {
		return err
	}
	if outcome.Kind == authflow.QrAuthorized {
		pr.Println("Logged in.")
		return nil
	}

	lastURL := session.LoginURL()
	printQR(lastURL)

	ticker := time.NewTicker(qrPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			next, err := session.Poll(ctx)
			if err != nil {
				return err
			}
			switch next.Kind {
			case authflow.QrAuthorized:
				pr.Println("Logged in.")
				return nil
			case authflow.QrPending:
				if url := session.LoginURL(); url != lastURL {
					lastURL = url
					printQR(lastURL)
				}
			}
		}
	}
}

// printQR renders url as a QR code directly in the terminal using half-block
// characters, two modules per printed row, so the code stays readable
// without needing a separate image viewer.
func printQR(url string) {
	code, err := qr.Encode(url, qr.L)
	if err != nil {
		pr.ErrPrintln("qr encode failed, login with this URL instead:", url)
		return
	}
	size := code.Size
	for y := 0; y < size; y += 2 {
		var line strings.Builder
		for x := 0; x < size; x++ {
			top := code.Black(x, y)
			bottom := y+1 < size && code.Black(x, y+1)
			switch {
			case top && bottom:
				line.WriteRune('█')
			case top && !bottom:
				line.WriteRune('▀')
			case !top && bottom:
				line.WriteRune('▄')
			default:
				line.WriteRune(' ')
			}
		}
		pr.Println(line.String())
	}
	pr.Println("Or open this URL on a device signed in to Telegram:", url)
}

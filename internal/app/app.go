// Package app — верхний уровень сборки и инициализации терминального
// MTProto-клиента. Здесь связываются конфигурация, хранилища сессии/кэша,
// сетевой слой (gotd/telegram), пайплайн событий, очередь отправки и
// интерактивная консоль. Отсюда стартует цикл обработки событий и
// обеспечивается корректный shutdown.
package app

import (
	"context"
	"fmt"
	"time"

	"telegram-userbot/internal/adapters/cli"
	"telegram-userbot/internal/domain/authflow"
	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/eventstream"
	"telegram-userbot/internal/domain/projector"
	"telegram-userbot/internal/domain/sendpipeline"
	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/session"
	"telegram-userbot/internal/infra/telegram/cache"
	"telegram-userbot/internal/telegram/authtransport"
	"telegram-userbot/internal/telegram/pump"
	"telegram-userbot/internal/telegram/sendtransport"
	"telegram-userbot/internal/telegram/transport"

	"github.com/gotd/td/tg"
)

// messageHistoryLimit bounds how many of a selected chat's messages the CLI
// projects per Refresh; independent of the cache's own eviction limits.
const messageHistoryLimit = 50

// App агрегирует зависимости движка и управляет их связью.
// Отвечает за:
//   - конфигурацию, хранилище сессии/состояния апдейтов и MTProto-транспорт,
//   - конвейер доменных событий (pump -> mapper -> eventstream),
//   - кэш чатов с персистентностью и очередь отправки сообщений,
//   - интерактивную консоль поверх всего перечисленного,
//   - запуск Runner, который оркестрирует жизненный цикл и graceful shutdown.
type App struct {
	fileStorage *session.FileStorage
	stateBox    *session.StateBox
	client      *transport.Client
	driver      *events.Driver
	stream      *eventstream.Stream
	cache       *chatcache.Cache
	store       *chatcache.Store
	flusher     *chatcache.Flusher
	pipeline    *sendpipeline.Pipeline
	view        *projector.Projector
	cliService  *cli.Service
	runner      *Runner

	ctx  context.Context
	stop context.CancelFunc
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация
// выполняется в Init.
func NewApp() *App {
	return &App{}
}

// Init связывает компоненты приложения и подготавливает их к запуску:
//  1. хранилища сессии и состояния апдейтов,
//  2. пампа апдейтов и MTProto-транспорт (gotd/td),
//  3. драйвер доменных событий поверх eventstream,
//  4. кэш чатов с SQLite-персистентностью и дебаунс-флашером,
//  5. очередь отправки поверх реального RPC-транспорта,
//  6. проектор представления и интерактивная консоль,
//  7. Runner, оркестрирующий запуск и остановку всего перечисленного.
func (a *App) Init(ctx context.Context, stop context.CancelFunc) error {
	logger.Info("tgengine initializing...")

	a.ctx = ctx
	a.stop = stop

	a.fileStorage = &session.FileStorage{Path: config.Env().SessionPath}
	stateBox, err := session.OpenStateBox(config.Env().StatePath)
	if err != nil {
		return fmt.Errorf("open state box: %w", err)
	}
	a.stateBox = stateBox

	a.stream = eventstream.New(config.Env().UpdateBuffer)
	a.driver = events.NewDriver(streamSink{a.stream})

	p := pump.New(config.Env().UpdateBuffer)
	a.client = transport.New(transport.Options{
		SessionStorage: a.fileStorage,
		StateStorage:   a.stateBox,
		Pump:           p,
	})

	a.cache = chatcache.New(chatcache.Limits{
		MaxChats:           config.Env().CacheMaxChats,
		MaxMessagesPerChat: config.Env().CacheMaxMessagesPerChat,
		MaxBytes:           uint64(config.Env().CacheMaxBytes),
	})
	store, err := chatcache.OpenStore(config.Env().CacheDBPath)
	if err != nil {
		return fmt.Errorf("open chat cache store: %w", err)
	}
	a.store = store
	a.flusher = chatcache.NewFlusher(a.cache, a.store, debounceDuration(config.Env().CacheFlushDebounceMS))
	a.cache.SetDirtyHook(a.flusher.Dirty)

	if snap, loadErr := a.store.Load(ctx); loadErr != nil {
		logger.Errorf("load chat cache snapshot: %v", loadErr)
	} else {
		a.cache.LoadSnapshot(snap)
	}

	cache.Init(ctx, a.client.API())
	if err := cache.BuildPeerCache(); err != nil {
		logger.Errorf("peer cache warm-up failed, group/channel sends may fail until seen live: %v", err)
	}
	resolver := sendtransport.NewPeerCacheResolver(globalPeerCache{})
	sendCfg := sendpipeline.Config{
		QueueLimit:       config.Env().SendQueueLimit,
		MaxRetryAttempts: retryAttemptsPtr(config.Env().SendRetryMaxAttempts),
		RetryBaseDelay:   debounceDuration(config.Env().SendRetryBaseDelayMS),
		RetryMaxDelay:    debounceDuration(config.Env().SendRetryMaxDelayMS),
	}
	a.pipeline = sendpipeline.New(sendtransport.New(a.client.API(), resolver), sendCfg)

	a.view = projector.New(messageHistoryLimit)

	authFlow := authflow.New(authtransport.New(a.client.Auth(), a.client.API()))

	a.cliService = cli.NewService(a.cache, a.view, a.pipeline, a.selfInfo, a.stop)

	a.runner = NewRunner(a.client, p, a.driver, a.stream, a.cache, a.flusher, a.pipeline, a.cliService, authFlow, a.stop)

	return nil
}

// Run делегирует запуск основного цикла Runner'у.
func (a *App) Run() error {
	return a.runner.Run(a.ctx)
}

func (a *App) selfInfo(ctx context.Context) (string, int64, error) {
	self, err := a.client.Self(ctx)
	if err != nil {
		return "", 0, err
	}
	name := self.FirstName
	if self.LastName != "" {
		name += " " + self.LastName
	}
	if self.Username != "" {
		name += " (@" + self.Username + ")"
	}
	return name, self.ID, nil
}

// streamSink adapts *eventstream.Stream to events.EventSink.
type streamSink struct{ stream *eventstream.Stream }

func (s streamSink) Publish(ev events.DomainEvent) { s.stream.Publish(ev) }

// globalPeerCache adapts the package-level internal/infra/telegram/cache
// singleton to the instance-shaped interface sendtransport expects.
type globalPeerCache struct{}

func (globalPeerCache) GetInputPeerByKind(class string, id int64) (tg.InputPeerClass, error) {
	return cache.GetInputPeerByKind(class, id)
}

// debounceDuration converts a millisecond config value into a Duration.
func debounceDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// retryAttemptsPtr converts the config's "0 means unlimited" convention
// into sendpipeline.Config's *uint32, where nil means unlimited.
func retryAttemptsPtr(attempts int) *uint32 {
	if attempts <= 0 {
		return nil
	}
	v := uint32(attempts)
	return &v
}

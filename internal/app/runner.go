// Package app реализует верхний уровень управления жизненным циклом
// терминального MTProto-клиента. Файл runner.go — точка оркестрации: здесь
// выполняется авторизация, стартует драйвер событий и очередь отправки, и
// организуется корректный graceful shutdown.
package app

import (
	"context"
	"sync"

	"telegram-userbot/internal/adapters/cli"
	"telegram-userbot/internal/domain/authflow"
	"telegram-userbot/internal/domain/chatcache"
	"telegram-userbot/internal/domain/events"
	"telegram-userbot/internal/domain/eventstream"
	"telegram-userbot/internal/domain/sendpipeline"
	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/telegram/connection"
	"telegram-userbot/internal/telegram/pump"
	"telegram-userbot/internal/telegram/transport"

	"github.com/go-faster/errors"
	tgupdates "github.com/gotd/td/telegram/updates"
)

// Runner инкапсулирует сценарий запуска и остановки движка и связанных
// подсистем. Отвечает за:
//   - авторизацию (interactive phone/QR) перед стартом основного цикла,
//   - линейный запуск сервисов в правильном порядке,
//   - корректное завершение: сначала останавливаются сервисы (консоль,
//     пайплайн отправки, кэш), затем гасится MTProto-движок,
//   - интеграцию с консолью.
type Runner struct {
	client     *transport.Client
	pump       *pump.Pump
	driver     *events.Driver
	stream     *eventstream.Stream
	cache      *chatcache.Cache
	flusher    *chatcache.Flusher
	pipeline   *sendpipeline.Pipeline
	authFlow   *authflow.Flow
	cliService *cli.Service
	mainCancel context.CancelFunc

	cacheDone chan struct{}
	updatesWG sync.WaitGroup
}

// NewRunner подготавливает Runner с переданными зависимостями.
func NewRunner(
	client *transport.Client,
	p *pump.Pump,
	driver *events.Driver,
	stream *eventstream.Stream,
	cache *chatcache.Cache,
	flusher *chatcache.Flusher,
	pipeline *sendpipeline.Pipeline,
	cliService *cli.Service,
	authFlow *authflow.Flow,
	mainCancel context.CancelFunc,
) *Runner {
	return &Runner{
		client:     client,
		pump:       p,
		driver:     driver,
		stream:     stream,
		cache:      cache,
		flusher:    flusher,
		pipeline:   pipeline,
		cliService: cliService,
		authFlow:   authFlow,
		mainCancel: mainCancel,
	}
}

// Run — главный цикл движка. Подключается, проходит авторизацию, запускает
// узлы обработки и блокируется до завершения контекста клиента.
func (r *Runner) Run(ctx context.Context) error {
	return r.client.Run(ctx, func(runCtx context.Context) error {
		logger.Info("tgengine running...")

		if err := cli.AuthCLI(runCtx, r.authFlow, config.Env().AuthDefaultMethod, config.Env().APIID, config.Env().APIHash); err != nil {
			return errors.Wrap(err, "auth")
		}

		self, err := r.client.Self(runCtx)
		if err != nil {
			return err
		}
		logger.Infof("logged in as %s %s (@%s, id=%d)", self.FirstName, self.LastName, self.Username, self.ID)

		r.startAllServices(runCtx, self.ID)
		defer r.stopAllServices()

		<-runCtx.Done()
		return runCtx.Err()
	})
}

func (r *Runner) startAllServices(ctx context.Context, selfID int64) {
	logger.Debug("starting service event_driver")
	go r.driver.Run(ctx, r.pump)
	logger.Debug("service event_driver started")

	logger.Debug("starting service cache_subscriber")
	r.cacheDone = make(chan struct{})
	go r.runCacheSubscriber(ctx)
	logger.Debug("service cache_subscriber started")

	logger.Debug("starting service updates_manager")
	r.updatesWG.Go(func() {
		mgrErr := r.client.UpdatesMgr.Run(ctx, r.client.API(), selfID, tgupdates.AuthOptions{
			Forget: false,
			OnStart: func(_ context.Context) {
				logger.Debug("updates manager started")
			},
		})
		if mgrErr != nil && !errors.Is(mgrErr, context.Canceled) {
			logger.Errorf("updates manager run: %v", mgrErr)
			r.mainCancel()
		}
	})
	logger.Debug("service updates_manager started")

	logger.Debug("starting service cli")
	r.cliService.Start(ctx)
	logger.Debug("service cli started")
}

// runCacheSubscriber drains the event stream into the chat cache for as
// long as ctx is alive; it is the one place outside tests that calls
// cache.ApplyEvent.
func (r *Runner) runCacheSubscriber(ctx context.Context) {
	defer close(r.cacheDone)
	receiver := r.stream.Subscribe()
	defer receiver.Close()
	for {
		ev, _, ok := receiver.Recv(ctx)
		if !ok {
			return
		}
		r.cache.ApplyEvent(ev)
	}
}

func (r *Runner) stopAllServices() {
	logger.Debug("stopping service cli")
	r.cliService.Stop()
	logger.Debug("service cli stopped")

	logger.Debug("stopping service updates_manager")
	r.updatesWG.Wait()
	logger.Debug("service updates_manager stopped")

	logger.Debug("stopping service cache_subscriber")
	<-r.cacheDone
	logger.Debug("service cache_subscriber stopped")

	logger.Debug("stopping service event_driver")
	<-r.driver.Done()
	logger.Debug("service event_driver stopped")

	logger.Debug("stopping service send_pipeline")
	r.pipeline.Shutdown()
	logger.Debug("service send_pipeline stopped")

	logger.Debug("stopping service cache_flusher")
	r.flusher.Shutdown()
	<-r.flusher.Done()
	logger.Debug("service cache_flusher stopped")

	logger.Debug("stopping service connection_manager")
	connection.Shutdown()
	logger.Debug("service connection_manager stopped")
}

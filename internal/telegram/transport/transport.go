// Package transport собирает MTProto-клиент gotd/td поверх C1 (pump): именно
// здесь конструируется telegram.Client, навешивается flood-wait middleware и
// организуется цикл переподключения с экспоненциальной задержкой.
//
// Заземлено на teacher's internal/app/app.go (сборка telegram.Options,
// DeviceConfig, tgupdates.Config) и internal/app/runner.go (вложенный запуск
// waiter.Run(clientCtx, func() { client.Run(ctx, func() {...}) }), а также на
// internal/infra/telegram/connection (учёт online/offline состояния,
// перенесён без доменной специфики уведомлений).
package transport

import (
	"context"
	"fmt"
	"time"

	"telegram-userbot/internal/infra/config"
	"telegram-userbot/internal/infra/logger"
	"telegram-userbot/internal/infra/telegram/connection"
	"telegram-userbot/internal/telegram/pump"

	"github.com/cenkalti/backoff/v4"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/telegram"
	tdauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	tgupdates "github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"github.com/gotd/td/tg"
)

// Options собирает всё, что нужно для постройки Client: хранилище сессии,
// хранилище состояния апдейтов, пампу, выбор тестового DC.
type Options struct {
	SessionStorage telegram.SessionStorage
	StateStorage   tgupdates.StateStorage
	Pump           *pump.Pump
	UseTestDC      bool
	DeviceModel    string
	SystemVersion  string
	AppVersion     string
}

// Client оборачивает *telegram.Client, *tg.Client и диспетчер апдейтов, и
// умеет запускаться с бесконечным переподключением, пока вызывающий не
// отменит переданный контекст.
type Client struct {
	Dispatcher *tg.UpdateDispatcher
	UpdatesMgr *tgupdates.Manager

	tg     *telegram.Client
	waiter *floodwait.Waiter
}

const (
	reconnectInitialInterval = 500 * time.Millisecond
	reconnectMaxInterval     = 30 * time.Second
)

// New строит Client из Options. Диспетчер и менеджер апдейтов создаются
// здесь, а не передаются снаружи, т.к. и pump.Register, и
// tgupdates.Config{Handler: dispatcher} должны ссылаться на один и тот же
// диспетчер.
func New(opts Options) *Client {
	dispatcher := tg.NewUpdateDispatcher()
	opts.Pump.Register(&dispatcher)

	updMgr := tgupdates.New(tgupdates.Config{
		Handler: &dispatcher,
		Storage: opts.StateStorage,
	})

	waiter := floodwait.NewWaiter().WithCallback(func(ctx context.Context, wait floodwait.FloodWait) {
		logger.Warnf("transport: flood wait, sleeping %s before retrying", wait.Duration)
	})

	options := telegram.Options{
		SessionStorage: opts.SessionStorage,
		UpdateHandler:  updMgr,
		Middlewares: []telegram.Middleware{
			waiter,
			updhook.UpdateHook(updMgr.Handle),
		},
		OnDead: func() {
			connection.MarkDisconnected()
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   firstNonEmpty(opts.DeviceModel, "tgengine"),
			SystemVersion: firstNonEmpty(opts.SystemVersion, "linux"),
			AppVersion:    firstNonEmpty(opts.AppVersion, "dev"),
		},
	}
	if opts.UseTestDC {
		options.DCList = dcs.Test()
	}

	client := telegram.NewClient(config.Env().APIID, config.Env().APIHash, options)

	return &Client{
		Dispatcher: &dispatcher,
		UpdatesMgr: updMgr,
		tg:         client,
		waiter:     waiter,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// API returns the raw RPC client, usable for Auth/Messages/Users calls once
// Run has invoked the callback (or after a successful run-and-return-nil in
// tests that construct their own tg.Client directly).
func (c *Client) API() *tg.Client {
	return c.tg.API()
}

// Self returns the currently authorized user, wrapping gotd's own call.
func (c *Client) Self(ctx context.Context) (*tg.User, error) {
	return c.tg.Self(ctx)
}

// Auth exposes gotd's own auth helper (status/send-code/sign-in/password,
// with SRP handled internally) for internal/telegram/authtransport to adapt
// into the authflow.Transport contract.
func (c *Client) Auth() *tdauth.Client {
	return c.tg.Auth()
}

// Run connects, runs fn under an active connection, and reconnects with
// exponential backoff (capped at reconnectMaxInterval) on transient
// disconnects until ctx is cancelled or fn returns nil; any other error from
// fn or from the connection is retried.
// The flood-wait middleware handles per-RPC throttling transparently; this
// loop only handles full connection loss.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitialInterval
	policy.MaxInterval = reconnectMaxInterval
	policy.MaxElapsedTime = 0 // retry indefinitely until ctx is cancelled

	return backoff.Retry(func() error {
		runErr := c.waiter.Run(ctx, func(waitCtx context.Context) error {
			return c.tg.Run(waitCtx, func(runCtx context.Context) error {
				connection.Init(runCtx, c.tg)
				connection.MarkConnected()
				return fn(runCtx)
			})
		})
		if runErr == nil || ctx.Err() != nil {
			return backoff.Permanent(runErr)
		}
		logger.Warnf("transport: connection lost, reconnecting: %v", runErr)
		return runErr
	}, backoff.WithContext(policy, ctx))
}

// ErrNotConnected describes use of the API before Run has established a
// session; no code in this module returns it.
var ErrNotConnected = fmt.Errorf("transport: client is not connected")

// Package app assembles the process: config, logging, reference data,
// user store, Telegram transport, scheduler and command router.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"lessonbot/internal/bot"
	"lessonbot/internal/config"
	"lessonbot/internal/intake"
	"lessonbot/internal/logging"
	"lessonbot/internal/notifier"
	"lessonbot/internal/refdata"
	"lessonbot/internal/store"
	"lessonbot/internal/transport/telegram"
)

// App holds the assembled components. Build with New, drive with Run.
type App struct {
	log      zerolog.Logger
	closeLog func()

	cfg     *config.Config
	ref     *refdata.Data
	store   *store.Store
	adapter *telegram.Adapter
	notif   *notifier.Service
	router  *bot.Router
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		closeLog()
		return nil, err
	}

	ref := refdata.Load(cfg.Data.TimetablePath, cfg.Data.RoomImagesPath,
		log.With().Str("component", "refdata").Logger())

	st, err := store.Open(
		store.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path},
		store.Limits{
			MinOffset:     cfg.Notify.MinOffsetMin,
			MaxOffset:     cfg.Notify.MaxOffsetMin,
			DefaultOffset: cfg.Notify.DefaultOffsetMin,
			MaxLessons:    cfg.Notify.MaxCustomLessons,
		},
		log.With().Str("component", "store").Logger(),
	)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open user store: %w", err)
	}

	adapter, err := telegram.New(
		telegram.Config{Token: cfg.Telegram.Token, PollTimeout: cfg.PollTimeout()},
		log.With().Str("component", "telegram").Logger(),
	)
	if err != nil {
		_ = st.Close()
		closeLog()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	notif, err := notifier.New(
		notifier.Config{
			CheckInterval: cfg.CheckInterval(),
			Location:      loc,
			LearnCron:     cfg.Notify.LearnCron,
			LearnText:     cfg.Notify.LearnText,
			RatePerSec:    cfg.Notify.RatePerSec,
		},
		st, ref, adapter,
		log.With().Str("component", "notifier").Logger(),
	)
	if err != nil {
		_ = st.Close()
		closeLog()
		return nil, err
	}

	router := bot.New(
		bot.Config{
			AdminID:             cfg.Telegram.AdminID,
			MinOffset:           cfg.Notify.MinOffsetMin,
			MaxOffset:           cfg.Notify.MaxOffsetMin,
			MaxLessons:          cfg.Notify.MaxCustomLessons,
			Location:            loc,
			BroadcastRatePerSec: cfg.Notify.BroadcastRatePerSec,
		},
		st, ref, intake.NewManager(), notif, adapter,
		log.With().Str("component", "bot").Logger(),
	)

	return &App{
		log:      log,
		closeLog: closeLog,
		cfg:      cfg,
		ref:      ref,
		store:    st,
		adapter:  adapter,
		notif:    notif,
		router:   router,
	}, nil
}

// Run starts polling and the scheduler and blocks until ctx is cancelled.
// Shutdown stops the poller, drains the background goroutines and flushes
// the user table exactly once via Close.
func (a *App) Run(ctx context.Context) error {
	defer a.closeLog()

	a.router.Attach(ctx, a.adapter.Bot())

	var wg sync.WaitGroup

	if a.cfg.Data.Watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.ref.Watch(ctx); err != nil {
				a.log.Error().Err(err).Msg("reference data watcher failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.notif.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.adapter.Start()
	}()

	a.log.Info().Int("users", a.store.Len()).Msg("bot is up")
	notifySystemd(ctx, &wg)

	<-ctx.Done()
	a.log.Info().Msg("shutting down")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.adapter.Stop()
	wg.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("store close failed")
		return err
	}
	a.log.Info().Msg("shutdown complete")
	return nil
}

// notifySystemd reports readiness and, when the unit has a watchdog
// configured, keeps petting it. No-ops outside systemd.
func notifySystemd(ctx context.Context, wg *sync.WaitGroup) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

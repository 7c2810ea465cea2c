// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/pushd/internal/config"
	xglog "github.com/ManuGH/pushd/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ReloadFunc applies a freshly loaded configuration to running components.
type ReloadFunc func(cfg config.Config)

type task struct {
	name string
	run  func(ctx context.Context) error
}

// App owns the long-lived runtime lifecycle (background services, config
// watcher, reload wiring) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	onReload     ReloadFunc
	tasks        []task
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder and onReload may be nil.
func NewApp(manager Manager, cfgHolder *config.Holder, onReload ReloadFunc) *App {
	return &App{
		logger:       xglog.WithComponent("app"),
		manager:      manager,
		cfgHolder:    cfgHolder,
		onReload:     onReload,
		reloadSignal: syscall.SIGHUP,
	}
}

// Go adds a background service run alongside the server. A service that
// returns an error stops the whole app.
func (a *App) Go(name string, run func(ctx context.Context) error) {
	a.tasks = append(a.tasks, task{name: name, run: run})
}

// Run starts all owned subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, t := range a.tasks {
		g.Go(func() error {
			a.logger.Debug().Str("task", t.name).Msg("starting background service")
			err := t.run(ctx)
			if err != nil {
				a.logger.Error().Err(err).Str("task", t.name).Msg("background service failed")
			}
			return err
		})
	}

	// The watcher is best-effort: startup should not fail if it cannot start.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}
	}

	if a.cfgHolder != nil && a.onReload != nil {
		applyCh := make(chan config.Config, 1)
		a.cfgHolder.RegisterListener(applyCh)

		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.onReload(cfg)
				}
			}
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(xglog.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(ctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(xglog.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

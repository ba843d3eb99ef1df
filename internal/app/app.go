// Package app wires the configuration, the plugin registry and the layouts
// manager into a runnable application and dispatches the CLI commands onto
// the manager's API.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/layoutgrid/internal/ctxlog"
	"github.com/vk/layoutgrid/internal/inventory"
	"github.com/vk/layoutgrid/internal/manager"
	"github.com/vk/layoutgrid/internal/plugin"
)

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	mgr    *manager.Manager
}

// NewApp constructs the application: its own logger, the plugin registry
// populated from the given modules (core plugins when none given) and an
// uninitialized manager.
func NewApp(outW io.Writer, cfg *Config, modules ...plugin.Module) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)

	reg := plugin.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All layout plugins registered.", "count", len(modules))

	mgr := manager.New(manager.Config{
		Layouts:   cfg.Layouts,
		ConfDir:   cfg.ConfDir,
		Inventory: inventory.NewFile(cfg.InventoryPath),
		Plugins:   reg,
		Logger:    logger,
	})

	return &App{
		outW:   outW,
		logger: logger,
		mgr:    mgr,
	}, nil
}

// Manager exposes the underlying layouts manager, mainly for embedders.
func (a *App) Manager() *manager.Manager {
	return a.mgr
}

// Run initializes the manager, loads the layout configuration and executes
// one command. Init and LoadConfig are idempotent, so an App can run several
// commands against the same loaded state.
func (a *App) Run(ctx context.Context, command string, args []string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	if err := a.mgr.Init(); err != nil {
		return fmt.Errorf("initializing layouts: %w", err)
	}
	if err := a.mgr.LoadConfig(); err != nil {
		return fmt.Errorf("loading layouts configuration: %w", err)
	}

	return a.dispatch(ctx, command, args)
}

// Close tears the layouts subsystem down.
func (a *App) Close() {
	a.mgr.Fini()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/rendis/flowbuilder/internal/panel"
	"github.com/rendis/flowbuilder/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the editor session behind the HTTP panel",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen-addr", Usage: "TCP listen address (overrides settings)"},
		},
		Action: runServe,
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:   "mcp",
		Usage:  "run the editor session as an MCP server on stdio",
		Action: runMCP,
	}
}

func runServe(c *cli.Context) error {
	cfg := resolveConfig(c)
	if v := c.String("listen-addr"); v != "" {
		cfg.ListenAddr = v
	}
	logger := newLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	go rt.session.Run(ctx)
	if err := rt.refresher.Start(ctx); err != nil {
		return err
	}
	go rt.refresher.RunOnce(ctx)

	swapper := newHandlerSwapper(rt.panelHandler(logger))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		logger.Warn("write pid file", "error", err)
	}
	defer os.Remove(pidPath())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go rt.watchReload(ctx, hup, swapper)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("panel listening", "addr", cfg.ListenAddr, "session_id", rt.session.ID())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("panel server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (rt *runtime) panelHandler(logger *slog.Logger) http.Handler {
	deps := panel.PanelDeps{
		Session: rt.session,
		Catalog: rt.catalog,
		Hub:     rt.hub,
		Logger:  logger,
	}
	if rt.vault != nil {
		deps.Credentials = rt.vault
	}
	return panel.NewPanelServer(deps).Handler()
}

// watchReload re-reads the configuration on SIGHUP. Logging changes apply
// immediately; the rest is reported as needing a restart.
func (rt *runtime) watchReload(ctx context.Context, hup <-chan os.Signal, swapper *handlerSwapper) {
	current := rt.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			next := loadConfig()
			next.DBPath = current.DBPath
			d := diffConfigs(current, next)
			if d.LogLevelChanged {
				rt.logger = newLogger(os.Stderr, next)
				swapper.Swap(rt.panelHandler(rt.logger))
				rt.logger.Info("log settings reloaded", "level", next.LogLevel, "format", next.LogFormat)
			}
			if d.ScheduleChanged {
				rt.logger.Warn("catalog schedule changes need a restart", "schedule", next.CatalogSchedule)
			}
			if len(d.RestartNeeded) > 0 {
				rt.logger.Warn("settings changed that need a restart", "fields", d.RestartNeeded)
			}
			current.LogLevel, current.LogFormat = next.LogLevel, next.LogFormat
		}
	}
}

func runMCP(c *cli.Context) error {
	cfg := resolveConfig(c)
	// stdout carries the protocol.
	logger := newLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	go rt.session.Run(ctx)
	if err := rt.refresher.Start(ctx); err != nil {
		return err
	}
	go rt.refresher.RunOnce(ctx)

	srv := mcp.NewFlowServer(mcp.FlowServerDeps{
		Session: rt.session,
		Catalog: rt.catalog,
		Hub:     rt.hub,
		Logger:  logger,
	})
	logger.Info("mcp server ready", "session_id", rt.session.ID())
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/switchrelay/internal/action"
	"github.com/gyaneshwarpardhi/switchrelay/internal/action/discord"
	"github.com/gyaneshwarpardhi/switchrelay/internal/action/forward"
	"github.com/gyaneshwarpardhi/switchrelay/internal/api"
	"github.com/gyaneshwarpardhi/switchrelay/internal/config"
	"github.com/gyaneshwarpardhi/switchrelay/internal/engine"
	"github.com/gyaneshwarpardhi/switchrelay/internal/hooks"
	"github.com/gyaneshwarpardhi/switchrelay/internal/registry"
	"github.com/gyaneshwarpardhi/switchrelay/internal/relay"
	"github.com/gyaneshwarpardhi/switchrelay/internal/store"
)

var (
	configPath string
	listenAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to relay YAML config (built-in defaults when empty)")
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "HTTP listen address (overrides server.addr)")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return err
	}
	addr := cfg.Server.Addr
	if listenAddr != "" {
		addr = listenAddr
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	if p := loader.Path(); p != "" {
		slog.Info("config loaded", "path", p)
	} else {
		slog.Info("no config file, using defaults")
	}

	// ── Action registry ───────────────────────────────────────────────────────
	var svc *relay.Service
	hc := resty.New().SetTimeout(forward.DefaultTimeout)
	reg := action.NewRegistry(
		forward.New(hc),
		discord.New(hc, func(titleID, titleName string) string { return svc.Image(titleID, titleName) }),
	)

	// ── Hook graph + engine ───────────────────────────────────────────────────
	g, err := hooks.Build(cfg.Hooks, reg)
	if err != nil {
		return fmt.Errorf("build hooks: %w", err)
	}
	slog.Info("hooks built", "nodes", g.NodeCount(), "hooks", len(g.Roots()))
	// Not the signal context: queued hooks must still run while Shutdown drains.
	engCtx, engCancel := context.WithCancel(context.Background())
	defer engCancel()
	eng := engine.New(engCtx, g, reg, cfg.Engine)

	// ── Relay service ─────────────────────────────────────────────────────────
	subs := registry.New(
		registry.WithMailboxSize(cfg.Relay.SubscriberBuffer),
		registry.WithDeliveryTimeout(cfg.Relay.DeliveryTimeout()),
		registry.WithMaxSubscribers(cfg.Relay.MaxSubscribers),
	)
	svc = relay.New(store.New(cfg.Relay.HistoryCapacity), subs, relay.WithEngine(eng))
	if err := svc.Apply(cfg); err != nil {
		return err
	}
	slog.Info("relay ready",
		"history_capacity", svc.Capacity(),
		"catalog_titles", svc.Catalog().Len(),
		"mask_serials", cfg.Relay.MaskSerialsEnabled())

	// ── Scheduled clear ───────────────────────────────────────────────────────
	sched := relay.NewClearScheduler(svc)
	if err := sched.Set(cfg.Relay.ClearSchedule); err != nil {
		return err
	}
	sched.Start()
	if next, ok := sched.Next(); ok {
		slog.Info("history clear scheduled", "schedule", cfg.Relay.ClearSchedule, "next", next)
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	// Rejected files never reach the callbacks; the last good config stays live.
	svc.Bind(loader)
	loader.OnChange(func(newCfg *config.Config) {
		if err := sched.Set(newCfg.Relay.ClearSchedule); err != nil {
			slog.Warn("clear schedule not updated", "err", err)
		}
		slog.Info("config hot-reloaded", "nodes", eng.Graph().NodeCount())
	})
	if stopWatch, err := loader.Watch(); err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(svc, loader),
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
		IdleTimeout:  cfg.Server.IdleTimeout(),
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	grp.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down…")
		// Streams only return once their subscription is released.
		subs.Close()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = grp.Wait()
	<-sched.Stop().Done()
	eng.Shutdown()
	engCancel()
	slog.Info("goodbye")
	return err
}

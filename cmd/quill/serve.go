package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/gateway"
	"github.com/rahul/quill/internal/server"
	"github.com/rahul/quill/internal/session"
	"github.com/rahul/quill/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve runs over the enabled chat gateways and the HTTP API",
	Long: `Serve runs over every enabled chat gateway (telegram, discord) and,
when server.enabled is set, the HTTP API. Suspended runs idle longer than
session.stale_after are discarded and their chat is told.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(configPath, "")
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	manager, err := session.NewManager(session.Options{
		Engine:       a.engine,
		Runs:         store.NewRunStore(a.db),
		History:      store.NewHistoryStore(a.db),
		HistoryLimit: a.cfg.Memory.HistoryLimit,
		Logger:       log,
		Metrics:      a.metrics,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := gateway.NewMux()
	var messengers []gateway.Messenger

	if tgCfg, ok := a.cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, manager, log)
		if err != nil {
			return err
		}
		mux.Register(gateway.PlatformTelegram, tg)
		messengers = append(messengers, tg)
	}
	if dcCfg, ok := a.cfg.GetDiscordConfig(); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, manager, log)
		if err != nil {
			return err
		}
		mux.Register(gateway.PlatformDiscord, dc)
		messengers = append(messengers, dc)
	}

	var srv *server.Server
	if a.cfg.Server.Enabled {
		srv, err = server.NewServer(manager, a.registry, log, a.cfg.Server)
		if err != nil {
			return err
		}
	}

	if mux.Len() == 0 && srv == nil {
		return errors.New("nothing to serve: enable a gateway or the HTTP server")
	}

	for _, m := range messengers {
		go func() {
			if err := m.Start(); err != nil {
				log.Error("gateway stopped", zap.Error(err))
				stop()
			}
		}()
	}
	if srv != nil {
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server stopped", zap.Error(err))
				stop()
			}
		}()
	}

	go session.NewSweeper(manager, a.cfg.Session.StaleAfter, a.cfg.Session.SweepInterval, mux).Start(ctx)
	go func() {
		if err := a.prompts.Watch(ctx); err != nil {
			log.Warn("prompt reload disabled", zap.Error(err))
		}
	}()

	if isTerminal(os.Stderr) {
		printBanner(os.Stderr)
	}
	log.Info("serving", zap.Int("gateways", mux.Len()), zap.Bool("http", srv != nil))

	<-ctx.Done()

	for _, m := range messengers {
		if err := m.Stop(); err != nil {
			log.Warn("gateway stop failed", zap.Error(err))
		}
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown failed", zap.Error(err))
		}
	}
	log.Info("quill stopped")
	return nil
}

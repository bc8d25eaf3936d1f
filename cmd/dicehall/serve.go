// cmd/dicehall/serve.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jason-s-yu/dicehall/internal/bot"
	"github.com/jason-s-yu/dicehall/internal/cache"
	"github.com/jason-s-yu/dicehall/internal/config"
	"github.com/jason-s-yu/dicehall/internal/game"
	"github.com/jason-s-yu/dicehall/internal/gateway"
	"github.com/jason-s-yu/dicehall/internal/presence"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DICEHALL_HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	clk := clock.New()

	s, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := ensureSchema(ctx, s, cfg, log); err != nil {
		return err
	}

	registry := gateway.NewRegistry(&gateway.Sequencer{}, clk, log)
	pipeOpts := []game.Option{
		game.WithClock(clk),
		game.WithTurnTimeout(cfg.TurnTimeout),
		game.WithLogger(log),
	}
	gwOpts := []gateway.Option{
		gateway.WithRateLimit(cfg.RateLimit),
		gateway.WithOriginPatterns(cfg.OriginPatterns),
		gateway.WithClock(clk),
		gateway.WithLogger(log),
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		historian := cache.NewHistorian(rdb)
		pipeOpts = append(pipeOpts, game.WithHistorian(historian))
		gwOpts = append(gwOpts, gateway.WithActionLog(historian))
		log.WithField("addr", cfg.RedisAddr).Info("Action historian enabled")
	}

	pipe := game.NewPipeline(s, registry, pipeOpts...)
	executor := bot.NewExecutor(pipe,
		bot.WithObserver(bot.LogObserver{Log: log}),
		bot.WithPace(cfg.BotPace),
		bot.WithClock(clk),
		bot.WithLogger(log),
	)
	svc := game.NewService(pipe, s, s, executor, log)
	defer svc.Close()

	grace := presence.NewManager(svc, registry, cfg.GracePeriod, clk, log)
	defer grace.Close()

	auth, err := gateway.NewAuthenticator([]byte(cfg.TokenSecret),
		gateway.WithGuestFastPath(cfg.AllowGuest),
		gateway.WithAuthLogger(log),
	)
	if err != nil {
		return err
	}
	gw := gateway.New(svc, auth, registry, append(gwOpts, gateway.WithPresence(grace))...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
		return srv.Close()
	}
	return nil
}

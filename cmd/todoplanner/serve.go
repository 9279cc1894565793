package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"todo-planner/internal/bot"
	"todo-planner/internal/httpapi"
	"todo-planner/internal/service"
)

const (
	shutdownTimeout    = 10 * time.Second
	sessionSweepPeriod = time.Hour
)

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the daily purge and the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envFile)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	var telegramBot *bot.Bot
	if a.cfg.TelegramToken != "" {
		telegramBot, err = bot.New(a.cfg.TelegramToken, a.cfg.TelegramUsers, a.tasks, a.reminder, loc, a.log.With("component", "bot"))
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}

	scheduler := service.NewSchedulerService(loc, a.log.With("component", "scheduler"))
	scheduler.SetObserver(a.metrics)
	if err := a.scheduleJobs(scheduler, telegramBot); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	api := httpapi.NewServer(a.tasks, a.auth, httpapi.Options{
		PurgeOnList:    a.cfg.PurgeOnList,
		CookieSecure:   a.cfg.CookieSecure,
		SameSite:       a.cfg.SameSite(),
		AllowedOrigins: a.cfg.CORSOrigins,
		Location:       loc,
		Metrics:        a.metrics,
	}, a.log.With("component", "http"))

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("bot: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case err = <-errCh:
		a.log.Error("service stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.log.Warn("http shutdown", "error", shutdownErr)
	}
	return err
}

func (a *app) scheduleJobs(scheduler *service.SchedulerService, telegramBot *bot.Bot) error {
	if _, err := scheduler.RunDaily("purge-overdue", a.cfg.PurgeTime, func(ctx context.Context) error {
		n, err := a.tasks.PurgeOverdue(ctx)
		if err != nil {
			return err
		}
		a.log.Info("overdue tasks purged", "deleted", n)
		return nil
	}); err != nil {
		return err
	}

	if _, err := scheduler.RunEvery("sweep-sessions", sessionSweepPeriod, func(ctx context.Context) error {
		_, err := a.auth.PurgeExpiredSessions(ctx)
		return err
	}); err != nil {
		return err
	}

	if telegramBot != nil && a.cfg.DigestTime != "" {
		if _, err := scheduler.RunDaily("daily-digest", a.cfg.DigestTime, telegramBot.SendDigests); err != nil {
			return err
		}
	}
	return nil
}

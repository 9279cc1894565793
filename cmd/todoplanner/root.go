package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"todo-planner/internal/config"
	"todo-planner/internal/metrics"
	"todo-planner/internal/repository"
	"todo-planner/internal/service"
)

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "todoplanner",
		Short:        "Shared to-do list with recurring tasks and a nightly overdue cleanup.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default ./.env when present)")

	root.AddCommand(newServeCmd(&envFile), newPurgeCmd(&envFile))
	return root
}

// app holds everything built from configuration.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	db       *gorm.DB
	tasks    *service.TaskService
	auth     *service.AuthService
	reminder *service.ReminderService
	metrics  *metrics.Metrics
}

func newApp(envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	taskRepo := repository.NewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	clock := service.SystemClock{}
	m := metrics.New()
	tasks := service.NewTaskService(taskRepo, clock, logger.With("component", "tasks"))
	tasks.SetObserver(m)

	return &app{
		cfg:      cfg,
		log:      logger,
		db:       db,
		tasks:    tasks,
		auth:     service.NewAuthService(userRepo, sessionRepo, clock, service.AuthConfig{SessionTTL: cfg.SessionTTL}, logger.With("component", "auth")),
		reminder: service.NewReminderService(taskRepo),
		metrics:  m,
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

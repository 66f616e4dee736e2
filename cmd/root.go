package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liveAgent/internal/app"
	"liveAgent/internal/cli"
	"liveAgent/internal/config"
	"liveAgent/internal/logger"
	"liveAgent/internal/server"
)

type launcher struct {
	cfg *config.Cfg
	log *logger.Zap
}

func newRootCmd() *cobra.Command {
	rt := &launcher{}

	root := &cobra.Command{
		Use:           "live-agent",
		Short:         "Автоматизация панелей прямых трансляций",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("конфигурация: %w", err)
			}
			log, err := logger.New(cfg.Logger.Env, cfg.Logger.Level, cfg.Logger.File)
			if err != nil {
				return fmt.Errorf("логгер: %w", err)
			}
			rt.cfg, rt.log = cfg, log
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}

	root.AddCommand(newReplCmd(rt), newServeCmd(rt))
	return root
}

// start собирает приложение и поднимает сохранённые аккаунты.
func (rt *launcher) start(ctx context.Context) (*app.App, error) {
	a, err := app.New(rt.cfg, rt.log)
	if err != nil {
		return nil, err
	}
	if err := a.Restore(ctx); err != nil {
		rt.log.Warn("Аккаунты из БД не восстановлены", zap.Error(err))
	}
	return a, nil
}

func (rt *launcher) stop(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		rt.log.Error("Ошибка завершения", zap.Error(err))
	}
}

func newReplCmd(rt *launcher) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Интерактивная консоль",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := rt.start(ctx)
			if err != nil {
				return err
			}
			defer rt.stop(a)

			if !cmd.Flags().Changed("headless") {
				headless = rt.cfg.Browser.Headless
			}
			cli.New(a, rt.log, headless).Run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "подключаться без окна браузера")
	return cmd
}

func newServeCmd(rt *launcher) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP API и поток комментариев по WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := rt.start(ctx)
			if err != nil {
				return err
			}
			defer rt.stop(a)

			if port != "" {
				rt.cfg.App.Port = port
			}
			srv := server.New(rt.cfg.App, a, a.Metrics().Handler(), rt.log.Logger)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "порт HTTP, по умолчанию HTTP_PORT")
	return cmd
}

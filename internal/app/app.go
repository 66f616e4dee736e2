// Package app собирает зависимости процесса в один объект: фабрику
// браузеров, шину событий, реестр сессий, хранилище, генератор ответов
// и метрики. CLI и HTTP-сервер работают только через него.
package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/config"
	"liveAgent/internal/database"
	"liveAgent/internal/events"
	"liveAgent/internal/listener"
	"liveAgent/internal/llm"
	"liveAgent/internal/logger"
	"liveAgent/internal/metrics"
	"liveAgent/internal/migrations"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

const busBuffer = 64

// AccountStore - постоянное хранилище аккаунтов и их storage state.
type AccountStore interface {
	UpsertAccount(ctx context.Context, a *database.Account) error
	ListAccounts(ctx context.Context) ([]database.Account, error)
	DeleteAccount(ctx context.Context, id string) error
	SaveStorageState(ctx context.Context, accountID, state string) error
	LoadStorageState(ctx context.Context, accountID string) (string, error)
}

// RunStore - история запусков задач.
type RunStore interface {
	StartRun(ctx context.Context, accountID, taskType, config string) (uint, error)
	FinishRun(ctx context.Context, accountID, taskType string, runErr error) error
	AbortRun(ctx context.Context, id uint, runErr error) error
	ListRuns(ctx context.Context, accountID string, limit int) ([]database.TaskRun, error)
}

type App struct {
	cfg *config.Cfg
	log *zap.Logger

	factory  browser.Factory
	closers  []func() error
	bus      *events.Bus
	registry *session.Registry
	metrics  *metrics.Metrics
	comments *commentLog

	accounts AccountStore
	runs     RunStore

	stopRuns func()
	wg       sync.WaitGroup
	once     sync.Once
}

// Parts - готовые компоненты для сборки App. New заполняет их из
// конфигурации, тесты подставляют свои.
type Parts struct {
	Factory   browser.Factory
	Accounts  AccountStore
	Runs      RunStore
	Generator task.ReplyGenerator
	Metrics   *metrics.Metrics
	Shots     task.Screenshotter
	// NewAdapter по умолчанию platform.New.
	NewAdapter func(platform.Name) (platform.Adapter, error)
}

// New поднимает всё окружение по конфигурации. База данных и генератор
// ответов необязательны: без них состояние живёт в памяти, а ИИ-ответы
// недоступны.
func New(cfg *config.Cfg, log *logger.Zap) (*App, error) {
	var (
		parts   Parts
		closers []func() error
	)

	if cfg.Database.Enabled() {
		if err := migrations.Run(cfg, log); err != nil {
			return nil, err
		}
		db, err := database.New(cfg, log)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() error { db.Close(log); return nil })
		parts.Accounts = database.NewAccountRepository(db.DB)
		parts.Runs = database.NewTaskRunRepository(db.DB)
	} else {
		log.Warn("БД не настроена, аккаунты и сессии хранятся только в памяти")
	}

	if cfg.OpenAI.KeyAI != "" {
		client, err := llm.NewClient(llm.Config{
			APIKey:            cfg.OpenAI.KeyAI,
			Model:             cfg.OpenAI.Model,
			BaseURL:           cfg.OpenAI.BaseURL,
			MaxTokens:         cfg.OpenAI.MaxTokens,
			RequestsPerMinute: cfg.OpenAI.RequestsPerMinute,
		}, log.Logger)
		if err != nil {
			return nil, err
		}
		parts.Generator = client
	}

	factory := browser.New(browser.Config{
		Channel:      cfg.Browser.Channel,
		BrowsersPath: cfg.Browser.BrowsersPath,
		Display:      cfg.Browser.Display,
		Timeout:      cfg.Browser.Timeout,
	}, log.Logger)
	closers = append(closers, factory.Close)
	parts.Factory = factory

	parts.Metrics = metrics.New()
	parts.Shots = browser.NewScreenshotStore(cfg.Tasks.ScreenshotDir, cfg.Tasks.ScreenshotKeep, log.Logger)
	parts.NewAdapter = func(n platform.Name) (platform.Adapter, error) {
		return platform.New(n, platform.Deps{
			Log:     log.Logger,
			Timeout: cfg.Browser.Timeout,
			DevURL:  cfg.Browser.DevURL,
		})
	}

	a := Assemble(cfg, log.Logger, parts)
	a.closers = closers
	return a, nil
}

// Assemble связывает готовые компоненты. Nil-хранилища допустимы.
func Assemble(cfg *config.Cfg, log *zap.Logger, p Parts) *App {
	if log == nil {
		log = zap.NewNop()
	}

	a := &App{
		cfg:      cfg,
		log:      log.Named("app"),
		factory:  p.Factory,
		bus:      events.New(log, busBuffer),
		metrics:  p.Metrics,
		comments: newCommentLog(cfg.App.CommentHistory, p.Metrics),
		accounts: p.Accounts,
		runs:     p.Runs,
	}

	deps := session.Deps{
		Log:        log,
		Factory:    p.Factory,
		Bus:        a.bus,
		Sink:       a.comments,
		Generator:  p.Generator,
		NewAdapter: p.NewAdapter,
		TaskEnv: task.Env{
			MaxTryCount: cfg.Tasks.MaxTryCount,
			Screenshots: p.Shots,
		},
		Listener: []listener.Option{
			listener.WithLocation(cfg.Tasks.Location),
		},
		AuthMaxAttempts: cfg.Tasks.AuthMaxAttempts,
	}
	// интерфейсы с типизированным nil внутри сессия считала бы заданными
	if p.Accounts != nil {
		deps.Saver = p.Accounts
	}
	if p.Metrics != nil {
		deps.Metrics = p.Metrics
		deps.TaskEnv.Metrics = p.Metrics
		deps.Listener = append(deps.Listener, listener.WithDropHook(p.Metrics.FramesDropped))
	}
	a.registry = session.NewRegistry(deps)

	if a.runs != nil {
		ch, unsubscribe := a.bus.Subscribe(events.TypeTaskStopped)
		done := make(chan struct{})
		a.stopRuns = func() { unsubscribe(); close(done) }
		a.wg.Add(1)
		go a.trackRuns(ch, done)
	}
	return a
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }
func (a *App) Bus() *events.Bus          { return a.bus }

// Close отключает все аккаунты и освобождает ресурсы. Повторный вызов
// ничего не делает.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	a.once.Do(func() {
		if err := a.registry.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		if a.stopRuns != nil {
			a.stopRuns()
		}
		a.wg.Wait()
		a.bus.Close()

		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		a.log.Info("Приложение остановлено")
	})
	return errors.Join(errs...)
}

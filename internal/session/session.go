// Package session ведёт аккаунты от «нет сессии» до «авторизован и готов
// к задачам» и хранит запущенные задачи каждого аккаунта.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/events"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/task"
)

var (
	ErrAccountNotFound = errors.New("аккаунт не найден")
	ErrNoBrowser       = errors.New("сессия браузера не установлена")
	ErrTaskRunning     = errors.New("задача уже запущена")
	ErrConnected       = errors.New("аккаунт уже подключён")
)

const (
	defaultAuthAttempts = 3
	saveStateTimeout    = 10 * time.Second
	commentPublishWait  = 200 * time.Millisecond
)

// StateSaver сохраняет storage state аккаунта. Вызывается без ожидания результата.
type StateSaver interface {
	SaveStorageState(ctx context.Context, accountID, state string) error
}

// CommentSink получает каждое сообщение чата аккаунта, возможны повторы.
type CommentSink interface {
	DeliverComment(accountID string, msg listener.LiveMessage)
}

// Recorder - метрики сессий.
type Recorder interface {
	SessionsActive(n int)
	Connect(platform string, ok bool)
}

type Account struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Platform platform.Name `json:"platform"`
}

type ConnectConfig struct {
	Headless     bool   `json:"headless"`
	StorageState string `json:"storageState,omitempty"`
}

type ConnectResult struct {
	AccountName  string `json:"accountName"`
	StorageState string `json:"storageState"`
}

// Deps - зависимости сессий, общие для реестра.
type Deps struct {
	Log        *zap.Logger
	Factory    browser.Factory
	Bus        *events.Bus
	Saver      StateSaver
	Sink       CommentSink
	Generator  task.ReplyGenerator
	Metrics    Recorder
	NewAdapter func(platform.Name) (platform.Adapter, error)
	// TaskEnv - шаблон окружения задач, аккаунт и платформа подставляются сессией.
	TaskEnv task.Env
	// Listener - дополнительные опции слушателя чата (метрики, часовой пояс).
	Listener        []listener.Option
	AuthMaxAttempts int
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.AuthMaxAttempts <= 0 {
		d.AuthMaxAttempts = defaultAuthAttempts
	}
	if d.NewAdapter == nil {
		d.NewAdapter = func(n platform.Name) (platform.Adapter, error) {
			return platform.New(n, platform.Deps{Log: d.Log})
		}
	}
	return d
}

// AccountSession - одна браузерная сессия аккаунта и её задачи.
type AccountSession struct {
	id      string
	account Account
	adapter platform.Adapter
	deps    Deps
	log     *zap.Logger

	mu          sync.Mutex
	browser     browser.Session
	cancelClose func()
	accountName string
	tasks       map[task.Type]task.Task
	// connecting выставлен на всё время Connect, cancelConnect прерывает его.
	connecting    bool
	cancelConnect context.CancelFunc
}

func newAccountSession(account Account, adapter platform.Adapter, deps Deps) *AccountSession {
	id := uuid.NewString()
	return &AccountSession{
		id:      id,
		account: account,
		adapter: adapter,
		deps:    deps,
		log: deps.Log.Named("session").With(
			zap.String("account_id", account.ID),
			zap.String("platform", string(account.Platform)),
			zap.String("session_id", id),
		),
		tasks: make(map[task.Type]task.Task),
	}
}

func (s *AccountSession) ID() string              { return s.id }
func (s *AccountSession) AccountID() string       { return s.account.ID }
func (s *AccountSession) Account() Account        { return s.account }
func (s *AccountSession) Platform() platform.Name { return s.adapter.Name() }

func (s *AccountSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil
}

func (s *AccountSession) AccountName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountName
}

func (s *AccountSession) RunningTasks() []task.Type {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.Type, 0, len(s.tasks))
	for t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *AccountSession) current() browser.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser
}

// live возвращает текущий браузер или ошибку, если его закрыли во время подключения.
func (s *AccountSession) live(ctx context.Context) (browser.Session, error) {
	if bs := s.current(); bs != nil {
		return bs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, platform.ErrPageNotFound(s.Platform(), "браузер закрыт во время подключения")
}

// install делает bs текущим браузером. Если подключение уже отменено,
// bs закрывается и не устанавливается. Предыдущий браузер закрывается.
func (s *AccountSession) install(ctx context.Context, bs browser.Session) error {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		s.closeSession(bs)
		return err
	}
	prev := s.browser
	s.browser = bs
	s.mu.Unlock()

	if prev != nil && prev != bs {
		s.closeSession(prev)
	}
	return nil
}

// begin занимает сессию под одно подключение.
func (s *AccountSession) begin(ctx context.Context) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil || s.connecting {
		return nil, nil, ErrConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	s.connecting = true
	s.cancelConnect = cancel
	return ctx, func() {
		s.mu.Lock()
		s.connecting = false
		s.cancelConnect = nil
		s.mu.Unlock()
		cancel()
	}, nil
}

// Connect открывает браузер, проводит авторизацию, сохраняет storage state
// и подписывается на закрытие окна. Параллельный Connect получает ErrConnected,
// Disconnect прерывает подключение.
func (s *AccountSession) Connect(ctx context.Context, cfg ConnectConfig) (res ConnectResult, err error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return ConnectResult{}, err
	}
	defer done()

	defer func() {
		if s.deps.Metrics != nil {
			s.deps.Metrics.Connect(string(s.Platform()), err == nil)
		}
	}()

	if cfg.StorageState != "" {
		if _, err := browser.ParseStorageState(cfg.StorageState); err != nil {
			return ConnectResult{}, platform.ErrUnexpected("сохранённая сессия повреждена", err)
		}
	}

	if err := s.open(ctx, browser.Options{Headless: cfg.Headless, StorageState: cfg.StorageState}); err != nil {
		return ConnectResult{}, err
	}

	if err := s.ensureAuthenticated(ctx, cfg.Headless, 1); err != nil {
		s.closeBrowser()
		return ConnectResult{}, err
	}

	bs, err := s.live(ctx)
	if err != nil {
		return ConnectResult{}, err
	}
	state, err := bs.StorageState()
	if err != nil {
		s.closeBrowser()
		return ConnectResult{}, platform.ErrUnexpected("сохранение сессии", err)
	}
	s.saveState(state)

	name, err := s.adapter.AccountName(ctx, bs)
	if err != nil {
		s.log.Warn("Имя аккаунта не прочитано", zap.Error(err))
		name = s.account.Name
	}

	cancel := bs.OnClose(s.onExternalClose)

	s.mu.Lock()
	if s.browser != bs {
		// браузер закрыли, пока читали имя аккаунта
		s.mu.Unlock()
		cancel()
		return ConnectResult{}, platform.ErrPageNotFound(s.Platform(), "браузер закрыт во время подключения")
	}
	s.accountName = name
	s.cancelClose = cancel
	s.mu.Unlock()

	s.log.Info("Аккаунт подключён", zap.String("account_name", name), zap.Bool("headless", cfg.Headless))
	return ConnectResult{AccountName: name, StorageState: state}, nil
}

// ensureAuthenticated - Unauthenticated -> NeedsInteractiveLogin -> Authenticated.
// Число проходов ограничено AuthMaxAttempts.
func (s *AccountSession) ensureAuthenticated(ctx context.Context, headless bool, attempt int) error {
	if attempt > s.deps.AuthMaxAttempts {
		return platform.ErrPageNotFound(s.Platform(),
			fmt.Sprintf("вход не подтверждён после %d попыток", s.deps.AuthMaxAttempts))
	}

	bs, err := s.live(ctx)
	if err != nil {
		return err
	}
	ok, err := s.adapter.Connect(ctx, bs)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	s.log.Info("Нужен интерактивный вход", zap.Int("attempt", attempt))

	if bs.Headless() {
		if err := s.reopen(ctx, browser.Options{Headless: false}); err != nil {
			return err
		}
	}

	if bs, err = s.live(ctx); err != nil {
		return err
	}
	if err := s.adapter.Login(ctx, bs); err != nil {
		return err
	}

	if bs, err = s.live(ctx); err != nil {
		return err
	}
	state, err := bs.StorageState()
	if err != nil {
		return platform.ErrUnexpected("снимок сессии после входа", err)
	}

	if headless {
		if err := s.reopen(ctx, browser.Options{Headless: true, StorageState: state}); err != nil {
			return err
		}
	}

	return s.ensureAuthenticated(ctx, headless, attempt+1)
}

// open запрашивает браузер у фабрики и делает его текущим.
func (s *AccountSession) open(ctx context.Context, opts browser.Options) error {
	bs, err := s.deps.Factory.NewSession(ctx, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return platform.ErrConnection(s.Platform(), err)
	}
	return s.install(ctx, bs)
}

// reopen закрывает текущий браузер и открывает новый с заданными опциями.
func (s *AccountSession) reopen(ctx context.Context, opts browser.Options) error {
	s.closeBrowser()
	return s.open(ctx, opts)
}

func (s *AccountSession) saveState(state string) {
	if s.deps.Saver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveStateTimeout)
		defer cancel()
		if err := s.deps.Saver.SaveStorageState(ctx, s.account.ID, state); err != nil {
			s.log.Warn("Storage state не сохранён", zap.Error(err))
		}
	}()
}

// onExternalClose вызывается из горутины событий playwright и не должен блокироваться.
func (s *AccountSession) onExternalClose() {
	s.log.Warn("Окно браузера закрыто")
	if s.deps.Bus == nil {
		return
	}
	go func() {
		ev := events.PageClosed{AccountID: s.account.ID, SessionID: s.id}
		if err := s.deps.Bus.Publish(context.Background(), events.TypePageClosed, ev); err != nil {
			s.log.Debug("Событие закрытия не опубликовано", zap.Error(err))
		}
	}()
}

// closeBrowser закрывает браузер без возврата ошибки: сбой закрытия
// не должен мешать освобождению аккаунта.
func (s *AccountSession) closeBrowser() {
	s.mu.Lock()
	bs := s.browser
	s.browser = nil
	cancel := s.cancelClose
	s.cancelClose = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.closeSession(bs)
}

func (s *AccountSession) closeSession(bs browser.Session) {
	if bs == nil {
		return
	}
	if err := bs.Close(); err != nil {
		s.log.Warn("Ошибка закрытия браузера", zap.Error(err))
	}
}

// Disconnect прерывает незавершённое подключение, закрывает браузер
// и останавливает все задачи. Идемпотентен.
func (s *AccountSession) Disconnect() {
	s.mu.Lock()
	if s.cancelConnect != nil {
		s.cancelConnect()
	}
	s.mu.Unlock()

	s.closeBrowser()

	s.mu.Lock()
	running := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		running = append(running, t)
	}
	s.mu.Unlock()

	for _, t := range running {
		t.Stop()
	}

	if len(running) > 0 {
		s.log.Info("Аккаунт отключён", zap.Int("stopped_tasks", len(running)))
	}
}

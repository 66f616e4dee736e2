package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

func New(cfg Config, log *zap.Logger) *PlaywrightFactory {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &PlaywrightFactory{
		cfg: cfg,
		log: log.Named("browser"),
	}
}

// driver лениво поднимает драйвер playwright, один на всю фабрику.
func (f *PlaywrightFactory) driver() (*playwright.Playwright, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw != nil {
		return f.pw, nil
	}

	if f.cfg.BrowsersPath != "" {
		_ = os.Setenv("PLAYWRIGHT_BROWSERS_PATH", f.cfg.BrowsersPath)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("запуск драйвера playwright: %w", err)
	}
	f.pw = pw
	return pw, nil
}

func (f *PlaywrightFactory) getBrowserArgs() []string {
	return []string{
		"--no-sandbox",
		"--disable-blink-features=AutomationControlled",
	}
}

func (f *PlaywrightFactory) getEnvMap() map[string]string {
	if f.cfg.Display != "" {
		return map[string]string{
			"DISPLAY": f.cfg.Display,
		}
	}
	return nil
}

// NewSession запускает отдельный процесс браузера с новым контекстом и страницей.
// Сессии разных аккаунтов никогда не делят процесс.
func (f *PlaywrightFactory) NewSession(ctx context.Context, opts Options) (Session, error) {
	pw, err := f.driver()
	if err != nil {
		return nil, err
	}

	var state *playwright.OptionalStorageState
	if opts.StorageState != "" {
		state, err = ParseStorageState(opts.StorageState)
		if err != nil {
			return nil, err
		}
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     f.getBrowserArgs(),
	}
	if f.cfg.Channel != "" {
		launch.Channel = playwright.String(f.cfg.Channel)
	}
	if env := f.getEnvMap(); env != nil {
		launch.Env = env
	}

	br, err := RunWithCleanup(ctx, func() (playwright.Browser, error) {
		return pw.Chromium.Launch(launch)
	}, func(late playwright.Browser) {
		if err := late.Close(); err != nil {
			f.log.Warn("Не удалось закрыть браузер после отмены запуска", zap.Error(err))
			return
		}
		f.log.Debug("Браузер, запущенный после отмены, закрыт")
	})
	if err != nil {
		return nil, fmt.Errorf("запуск браузера: %w", err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		StorageState: state,
		Locale:       playwright.String("zh-CN"),
		TimezoneId:   playwright.String("Asia/Shanghai"),
	}
	if !opts.Headless {
		ctxOpts.NoViewport = playwright.Bool(true)
	}

	bctx, err := br.NewContext(ctxOpts)
	if err != nil {
		_ = br.Close()
		return nil, fmt.Errorf("создание контекста: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = br.Close()
		return nil, fmt.Errorf("создание страницы: %w", err)
	}
	page.SetDefaultTimeout(float64(f.cfg.Timeout.Milliseconds()))

	s := &playwrightSession{
		browser:   br,
		context:   bctx,
		page:      page,
		headless:  opts.Headless,
		listeners: make(map[int]func()),
	}
	bctx.OnClose(func(playwright.BrowserContext) {
		s.fireClose()
	})

	f.log.Debug("Сессия браузера создана", zap.Bool("headless", opts.Headless), zap.Bool("storage_state", state != nil))
	return s, nil
}

// Close останавливает драйвер playwright. Вызывается при завершении процесса.
func (f *PlaywrightFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pw == nil {
		return nil
	}
	err := f.pw.Stop()
	f.pw = nil
	return err
}

func (s *playwrightSession) Page() playwright.Page              { return s.page }
func (s *playwrightSession) Context() playwright.BrowserContext { return s.context }
func (s *playwrightSession) Headless() bool                     { return s.headless }

func (s *playwrightSession) StorageState() (string, error) {
	state, err := s.context.StorageState()
	if err != nil {
		return "", fmt.Errorf("получение storage state: %w", err)
	}
	return MarshalStorageState(state)
}

func (s *playwrightSession) OnClose(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// fireClose вызывается из горутины событий playwright, поэтому слушатели
// не должны блокироваться.
func (s *playwrightSession) fireClose() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listeners = map[int]func(){}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *playwrightSession) Close() error {
	if err := s.context.Close(); err != nil {
		_ = s.browser.Close()
		return err
	}
	return s.browser.Close()
}

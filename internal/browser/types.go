package browser

import (
	"context"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// Session - изолированная сессия браузера одного аккаунта: процесс браузера,
// контекст и страница. Закрытие контекста - единственный сигнал завершения.
type Session interface {
	Page() playwright.Page
	Context() playwright.BrowserContext
	Headless() bool
	// StorageState возвращает сериализованные cookies и origin storage.
	StorageState() (string, error)
	// OnClose подписывается на закрытие контекста. Возвращает функцию отписки.
	OnClose(fn func()) (cancel func())
	Close() error
}

// Factory создаёт сессии браузера.
type Factory interface {
	NewSession(ctx context.Context, opts Options) (Session, error)
}

// Options - параметры одной сессии.
type Options struct {
	Headless     bool
	StorageState string
}

type Config struct {
	Channel      string
	BrowsersPath string
	Display      string
	Timeout      time.Duration
}

type PlaywrightFactory struct {
	cfg Config
	log *zap.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

type playwrightSession struct {
	browser  playwright.Browser
	context  playwright.BrowserContext
	page     playwright.Page
	headless bool

	mu        sync.Mutex
	closed    bool
	nextID    int
	listeners map[int]func()
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/goleak"

	"liveAgent/internal/browser"
	"liveAgent/internal/platform"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBrowser struct {
	mu        sync.Mutex
	headless  bool
	state     string
	closed    int
	closeErr  error
	listeners map[int]func()
	next      int
}

func (b *fakeBrowser) Page() playwright.Page              { return nil }
func (b *fakeBrowser) Context() playwright.BrowserContext { return nil }
func (b *fakeBrowser) Headless() bool                     { return b.headless }

func (b *fakeBrowser) StorageState() (string, error) {
	if b.state == "" {
		return `{"cookies":[],"origins":[]}`, nil
	}
	return b.state, nil
}

func (b *fakeBrowser) OnClose(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listeners == nil {
		b.listeners = map[int]func(){}
	}
	id := b.next
	b.next++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	return b.closeErr
}

// closeExternally имитирует закрытие окна пользователем.
func (b *fakeBrowser) closeExternally() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.listeners = nil
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *fakeBrowser) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	opts     []browser.Options
	sessions []*fakeBrowser
	closeErr error
	err      error
	// gate, если задан, задерживает следующий NewSession; entered закрывается при входе в него.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeFactory) NewSession(ctx context.Context, opts browser.Options) (browser.Session, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.gate, f.entered = nil, nil
	f.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b := &fakeBrowser{headless: opts.Headless, closeErr: f.closeErr}
	f.opts = append(f.opts, opts)
	f.sessions = append(f.sessions, b)
	return b, nil
}

func (f *fakeFactory) last() *fakeBrowser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeFactory) all() []*fakeBrowser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeBrowser(nil), f.sessions...)
}

func (f *fakeFactory) options() []browser.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Options(nil), f.opts...)
}

// fakeAdapter отвечает на Connect по очереди из connects, дальше - последним значением.
type fakeAdapter struct {
	mu       sync.Mutex
	caps     platform.Capabilities
	connects []bool
	logins   int
	goods    []int
	// onLogin вызывается внутри Login, пока оператор «входит».
	onLogin func()
}

func (a *fakeAdapter) Name() platform.Name                 { return platform.Dev }
func (a *fakeAdapter) Capabilities() platform.Capabilities { return a.caps }

func (a *fakeAdapter) Connect(ctx context.Context, s browser.Session) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.connects) == 0 {
		return true, nil
	}
	ok := a.connects[0]
	if len(a.connects) > 1 {
		a.connects = a.connects[1:]
	}
	return ok, nil
}

func (a *fakeAdapter) Login(ctx context.Context, s browser.Session) error {
	a.mu.Lock()
	a.logins++
	hook := a.onLogin
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (a *fakeAdapter) AccountName(ctx context.Context, s browser.Session) (string, error) {
	return "测试店铺", nil
}

func (a *fakeAdapter) PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return nil, nil
}

func (a *fakeAdapter) PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.goods = append(a.goods, goodsID)
	return nil
}

func (a *fakeAdapter) popups() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.goods...)
}

type savedState struct {
	accountID string
	state     string
}

type fakeSaver struct {
	ch chan savedState
}

func (s *fakeSaver) SaveStorageState(ctx context.Context, accountID, state string) error {
	s.ch <- savedState{accountID, state}
	return errors.New("игнорируется")
}

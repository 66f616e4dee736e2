package platform

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
)

const (
	accountNameAttempts = 5
	accountNameDelay    = 500 * time.Millisecond
)

// surface - адреса и опорные селекторы дашборда.
type surface struct {
	Home  string
	Login string
	// LoginHints - подстроки URL, по которым узнаётся страница входа.
	LoginHints []string
	// Ready виден только на рабочей странице управления.
	Ready string
	// LoggedIn появляется после входа на любой странице кабинета.
	LoggedIn string
	Account  string
	Overlays []string
}

// dashboard - общая часть адаптеров: проверка входа, ожидание логина
// и чтение имени аккаунта. Действия каждая платформа реализует сама.
type dashboard struct {
	name Name
	caps Capabilities
	surf surface
	deps Deps
	log  *zap.Logger
}

func newDashboard(name Name, caps Capabilities, surf surface, deps Deps) dashboard {
	deps = deps.withDefaults()
	if surf.LoggedIn == "" {
		surf.LoggedIn = surf.Account
	}
	return dashboard{
		name: name,
		caps: caps,
		surf: surf,
		deps: deps,
		log:  deps.Log.Named(string(name)),
	}
}

func (d *dashboard) Name() Name                 { return d.name }
func (d *dashboard) Capabilities() Capabilities { return d.caps }

func (d *dashboard) isLoginURL(url string) bool {
	for _, hint := range d.surf.LoginHints {
		if strings.Contains(url, hint) {
			return true
		}
	}
	return false
}

func (d *dashboard) Connect(ctx context.Context, s browser.Session) (bool, error) {
	page := s.Page()
	if page == nil {
		return false, ErrPageNotFound(d.name, "сессия без страницы")
	}

	if err := browser.Goto(ctx, page, d.surf.Home, d.deps.Timeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, ErrConnection(d.name, err)
	}

	if d.isLoginURL(page.URL()) {
		d.log.Info("Требуется вход", zap.String("url", page.URL()))
		return false, nil
	}

	if _, err := browser.WaitVisible(ctx, page, d.surf.Ready, d.deps.Timeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		d.log.Info("Страница управления не открылась", zap.String("url", page.URL()), zap.Error(err))
		return false, nil
	}

	browser.DismissOverlays(ctx, page, d.surf.Overlays...)
	return true, nil
}

// Login ждёт, пока оператор уйдёт со страницы входа и в кабинете появится
// маркер авторизации. Проверка раз в LoginPoll.
func (d *dashboard) Login(ctx context.Context, s browser.Session) error {
	page := s.Page()
	if page == nil {
		return ErrPageNotFound(d.name, "сессия без страницы")
	}

	if err := browser.Goto(ctx, page, d.surf.Login, d.deps.Timeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrConnection(d.name, err)
	}

	d.log.Info("Ожидание входа оператора", zap.String("url", d.surf.Login))

	ticker := time.NewTicker(d.deps.LoginPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if page.IsClosed() {
			return ErrPageNotFound(d.name, "окно входа закрыто")
		}
		if d.isLoginURL(page.URL()) {
			continue
		}
		if visible, _ := page.Locator(d.surf.LoggedIn).First().IsVisible(); visible {
			d.log.Info("Вход выполнен", zap.String("url", page.URL()))
			return nil
		}
	}
}

func (d *dashboard) AccountName(ctx context.Context, s browser.Session) (string, error) {
	page := s.Page()
	if page == nil {
		return "", ErrPageNotFound(d.name, "сессия без страницы")
	}
	return readText(ctx, page, "имя аккаунта", d.surf.Account, accountNameAttempts, accountNameDelay)
}

// controlPage возвращает страницу управления, при необходимости переходя на неё.
func (d *dashboard) controlPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	page := s.Page()
	if page == nil || page.IsClosed() {
		return nil, ErrPageNotFound(d.name, "")
	}

	if !strings.HasPrefix(page.URL(), d.surf.Home) {
		if err := browser.Goto(ctx, page, d.surf.Home, d.deps.Timeout); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrPageNotFound(d.name, err.Error())
		}
	}

	if _, err := locate(ctx, page, "страница управления", d.surf.Ready, d.deps.Timeout); err != nil {
		if IsKind(err, KindElementNotFound) {
			return nil, ErrPageNotFound(d.name, page.URL())
		}
		return nil, err
	}
	return page, nil
}

// locate ждёт видимый элемент. Таймаут превращается в element-not-found,
// отмена контекста возвращается как есть.
func locate(ctx context.Context, page playwright.Page, element, selector string, timeout time.Duration) (playwright.Locator, error) {
	if page == nil {
		return nil, ErrPageNotFound("", "")
	}
	loc, err := browser.WaitVisible(ctx, page, selector, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrElementNotFound(element, selector, err)
	}
	return loc, nil
}

// within ищет элемент внутри другого без ожидания.
func within(parent playwright.Locator, element, selector string) (playwright.Locator, error) {
	loc := parent.Locator(selector).First()
	n, err := parent.Locator(selector).Count()
	if err != nil || n == 0 {
		return nil, ErrElementNotFound(element, selector, err)
	}
	return loc, nil
}

// fillInput заполняет поле и проверяет, что текст действительно вставился.
func fillInput(ctx context.Context, page playwright.Page, element, selector, text string, timeout time.Duration) (playwright.Locator, error) {
	input, err := locate(ctx, page, element, selector, timeout)
	if err != nil {
		return nil, err
	}

	if err := input.Fill(text); err != nil {
		return nil, ErrUnexpected("заполнение поля «"+element+"»", err)
	}

	value, err := input.InputValue()
	if err != nil {
		// contenteditable не отдаёт value
		value, err = input.InnerText()
		if err != nil {
			return nil, ErrUnexpected("чтение поля «"+element+"»", err)
		}
	}
	if strings.TrimSpace(value) != strings.TrimSpace(text) {
		return nil, ErrContentMismatch(element, text, value)
	}
	return input, nil
}

// clickEnabled нажимает кнопку, если она активна.
func clickEnabled(button playwright.Locator, element, selector string) error {
	enabled, err := button.IsEnabled()
	if err != nil {
		return ErrElementNotFound(element, selector, err)
	}
	if !enabled {
		return ErrElementDisabled(element, selector)
	}
	if class, _ := button.GetAttribute("class"); strings.Contains(class, "disabled") {
		return ErrElementDisabled(element, selector)
	}
	if err := button.Click(); err != nil {
		return ErrUnexpected("нажатие «"+element+"»", err)
	}
	return nil
}

// expectText сверяет текст элемента с ожидаемым.
func expectText(loc playwright.Locator, element, expected string) error {
	actual, err := loc.InnerText()
	if err != nil {
		return ErrElementNotFound(element, "", err)
	}
	if !strings.Contains(strings.TrimSpace(actual), expected) {
		return ErrContentMismatch(element, expected, strings.TrimSpace(actual))
	}
	return nil
}

// readText делает несколько коротких попыток прочитать текст элемента.
func readText(ctx context.Context, page playwright.Page, element, selector string, attempts int, delay time.Duration) (string, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := browser.Sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		loc := page.Locator(selector).First()
		text, err := loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(float64(delay.Milliseconds()))})
		if err != nil {
			lastErr = err
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
		lastErr = errors.New("пустой текст")
	}
	return "", ErrElementNotFound(element, selector, lastErr)
}

// pinLatest закрепляет последнее сообщение с указанным текстом:
// наведение на строку чата открывает меню действий.
func pinLatest(ctx context.Context, page playwright.Page, item, pinButton, text string, timeout time.Duration) error {
	row := page.Locator(item).Filter(playwright.LocatorFilterOptions{HasText: text}).Last()
	if _, err := browser.RunWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, row.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
	}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrElementNotFound("отправленное сообщение", item, err)
	}

	if err := row.Hover(); err != nil {
		return ErrUnexpected("наведение на сообщение", err)
	}

	pin, err := within(row, "кнопка закрепления", pinButton)
	if err != nil {
		pin, err = locate(ctx, page, "кнопка закрепления", pinButton, timeout)
		if err != nil {
			return err
		}
	}
	return clickEnabled(pin, "кнопка закрепления", pinButton)
}

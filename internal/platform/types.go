// Package platform содержит адаптеры дашбордов управления трансляцией.
// Каждая платформа знает свой DOM: как проверить вход, как провести оператора
// через логин, где взять имя аккаунта и как выполнить поддерживаемые действия.
package platform

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/listener"
)

// Name - идентификатор платформы. Набор закрыт, см. registry.
type Name string

const (
	Douyin      Name = "douyin"
	Buyin       Name = "buyin"
	Xiaohongshu Name = "xiaohongshu"
	WxChannel   Name = "wxchannel"
	Taobao      Name = "taobao"
	Dev         Name = "dev"
)

// Capabilities - битовая маска поддерживаемых функций.
type Capabilities uint8

const (
	CapPopup Capabilities = 1 << iota
	CapComment
	CapListen
)

func (c Capabilities) Has(f Capabilities) bool {
	return f != 0 && c&f == f
}

// Feature - название функции для сообщений оператору.
func (c Capabilities) Feature() string {
	switch c {
	case CapPopup:
		return "всплывающая карточка товара"
	case CapComment:
		return "отправка комментариев"
	case CapListen:
		return "прослушивание комментариев"
	default:
		return "неизвестная функция"
	}
}

func (c Capabilities) String() string {
	var parts []string
	for _, f := range []struct {
		cap  Capabilities
		name string
	}{{CapPopup, "popup"}, {CapComment, "comment"}, {CapListen, "listen"}} {
		if c.Has(f.cap) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Adapter - обязательная часть контракта платформы.
// Адаптер не хранит состояние между вызовами: задачи одной сессии
// вызывают его методы вперемешку.
type Adapter interface {
	Name() Name
	Capabilities() Capabilities
	// Connect открывает страницу управления и сообщает, авторизован ли оператор
	// и находится ли он на рабочей странице. Логин не запрашивает.
	Connect(ctx context.Context, s browser.Session) (bool, error)
	// Login открывает страницу входа и ждёт, пока оператор войдёт.
	// Сам по таймауту не завершается, отмена - через ctx.
	Login(ctx context.Context, s browser.Session) error
	AccountName(ctx context.Context, s browser.Session) (string, error)
}

type Popper interface {
	PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error)
	PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error
}

type Commenter interface {
	CommentPage(ctx context.Context, s browser.Session) (playwright.Page, error)
	PerformComment(ctx context.Context, page playwright.Page, text string, pinTop bool) error
}

type Listenable interface {
	CommentSource() listener.Source
}

// AsPopper проверяет наличие CapPopup и возвращает адаптер как Popper.
func AsPopper(a Adapter) (Popper, error) {
	if !a.Capabilities().Has(CapPopup) {
		return nil, ErrCapabilityMissing(a.Name(), CapPopup.Feature())
	}
	p, ok := a.(Popper)
	if !ok {
		return nil, ErrUnexpected("адаптер "+string(a.Name())+" заявляет popup без реализации", nil)
	}
	return p, nil
}

func AsCommenter(a Adapter) (Commenter, error) {
	if !a.Capabilities().Has(CapComment) {
		return nil, ErrCapabilityMissing(a.Name(), CapComment.Feature())
	}
	c, ok := a.(Commenter)
	if !ok {
		return nil, ErrUnexpected("адаптер "+string(a.Name())+" заявляет comment без реализации", nil)
	}
	return c, nil
}

func AsListenable(a Adapter) (Listenable, error) {
	if !a.Capabilities().Has(CapListen) {
		return nil, ErrCapabilityMissing(a.Name(), CapListen.Feature())
	}
	l, ok := a.(Listenable)
	if !ok {
		return nil, ErrUnexpected("адаптер "+string(a.Name())+" заявляет listen без реализации", nil)
	}
	return l, nil
}

// Deps - общие параметры адаптеров.
type Deps struct {
	Log *zap.Logger
	// Timeout - ожидание элементов и навигации.
	Timeout time.Duration
	// LoginPoll - период проверки завершения входа.
	LoginPoll time.Duration
	// DevURL - адрес локального тестового дашборда.
	DevURL string
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	if d.LoginPoll <= 0 {
		d.LoginPoll = time.Second
	}
	if d.DevURL == "" {
		d.DevURL = "http://127.0.0.1:5173"
	}
	return d
}

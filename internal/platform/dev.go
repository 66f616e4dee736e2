package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"liveAgent/internal/browser"
)

// dev - локальный тестовый дашборд с устойчивой разметкой data-testid.
// На нём проверяются задачи без реальной платформы.
type dev struct {
	dashboard
}

func devSurface(base string) surface {
	base = strings.TrimRight(base, "/")
	return surface{
		Home:       base + "/control",
		Login:      base + "/login",
		LoginHints: []string{"/login"},
		Ready:      "[data-testid='control-panel']",
		Account:    "[data-testid='account-name']",
	}
}

func newDev(d Deps) Adapter {
	d = d.withDefaults()
	return &dev{dashboard: newDashboard(Dev, CapPopup|CapComment, devSurface(d.DevURL), d)}
}

func (a *dev) PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *dev) CommentPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *dev) PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error {
	sel := fmt.Sprintf("[data-testid='goods-%d'] [data-testid='popup']", goodsID)
	btn, err := locate(ctx, page, fmt.Sprintf("товар %d", goodsID), sel, a.deps.Timeout)
	if err != nil {
		return err
	}
	if err := clickEnabled(btn, "кнопка показа", sel); err != nil {
		return err
	}

	current, err := locate(ctx, page, "текущий товар", "[data-testid='current-goods']", a.deps.Timeout)
	if err != nil {
		return err
	}
	return expectText(current, "текущий товар", fmt.Sprint(goodsID))
}

func (a *dev) PerformComment(ctx context.Context, page playwright.Page, text string, pinTop bool) error {
	if _, err := fillInput(ctx, page, "поле комментария", "[data-testid='comment-input']", text, a.deps.Timeout); err != nil {
		return err
	}

	if pinTop {
		pin := page.Locator("[data-testid='pin-top']").First()
		if checked, _ := pin.IsChecked(); !checked {
			if err := pin.Check(); err != nil {
				return ErrElementNotFound("флажок закрепления", "[data-testid='pin-top']", err)
			}
		}
	}

	send, err := locate(ctx, page, "кнопка отправки", "[data-testid='send']", a.deps.Timeout)
	if err != nil {
		return err
	}
	return clickEnabled(send, "кнопка отправки", "[data-testid='send']")
}

package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
)

// commonOverlaySelectors - кнопки закрытия, которые встречаются на всех
// дашбордах: уведомления, гайды новых функций, модалки рекламы.
var commonOverlaySelectors = []string{
	"[role='dialog'] button[aria-label*='close' i]",
	"[role='dialog'] button[aria-label*='关闭']",
	".ant-modal-close",
	".semi-modal-close",
	".el-dialog__headerbtn",
	"button:has-text('我知道了')",
	"button:has-text('知道了')",
	"button:has-text('跳过')",
}

// DismissOverlays закрывает видимые всплывающие окна. Ошибки игнорируются:
// отсутствие окна - нормальное состояние.
func DismissOverlays(ctx context.Context, page playwright.Page, extra ...string) int {
	if page == nil {
		return 0
	}

	selectors := append(append([]string{}, extra...), commonOverlaySelectors...)
	closed := 0

	for _, selector := range selectors {
		if ctx.Err() != nil {
			return closed
		}

		items, err := page.Locator(selector).All()
		if err != nil {
			continue
		}

		for _, item := range items {
			visible, err := item.IsVisible()
			if err != nil || !visible {
				continue
			}

			if err := item.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err == nil {
				closed++
				_ = Sleep(ctx, 300*time.Millisecond)
			}
		}
	}

	return closed
}

// WaitVisible ждёт появления элемента и возвращает его локатор.
func WaitVisible(ctx context.Context, page playwright.Page, selector string, timeout time.Duration) (playwright.Locator, error) {
	loc := page.Locator(selector).First()
	_, err := RunWithContext(ctx, func() (struct{}, error) {
		return struct{}{}, loc.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
	})
	if err != nil {
		return nil, err
	}
	return loc, nil
}

// Goto переходит по адресу с учётом отмены контекста.
func Goto(ctx context.Context, page playwright.Page, url string, timeout time.Duration) error {
	_, err := RunWithContext(ctx, func() (playwright.Response, error) {
		return page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
	})
	return err
}

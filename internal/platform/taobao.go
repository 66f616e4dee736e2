package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"liveAgent/internal/browser"
)

var taobaoSurface = surface{
	Home:       "https://liveplatform.taobao.com/restful/index/live/control",
	Login:      "https://liveplatform.taobao.com/restful/index/home/dashboard",
	LoginHints: []string{"login.taobao.com", "/member/login"},
	Ready:      "div[class*='live-control'], div[class*='itemList']",
	LoggedIn:   "span[class*='userNick'], div[class*='header-user']",
	Account:    "span[class*='userNick']",
}

const (
	tbGoodsRow     = "div[class*='itemCard']:has-text('%d')"
	tbPopupBtn     = "button:has-text('弹窗'), span:has-text('弹讲解')"
	tbPopupActive  = "取消弹窗"
	tbCommentInput = "textarea[class*='commentInput'], input[placeholder*='回复']"
	tbSendBtn      = "button:has-text('发送'), button:has-text('回复')"
)

// taobao - 淘宝直播中控. Комментарии приходят через mtop с подписью,
// слушатель для них не подключается.
type taobao struct {
	dashboard
}

func newTaobao(d Deps) Adapter {
	return &taobao{dashboard: newDashboard(Taobao, CapPopup|CapComment, taobaoSurface, d)}
}

func (a *taobao) PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *taobao) CommentPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *taobao) PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error {
	browser.DismissOverlays(ctx, page, a.surf.Overlays...)

	rowSel := fmt.Sprintf(tbGoodsRow, goodsID)
	row, err := locate(ctx, page, fmt.Sprintf("товар %d", goodsID), rowSel, a.deps.Timeout)
	if err != nil {
		return err
	}

	btn, err := within(row, "кнопка «弹窗»", tbPopupBtn)
	if err != nil {
		return err
	}
	if err := clickEnabled(btn, "кнопка «弹窗»", tbPopupBtn); err != nil {
		return err
	}
	if err := browser.Sleep(ctx, 300*time.Millisecond); err != nil {
		return err
	}
	return expectText(row, "карточка товара", tbPopupActive)
}

func (a *taobao) PerformComment(ctx context.Context, page playwright.Page, text string, pinTop bool) error {
	if _, err := fillInput(ctx, page, "поле комментария", tbCommentInput, text, a.deps.Timeout); err != nil {
		return err
	}

	send, err := locate(ctx, page, "кнопка отправки", tbSendBtn, a.deps.Timeout)
	if err != nil {
		return err
	}
	if err := clickEnabled(send, "кнопка отправки", tbSendBtn); err != nil {
		return err
	}

	if pinTop {
		// закрепления в чате 中控 нет
		a.log.Debug("Закрепление не поддерживается, сообщение отправлено без него")
	}
	return nil
}

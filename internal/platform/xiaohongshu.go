package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"liveAgent/internal/browser"
	"liveAgent/internal/listener"
)

var xhsSurface = surface{
	Home:       "https://ark.xiaohongshu.com/live_center_control",
	Login:      "https://ark.xiaohongshu.com/login",
	LoginHints: []string{"/login", "customer.xiaohongshu.com"},
	Ready:      "div.live-control-container, div[class*='goods-list']",
	LoggedIn:   "div.d-avatar, img[class*='avatar']",
	Account:    "span.account-name, div[class*='seller-name']",
	Overlays:   []string{"div.d-modal button:has-text('我知道了')"},
}

const (
	xhsGoodsRow     = "div[class*='goods-item']:has(span:text-is('%d'))"
	xhsExplainBtn   = "button:has-text('讲解')"
	xhsExplaining   = "讲解中"
	xhsCommentInput = "div[class*='comment-input'] textarea, textarea[placeholder*='评论']"
	xhsSendBtn      = "button:has-text('发送')"
	xhsChatItem     = "div[class*='comment-item']"
	xhsPinBtn       = "span:has-text('置顶')"
)

// xiaohongshu - 千帆. Чат зрителей приходит только по IM WebSocket и снимается
// с кадров через CDP. Свои сообщения в IM не возвращаются, их видно только
// в ответе на отправку.
type xiaohongshu struct {
	dashboard
}

func newXiaohongshu(d Deps) Adapter {
	return &xiaohongshu{dashboard: newDashboard(Xiaohongshu, CapPopup|CapComment|CapListen, xhsSurface, d)}
}

func (a *xiaohongshu) PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *xiaohongshu) CommentPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *xiaohongshu) PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error {
	browser.DismissOverlays(ctx, page, a.surf.Overlays...)

	rowSel := fmt.Sprintf(xhsGoodsRow, goodsID)
	row, err := locate(ctx, page, fmt.Sprintf("товар %d", goodsID), rowSel, a.deps.Timeout)
	if err != nil {
		return err
	}

	btn, err := within(row, "кнопка «讲解»", xhsExplainBtn)
	if err != nil {
		return err
	}
	if err := clickEnabled(btn, "кнопка «讲解»", xhsExplainBtn); err != nil {
		return err
	}

	badge, err := locate(ctx, page, "отметка «讲解中»", rowSel+" span:has-text('"+xhsExplaining+"')", a.deps.Timeout)
	if err != nil {
		return ErrContentMismatch("статус товара", xhsExplaining, "")
	}
	return expectText(badge, "статус товара", xhsExplaining)
}

func (a *xiaohongshu) PerformComment(ctx context.Context, page playwright.Page, text string, pinTop bool) error {
	if _, err := fillInput(ctx, page, "поле комментария", xhsCommentInput, text, a.deps.Timeout); err != nil {
		return err
	}

	send, err := locate(ctx, page, "кнопка отправки", xhsSendBtn, a.deps.Timeout)
	if err != nil {
		return err
	}
	if err := clickEnabled(send, "кнопка отправки", xhsSendBtn); err != nil {
		return err
	}

	if pinTop {
		return pinLatest(ctx, page, xhsChatItem, xhsPinBtn, text, a.deps.Timeout)
	}
	return nil
}

func decodeXhsAck(body []byte, loc *time.Location) ([]listener.LiveMessage, error) {
	data, err := unwrapAPI(body, 0)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("подтверждение отправки: %w", err)
	}
	if payload.Content == "" {
		return nil, nil
	}
	return []listener.LiveMessage{selfAck(payload.Content, loc)}, nil
}

func (a *xiaohongshu) CommentSource() listener.Source {
	return listener.Source{
		Platform: string(Xiaohongshu),
		Frames:   true,
		Responses: []listener.ResponseRule{
			{Name: "ack", Match: "/api/edith/live/comment/send", Method: "POST", Decode: decodeXhsAck},
		},
	}
}

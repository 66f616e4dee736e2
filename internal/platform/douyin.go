package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/listener"
)

// compassSelectors - разметка панели управления ByteDance: 抖音小店 и 巨量百应
// используют один фронтенд, различаются адреса и шапка.
type compassSelectors struct {
	GoodsRow     string
	ExplainBtn   string
	CommentInput string
	SendBtn      string
	ChatItem     string
	PinBtn       string
}

var compassDOM = compassSelectors{
	GoodsRow:     "[data-rbd-draggable-id='%d']",
	ExplainBtn:   "button:has-text('讲解'), div[class*='talkBtn']",
	CommentInput: "textarea[class*='input'], textarea[placeholder*='说点什么']",
	SendBtn:      "div[class*='sendBtn'], button:has-text('发送')",
	ChatItem:     "div[class*='commentItem']",
	PinBtn:       "span:has-text('置顶'), div[class*='topBtn']",
}

const (
	explainActive = "取消讲解"
	explainIdle   = "讲解"
)

type compass struct {
	dashboard
	dom compassSelectors
}

func (c *compass) PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return c.controlPage(ctx, s)
}

func (c *compass) CommentPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return c.controlPage(ctx, s)
}

// PerformPopup включает «讲解» у товара. Если товар уже объясняется,
// сначала снимает «讲解», иначе карточка не всплывёт повторно.
func (c *compass) PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error {
	browser.DismissOverlays(ctx, page, c.surf.Overlays...)

	rowSel := fmt.Sprintf(c.dom.GoodsRow, goodsID)
	row, err := locate(ctx, page, fmt.Sprintf("товар %d", goodsID), rowSel, c.deps.Timeout)
	if err != nil {
		return err
	}
	if err := row.ScrollIntoViewIfNeeded(); err != nil {
		c.log.Debug("Прокрутка к товару", zap.Int("goods_id", goodsID), zap.Error(err))
	}

	btn, err := within(row, "кнопка «讲解»", c.dom.ExplainBtn)
	if err != nil {
		return err
	}

	text, _ := btn.InnerText()
	if strings.Contains(text, explainActive) {
		if err := clickEnabled(btn, "кнопка «取消讲解»", c.dom.ExplainBtn); err != nil {
			return err
		}
		if err := browser.Sleep(ctx, 500*time.Millisecond); err != nil {
			return err
		}
	}

	if err := clickEnabled(btn, "кнопка «讲解»", c.dom.ExplainBtn); err != nil {
		return err
	}
	if err := browser.Sleep(ctx, 300*time.Millisecond); err != nil {
		return err
	}
	return expectText(btn, "кнопка «讲解»", explainActive)
}

func (c *compass) PerformComment(ctx context.Context, page playwright.Page, text string, pinTop bool) error {
	browser.DismissOverlays(ctx, page, c.surf.Overlays...)

	if _, err := fillInput(ctx, page, "поле комментария", c.dom.CommentInput, text, c.deps.Timeout); err != nil {
		return err
	}

	send, err := locate(ctx, page, "кнопка отправки", c.dom.SendBtn, c.deps.Timeout)
	if err != nil {
		return err
	}
	if err := clickEnabled(send, "кнопка отправки", c.dom.SendBtn); err != nil {
		return err
	}

	if !pinTop {
		return nil
	}
	return pinLatest(ctx, page, c.dom.ChatItem, c.dom.PinBtn, text, c.deps.Timeout)
}

// compassComment - запись чата в ответе опроса комментариев.
type compassComment struct {
	CommentID  string    `json:"comment_id"`
	NickName   string    `json:"nick_name"`
	UID        string    `json:"uid"`
	Content    string    `json:"content"`
	CreateTime flexEpoch `json:"create_time"`
}

func decodeCompassComments(body []byte, loc *time.Location) ([]listener.LiveMessage, error) {
	data, err := unwrapAPI(body, 0)
	if err != nil {
		return nil, err
	}

	var payload struct {
		CommentInfos []jsoniter.RawMessage `json:"comment_infos"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("comment_infos: %w", err)
	}

	// битая запись выбрасывается одна, остальные в ответе сохраняются
	msgs := make([]listener.LiveMessage, 0, len(payload.CommentInfos))
	for _, raw := range payload.CommentInfos {
		var c compassComment
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		msgs = append(msgs, listener.LiveMessage{
			MsgType:  listener.MsgComment,
			MsgID:    c.CommentID,
			NickName: c.NickName,
			UserID:   c.UID,
			Content:  c.Content,
			Time:     listener.FormatEpoch(int64(c.CreateTime), loc),
		})
	}
	return msgs, nil
}

func decodeCompassAck(body []byte, loc *time.Location) ([]listener.LiveMessage, error) {
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

func compassSource(p Name) listener.Source {
	return listener.Source{
		Platform: string(p),
		Responses: []listener.ResponseRule{
			{Name: "comments", Match: "/api/anchor/comment/info", Decode: decodeCompassComments},
			{Name: "ack", Match: "/api/anchor/comment/operate/send", Method: "POST", Decode: decodeCompassAck},
		},
	}
}

var douyinSurface = surface{
	Home:       "https://fxg.jinritemai.com/ffa/buyin/dashboard/live/control",
	Login:      "https://fxg.jinritemai.com/login/common",
	LoginHints: []string{"/login"},
	Ready:      "div[class*='goodsPanel'], div[class*='live-control']",
	Account:    "div[class*='userName'], span[class*='headerShopName']",
	Overlays:   []string{"div[class*='guideModal'] button"},
}

type douyin struct {
	compass
}

func newDouyin(d Deps) Adapter {
	return &douyin{compass: compass{
		dashboard: newDashboard(Douyin, CapPopup|CapComment|CapListen, douyinSurface, d),
		dom:       compassDOM,
	}}
}

func (a *douyin) CommentSource() listener.Source {
	return compassSource(Douyin)
}

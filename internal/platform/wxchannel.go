package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"

	"liveAgent/internal/browser"
	"liveAgent/internal/listener"
)

var wxSurface = surface{
	Home:       "https://channels.weixin.qq.com/platform/live/liveBuild",
	Login:      "https://channels.weixin.qq.com/login.html",
	LoginHints: []string{"login.html"},
	Ready:      "div.live-control-panel, div[class*='live-room']",
	LoggedIn:   "div.finder-nickname",
	Account:    "div.finder-nickname",
}

const (
	wxGoodsRow     = "div.product-item:has(div.product-id:text-is('%d'))"
	wxPushBtn      = "span:has-text('推送'), button:has-text('推送')"
	wxPushed       = "已推送"
	wxCommentInput = "textarea.message-input, div.comment-input textarea"
	wxSendBtn      = "button:has-text('发送')"
	wxChatItem     = "div.live-message-item"
	wxPinBtn       = "span:has-text('置顶')"
)

// wxchannel - 视频号助手. Комментарии страница опрашивает сама,
// слушатель снимает их с ответов опроса.
type wxchannel struct {
	dashboard
}

func newWxChannel(d Deps) Adapter {
	return &wxchannel{dashboard: newDashboard(WxChannel, CapPopup|CapComment|CapListen, wxSurface, d)}
}

func (a *wxchannel) PopupPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *wxchannel) CommentPage(ctx context.Context, s browser.Session) (playwright.Page, error) {
	return a.controlPage(ctx, s)
}

func (a *wxchannel) PerformPopup(ctx context.Context, page playwright.Page, goodsID int) error {
	rowSel := fmt.Sprintf(wxGoodsRow, goodsID)
	row, err := locate(ctx, page, fmt.Sprintf("товар %d", goodsID), rowSel, a.deps.Timeout)
	if err != nil {
		return err
	}

	btn, err := within(row, "кнопка «推送»", wxPushBtn)
	if err != nil {
		return err
	}
	if err := clickEnabled(btn, "кнопка «推送»", wxPushBtn); err != nil {
		return err
	}
	if err := browser.Sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}
	return expectText(row, "товар", wxPushed)
}

func (a *wxchannel) PerformComment(ctx context.Context, page playwright.Page, text string, pinTop bool) error {
	input, err := fillInput(ctx, page, "поле комментария", wxCommentInput, text, a.deps.Timeout)
	if err != nil {
		return err
	}

	send, err := locate(ctx, page, "кнопка отправки", wxSendBtn, a.deps.Timeout)
	if err != nil {
		// в узком окне кнопки нет, отправка по Enter
		if perr := input.Press("Enter"); perr != nil {
			return err
		}
	} else if err := clickEnabled(send, "кнопка отправки", wxSendBtn); err != nil {
		return err
	}

	if pinTop {
		return pinLatest(ctx, page, wxChatItem, wxPinBtn, text, a.deps.Timeout)
	}
	return nil
}

// wxMessage - запись из ответа опроса сообщений.
type wxMessage struct {
	ClientMsgID string    `json:"clientMsgId"`
	SeqID       string    `json:"seq"`
	Nickname    string    `json:"nickname"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	Type        int       `json:"type"`
	CreateTime  flexEpoch `json:"createTime"`
}

// Типы записей в msgList.
const (
	wxMsgText  = 1
	wxMsgEnter = 10005
)

func decodeWxMessages(body []byte, loc *time.Location) ([]listener.LiveMessage, error) {
	var resp struct {
		ErrCode int `json:"errCode"`
		Data    struct {
			MsgList []jsoniter.RawMessage `json:"msgList"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("msgList: %w", err)
	}
	if resp.ErrCode != 0 {
		return nil, fmt.Errorf("errCode %d", resp.ErrCode)
	}

	msgs := make([]listener.LiveMessage, 0, len(resp.Data.MsgList))
	for _, raw := range resp.Data.MsgList {
		var m wxMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		id := m.ClientMsgID
		if id == "" {
			id = m.SeqID
		}

		msg := listener.LiveMessage{
			MsgID:    id,
			NickName: m.Nickname,
			UserID:   m.Username,
			Time:     listener.FormatEpoch(int64(m.CreateTime), loc),
		}
		switch m.Type {
		case wxMsgText:
			if strings.TrimSpace(m.Content) == "" {
				continue
			}
			msg.MsgType = listener.MsgComment
			msg.Content = m.Content
		case wxMsgEnter:
			msg.MsgType = listener.MsgRoomEnter
		default:
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func decodeWxAck(body []byte, loc *time.Location) ([]listener.LiveMessage, error) {
	var resp struct {
		ErrCode int `json:"errCode"`
		Data    struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("подтверждение отправки: %w", err)
	}
	if resp.ErrCode != 0 || resp.Data.Content == "" {
		return nil, nil
	}
	return []listener.LiveMessage{selfAck(resp.Data.Content, loc)}, nil
}

func (a *wxchannel) CommentSource() listener.Source {
	return listener.Source{
		Platform: string(WxChannel),
		Responses: []listener.ResponseRule{
			{Name: "messages", Match: "/live/msg", Decode: decodeWxMessages},
			{Name: "ack", Match: "/live/post_live_msg", Method: "POST", Decode: decodeWxAck},
		},
	}
}

// Package listener восстанавливает поток сообщений чата прямой трансляции
// из сетевого трафика страницы: ответов XHR/fetch и кадров WebSocket.
package listener

import (
	"time"

	"github.com/google/uuid"
)

type MsgType string

const (
	MsgComment   MsgType = "comment"
	MsgRoomEnter MsgType = "room_enter"
	MsgLike      MsgType = "room_like"
	MsgFollow    MsgType = "subscribe"
	MsgOrder     MsgType = "live_order"
)

// TimeLayout - формат поля Time, в котором сообщения уходят оператору.
const TimeLayout = "2006-01-02 15:04:05"

// LiveMessage - нормализованное событие чата. MsgID уникален в пределах
// потока одной сессии, по нему потребитель убирает дубли.
type LiveMessage struct {
	MsgType  MsgType `json:"msg_type"`
	MsgID    string  `json:"msg_id"`
	NickName string  `json:"nick_name"`
	UserID   string  `json:"user_id,omitempty"`
	Content  string  `json:"content,omitempty"`
	Time     string  `json:"time"`
	// Self - сообщение отправлено самим оператором (подтверждение отправки).
	Self bool `json:"self,omitempty"`
	// OrderStatus и ProductTitle заполняются только для MsgOrder.
	OrderStatus  string `json:"order_status,omitempty"`
	ProductTitle string `json:"product_title,omitempty"`
}

// NewMessageID синтезирует идентификатор для сообщений без собственного id.
func NewMessageID() string {
	return uuid.NewString()
}

// MessageID возвращает native, а если он пустой - новый сгенерированный id.
func MessageID(native string) string {
	if native != "" {
		return native
	}
	return NewMessageID()
}

// FormatEpoch форматирует время из платформенного payload. Значения от 1e12
// считаются миллисекундами, меньшие - секундами; ноль - текущее время.
func FormatEpoch(epoch int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var t time.Time
	switch {
	case epoch <= 0:
		t = time.Now()
	case epoch >= 1e12:
		t = time.UnixMilli(epoch)
	default:
		t = time.Unix(epoch, 0)
	}
	return t.In(loc).Format(TimeLayout)
}

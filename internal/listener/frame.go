package listener

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Дискриминаторы конвертов IM-протокола.
const (
	frameHasPayload = 4
	commandBusiness = 1
	bodyTypeText    = "text"
)

var (
	errNoPayload    = errors.New("кадр без полезной нагрузки")
	errNotBusiness  = errors.New("не бизнес-сообщение")
	errNotText      = errors.New("не текстовое сообщение")
	errEmptyContent = errors.New("пустой текст")
)

// outerFrame - внешний конверт кадра: t=4 означает наличие записей data.
type outerFrame struct {
	T    int          `json:"t"`
	Data []frameEntry `json:"data"`
}

type frameEntry struct {
	Payload string `json:"payload"`
}

// innerEnvelope - содержимое base64 записи.
type innerEnvelope struct {
	Command    int    `json:"command"`
	CustomData string `json:"customData"`
}

// chatBody лежит JSON-строкой в customData.
type chatBody struct {
	Type     string `json:"type"`
	MsgID    string `json:"msgId"`
	NickName string `json:"nickName"`
	UserID   string `json:"userId"`
	Content  string `json:"content"`
	Time     int64  `json:"time"`
}

// FrameResult - итог разбора одного кадра.
type FrameResult struct {
	Messages []LiveMessage
	// Dropped - записи с ошибкой формата. Служебные сообщения сюда не входят.
	Dropped int
}

// DecodeFrame разбирает payload кадра WebSocket. Ошибка в одной записи
// отбрасывает только эту запись, кадр целиком не ломается.
func DecodeFrame(payload []byte, loc *time.Location) FrameResult {
	var outer outerFrame
	if err := json.Unmarshal(payload, &outer); err != nil {
		return FrameResult{Dropped: 1}
	}
	if outer.T != frameHasPayload {
		return FrameResult{}
	}

	var res FrameResult
	for _, entry := range outer.Data {
		msg, err := decodeEntry(entry, loc)
		switch {
		case err == nil:
			res.Messages = append(res.Messages, msg)
		case errors.Is(err, errNotBusiness), errors.Is(err, errNotText):
			// присутствие, обновления счётчиков и прочие служебные сигналы
		default:
			res.Dropped++
		}
	}
	return res
}

func decodeEntry(entry frameEntry, loc *time.Location) (LiveMessage, error) {
	if entry.Payload == "" {
		return LiveMessage{}, errNoPayload
	}

	raw, err := base64.StdEncoding.DecodeString(entry.Payload)
	if err != nil {
		return LiveMessage{}, fmt.Errorf("base64: %w", err)
	}

	var env innerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return LiveMessage{}, fmt.Errorf("конверт: %w", err)
	}
	if env.Command != commandBusiness {
		return LiveMessage{}, errNotBusiness
	}
	if env.CustomData == "" {
		return LiveMessage{}, errors.New("нет customData")
	}

	var body chatBody
	if err := json.Unmarshal([]byte(env.CustomData), &body); err != nil {
		return LiveMessage{}, fmt.Errorf("customData: %w", err)
	}
	if body.Type != bodyTypeText {
		return LiveMessage{}, errNotText
	}
	if strings.TrimSpace(body.Content) == "" {
		return LiveMessage{}, errEmptyContent
	}

	return LiveMessage{
		MsgType:  MsgComment,
		MsgID:    MessageID(body.MsgID),
		NickName: body.NickName,
		UserID:   body.UserID,
		Content:  body.Content,
		Time:     FormatEpoch(body.Time, loc),
	}, nil
}

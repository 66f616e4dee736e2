package platform

import (
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"liveAgent/internal/listener"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiEnvelope - общий конверт JSON API кабинетов: ненулевой code означает отказ.
type apiEnvelope struct {
	Code    int                 `json:"code"`
	Msg     string              `json:"msg"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

func unwrapAPI(body []byte, okCode int) (jsoniter.RawMessage, error) {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("конверт ответа: %w", err)
	}
	if env.Code != okCode {
		msg := env.Msg
		if msg == "" {
			msg = env.Message
		}
		return nil, fmt.Errorf("код ответа %d: %s", env.Code, msg)
	}
	return env.Data, nil
}

// flexEpoch принимает время и числом, и строкой: кабинеты отдают оба варианта.
type flexEpoch int64

func (e *flexEpoch) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*e = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*e = flexEpoch(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*e = flexEpoch(n)
	return nil
}

// selfAck - сообщение, отправленное самим оператором. Своего id у него нет,
// listener синтезирует его.
func selfAck(content string, loc *time.Location) listener.LiveMessage {
	return listener.LiveMessage{
		MsgType:  listener.MsgComment,
		NickName: "主播",
		Content:  content,
		Time:     listener.FormatEpoch(0, loc),
		Self:     true,
	}
}

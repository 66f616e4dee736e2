package listener

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shanghai(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

// buildEntry собирает base64 запись с заданными command и customData.
func buildEntry(t *testing.T, command int, custom interface{}) string {
	t.Helper()
	customData := ""
	switch c := custom.(type) {
	case string:
		customData = c
	case nil:
	default:
		customData = mustJSON(t, c)
	}
	inner := mustJSON(t, map[string]interface{}{
		"command":    command,
		"customData": customData,
	})
	return base64.StdEncoding.EncodeToString([]byte(inner))
}

func buildFrame(t *testing.T, tag int, payloads ...string) []byte {
	t.Helper()
	data := make([]map[string]string, 0, len(payloads))
	for _, p := range payloads {
		data = append(data, map[string]string{"payload": p})
	}
	return []byte(mustJSON(t, map[string]interface{}{"t": tag, "data": data}))
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	loc := shanghai(t)
	epoch := int64(1718000000123)

	frame := buildFrame(t, 4, buildEntry(t, 1, map[string]interface{}{
		"type":     "text",
		"msgId":    "m-1",
		"nickName": "小王",
		"userId":   "u-9",
		"content":  "多少钱",
		"time":     epoch,
	}))

	res := DecodeFrame(frame, loc)

	want := []LiveMessage{{
		MsgType:  MsgComment,
		MsgID:    "m-1",
		NickName: "小王",
		UserID:   "u-9",
		Content:  "多少钱",
		Time:     time.UnixMilli(epoch).In(loc).Format(TimeLayout),
	}}
	if diff := cmp.Diff(want, res.Messages); diff != "" {
		t.Fatalf("сообщения отличаются (-want +got):\n%s", diff)
	}
	assert.Zero(t, res.Dropped)
}

func TestDecodeFrame_SecondsEpoch(t *testing.T) {
	loc := shanghai(t)
	frame := buildFrame(t, 4, buildEntry(t, 1, map[string]interface{}{
		"type": "text", "nickName": "a", "content": "b", "time": 1718000000,
	}))

	res := DecodeFrame(frame, loc)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, time.Unix(1718000000, 0).In(loc).Format(TimeLayout), res.Messages[0].Time)
	assert.NotEmpty(t, res.Messages[0].MsgID, "id синтезируется")
}

func TestDecodeFrame_InvalidEntriesDropped(t *testing.T) {
	loc := shanghai(t)
	good := buildEntry(t, 1, map[string]interface{}{
		"type": "text", "msgId": "ok", "nickName": "n", "content": "c", "time": 1,
	})

	tests := []struct {
		name    string
		entry   string
		dropped int
	}{
		{"битый base64", "%%%не-base64%%%", 1},
		{"не JSON внутри", base64.StdEncoding.EncodeToString([]byte("not json")), 1},
		{"битый customData", buildEntry(t, 1, "{oops"), 1},
		{"нет customData", buildEntry(t, 1, nil), 1},
		{"пустой payload", "", 1},
		{"другая команда", buildEntry(t, 2, map[string]interface{}{"type": "text", "content": "x"}), 0},
		{"не текст", buildEntry(t, 1, map[string]interface{}{"type": "refresh"}), 0},
		{"пустой текст", buildEntry(t, 1, map[string]interface{}{"type": "text", "content": "  "}), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DecodeFrame(buildFrame(t, 4, tt.entry, good), loc)

			require.Len(t, res.Messages, 1, "валидная запись рядом должна дойти")
			assert.Equal(t, "ok", res.Messages[0].MsgID)
			assert.Equal(t, tt.dropped, res.Dropped)
		})
	}
}

func TestDecodeFrame_OuterLayer(t *testing.T) {
	loc := shanghai(t)
	entry := buildEntry(t, 1, map[string]interface{}{"type": "text", "content": "x"})

	assert.Equal(t, FrameResult{Dropped: 1}, DecodeFrame([]byte("{broken"), loc))
	assert.Equal(t, FrameResult{}, DecodeFrame(buildFrame(t, 3, entry), loc), "t!=4 без payload")
	assert.Empty(t, DecodeFrame([]byte(`{"t":4}`), loc).Messages)
}

func TestDecodeFrame_NeverPanicsOnGarbage(t *testing.T) {
	loc := shanghai(t)
	inputs := [][]byte{
		nil,
		[]byte(""),
		[]byte("null"),
		[]byte(`{"t":"4"}`),
		[]byte(`{"t":4,"data":"x"}`),
		[]byte(`{"t":4,"data":[null,{"payload":123}]}`),
		[]byte(`[1,2,3]`),
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			res := DecodeFrame(in, loc)
			assert.Empty(t, res.Messages)
		}, string(in))
	}
}

func TestFormatEpoch(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	assert.Equal(t, "2024-06-10 14:13:20", FormatEpoch(1718000000, loc))
	assert.Equal(t, "2024-06-10 14:13:20", FormatEpoch(1718000000000, loc))
	assert.NotEmpty(t, FormatEpoch(0, nil))
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "native", MessageID("native"))
	a, b := MessageID(""), MessageID("")
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func base64Std(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

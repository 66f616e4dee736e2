package task

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
)

func TestPopup_SequentialScenario(t *testing.T) {
	sl := &stepSleeper{allow: 1}
	popper := &fakePopper{}

	task, err := NewPopup(popper, nil, []byte(`{"goodsIds":[101,102],"interval":[3000,3000],"random":false}`), testEnv(t, sl))
	require.NoError(t, err)
	require.NoError(t, task.Start(t.Context()))

	require.Eventually(t, func() bool { return len(popper.calls()) == 2 }, time.Second, time.Millisecond)
	task.Stop()

	assert.Equal(t, []int{101, 102}, popper.calls())
	for _, d := range sl.recorded() {
		assert.Equal(t, 3*time.Second, d)
	}
}

func TestPopup_UpdateConfigResetsOrder(t *testing.T) {
	task, err := NewPopup(&fakePopper{}, nil, []byte(`{"goodsIds":[1,2,3],"interval":[1000,2000]}`), testEnv(t, &stepSleeper{}))
	require.NoError(t, err)

	task.nextUnit()
	task.nextUnit()
	require.NoError(t, task.UpdateConfig([]byte(`{"goodsIds":[9,8]}`)))

	assert.Equal(t, []int{9, 8}, task.cfg.GoodsIDs)
	assert.Equal(t, Interval{1000, 2000}, task.cfg.Interval, "поля вне partial сохраняются")
	assert.Equal(t, 0, task.sel.next)

	assert.Error(t, task.UpdateConfig([]byte(`{"goodsIds":[]}`)))
	assert.Equal(t, []int{9, 8}, task.cfg.GoodsIDs, "неверное обновление не применяется")
}

func TestPopup_InvalidConfig(t *testing.T) {
	env := testEnv(t, &stepSleeper{})
	_, err := NewPopup(&fakePopper{}, nil, []byte(`{"goodsIds":[],"interval":[1,2]}`), env)
	assert.Error(t, err)
	_, err = NewPopup(&fakePopper{}, nil, []byte(`{"goodsIds":[1],"interval":[5,2]}`), env)
	assert.Error(t, err)
	_, err = NewPopup(&fakePopper{}, nil, nil, env)
	assert.Error(t, err)
}

func TestComment_PinTopAndSpaces(t *testing.T) {
	sl := &stepSleeper{allow: 2}
	c := &fakeCommenter{}

	cfg := `{"messages":[{"content":"欢迎来到直播间","pinTop":true},{"content":"点点关注"}],"interval":[1000,1000],"extraSpaces":true}`
	task, err := NewComment(c, nil, []byte(cfg), testEnv(t, sl))
	require.NoError(t, err)
	require.NoError(t, task.Start(t.Context()))

	require.Eventually(t, func() bool { return len(c.messages()) == 3 }, time.Second, time.Millisecond)
	task.Stop()

	msgs := c.messages()
	assert.True(t, msgs[0].pinTop)
	assert.False(t, msgs[1].pinTop)
	assert.Equal(t, "欢迎来到直播间", strings.ReplaceAll(msgs[0].text, " ", ""))
	assert.Contains(t, msgs[0].text, " ")
	assert.Equal(t, "点点关注", strings.ReplaceAll(msgs[1].text, " ", ""))
}

func TestComment_StartFailsWithoutPage(t *testing.T) {
	c := &fakeCommenter{pageErr: platform.ErrPageNotFound(platform.Dev, "")}
	task, err := NewComment(c, nil, []byte(`{"messages":[{"content":"x"}],"interval":[1,1]}`), testEnv(t, &stepSleeper{}))
	require.NoError(t, err)

	err = task.Start(t.Context())
	assert.True(t, platform.IsKind(err, platform.KindPageNotFound))
	task.Stop()
}

func TestBatch_SendsCountAndStopsItself(t *testing.T) {
	sl := &stepSleeper{allow: 10}
	c := &fakeCommenter{}

	task, err := NewBatch(c, nil, []byte(`{"messages":["a","b"],"count":3}`), testEnv(t, sl))
	require.NoError(t, err)

	stopped := make(chan struct{})
	task.OnStop(func() { close(stopped) })
	require.NoError(t, task.Start(t.Context()))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("пакетная задача не остановилась сама")
	}
	task.Stop()

	assert.Len(t, c.messages(), 3)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sl.recorded())
}

type fakeGenerator struct {
	reply string
	calls int
}

func (g *fakeGenerator) Reply(ctx context.Context, prompt string, msg listener.LiveMessage) (string, error) {
	g.calls++
	return g.reply, nil
}

func TestReply_RulesAIAndDedup(t *testing.T) {
	c := &fakeCommenter{}
	tap := &fakeTap{}
	gen := &fakeGenerator{reply: "稍等哦"}

	var forwarded []listener.LiveMessage
	deps := ReplyDeps{
		Source:    listener.Source{Platform: "dev"},
		Commenter: c,
		Generator: gen,
		Sink:      func(m listener.LiveMessage) { forwarded = append(forwarded, m) },
		NewTap: func(src listener.Source, sink func(listener.LiveMessage)) Tap {
			tap.sink = sink
			return tap
		},
	}
	cfg := `{"rules":[{"keywords":["价格","多少钱"],"replies":["看购物车1号"]}],"ai":{"enabled":true},"autoSend":true}`

	task, err := NewReply(nil, []byte(cfg), deps, testEnv(t, &stepSleeper{}))
	require.NoError(t, err)
	require.NoError(t, task.Start(t.Context()))

	tap.push(listener.LiveMessage{MsgType: listener.MsgComment, MsgID: "1", NickName: "小王", Content: "这个多少钱"})
	tap.push(listener.LiveMessage{MsgType: listener.MsgComment, MsgID: "1", NickName: "小王", Content: "这个多少钱"})
	tap.push(listener.LiveMessage{MsgType: listener.MsgComment, MsgID: "2", NickName: "阿红", Content: "发货快吗"})
	tap.push(listener.LiveMessage{MsgType: listener.MsgComment, MsgID: "3", NickName: "主播", Content: "欢迎", Self: true})
	tap.push(listener.LiveMessage{MsgType: listener.MsgRoomEnter, MsgID: "4", NickName: "路人"})

	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, time.Second, time.Millisecond)
	task.Stop()

	assert.Equal(t, "@小王 看购物车1号", c.messages()[0].text)
	assert.Equal(t, "@阿红 稍等哦", c.messages()[1].text)
	assert.Equal(t, 1, gen.calls)
	assert.Len(t, forwarded, 5, "в sink уходит весь поток")
	assert.Equal(t, 1, tap.stops)
}

func TestReply_AutoSendNeedsCommenter(t *testing.T) {
	_, err := NewReply(nil, []byte(`{"autoSend":true}`), ReplyDeps{}, testEnv(t, &stepSleeper{}))
	assert.True(t, platform.IsKind(err, platform.KindCapabilityMissing))
}

func TestMatchRules(t *testing.T) {
	rules := []ReplyRule{{Keywords: []string{"Link"}, Replies: []string{"1号链接"}}}
	assert.Equal(t, "1号链接", matchRules(rules, "where is the LINK", func(int) int { return 0 }))
	assert.Empty(t, matchRules(rules, "hello", func(int) int { return 0 }))
}

func TestIDSet_Bounded(t *testing.T) {
	s := newIDSet(2)
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Add("b"))
	assert.True(t, s.Add("c"))
	assert.True(t, s.Add("a"), "самый старый id вытеснен")
}

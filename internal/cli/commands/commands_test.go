package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"liveAgent/internal/app"
	"liveAgent/internal/database"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

type fakeControl struct {
	accounts   map[string]app.AccountView
	connectCfg session.ConnectConfig
	started    []task.Descriptor
	stopped    []task.Type
	updates    map[task.Type]string
	runs       []database.TaskRun
	comments   []listener.LiveMessage
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		accounts: map[string]app.AccountView{},
		updates:  map[task.Type]string{},
	}
}

func (f *fakeControl) Accounts() []app.AccountView {
	out := make([]app.AccountView, 0, len(f.accounts))
	for _, v := range f.accounts {
		out = append(out, v)
	}
	return out
}

func (f *fakeControl) Account(id string) (app.AccountView, error) {
	v, ok := f.accounts[id]
	if !ok {
		return app.AccountView{}, fmt.Errorf("%s: %w", id, session.ErrAccountNotFound)
	}
	return v, nil
}

func (f *fakeControl) CreateAccount(_ context.Context, name platform.Name, acc session.Account) (app.AccountView, error) {
	v := app.AccountView{ID: acc.ID, Name: acc.Name, Platform: name, Title: name.Title()}
	f.accounts[acc.ID] = v
	return v, nil
}

func (f *fakeControl) RemoveAccount(_ context.Context, id string) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeControl) Connect(_ context.Context, id string, cfg session.ConnectConfig) (session.ConnectResult, error) {
	if _, err := f.Account(id); err != nil {
		return session.ConnectResult{}, err
	}
	f.connectCfg = cfg
	return session.ConnectResult{AccountName: "主播小王"}, nil
}

func (f *fakeControl) Disconnect(id string) error {
	_, err := f.Account(id)
	return err
}

func (f *fakeControl) StartTask(_ context.Context, id string, d task.Descriptor) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	f.started = append(f.started, d)
	return nil
}

func (f *fakeControl) StopTask(id string, typ task.Type) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	f.stopped = append(f.stopped, typ)
	return nil
}

func (f *fakeControl) UpdateTask(id string, typ task.Type, partial json.RawMessage) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	f.updates[typ] = string(partial)
	return nil
}

func (f *fakeControl) Runs(_ context.Context, id string, _ int) ([]database.TaskRun, error) {
	if _, err := f.Account(id); err != nil {
		return nil, err
	}
	return f.runs, nil
}

func (f *fakeControl) Comments(_ string, n int) []listener.LiveMessage {
	if n < len(f.comments) {
		return f.comments[len(f.comments)-n:]
	}
	return f.comments
}

func TestAccountHandler_Lifecycle(t *testing.T) {
	ctl := newFakeControl()
	var out bytes.Buffer
	h := NewAccountHandler(ctl, zaptest.NewLogger(t), &out)
	ctx := context.Background()

	h.Add(ctx, []string{"buyin", "acc1", "主号"})
	require.Contains(t, ctl.accounts, "acc1")
	assert.Equal(t, "主号", ctl.accounts["acc1"].Name)
	assert.Contains(t, out.String(), "Аккаунт acc1 заведён")

	out.Reset()
	h.List()
	assert.Contains(t, out.String(), "acc1")
	assert.Contains(t, out.String(), "не подключён")

	out.Reset()
	h.Connect(ctx, []string{"acc1", "headless"}, false)
	assert.True(t, ctl.connectCfg.Headless)
	assert.Contains(t, out.String(), "主播小王")

	h.Connect(ctx, []string{"acc1"}, false)
	assert.False(t, ctl.connectCfg.Headless)

	out.Reset()
	h.Remove(ctx, []string{"acc1"})
	assert.NotContains(t, ctl.accounts, "acc1")
	assert.Contains(t, out.String(), "удалён")
}

func TestAccountHandler_Errors(t *testing.T) {
	ctl := newFakeControl()
	var out bytes.Buffer
	h := NewAccountHandler(ctl, zaptest.NewLogger(t), &out)
	ctx := context.Background()

	h.Add(ctx, []string{"myspace", "acc1"})
	assert.Empty(t, ctl.accounts)
	assert.Contains(t, out.String(), "Ошибка")

	out.Reset()
	h.Add(ctx, []string{"buyin"})
	assert.Contains(t, out.String(), "Использование: add")

	out.Reset()
	h.Disconnect([]string{"ghost"})
	assert.Contains(t, out.String(), session.ErrAccountNotFound.Error())
}

func TestAccountHandler_Platforms(t *testing.T) {
	var out bytes.Buffer
	NewAccountHandler(newFakeControl(), zaptest.NewLogger(t), &out).Platforms()
	for _, n := range platform.All {
		assert.Contains(t, out.String(), string(n))
	}
}

func TestTaskHandler_StartFromPreset(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc1"] = app.AccountView{ID: "acc1"}
	var out bytes.Buffer
	h := NewTaskHandler(ctl, zaptest.NewLogger(t), &out)
	h.readFile = func(path string) ([]byte, error) {
		if path != "popup.yaml" {
			return nil, os.ErrNotExist
		}
		return []byte("type: auto-popup\nconfig:\n  goodsIds: [1, 2]\n  interval: [1000, 2000]\n"), nil
	}

	h.Start(context.Background(), []string{"acc1", "popup.yaml"})
	require.Len(t, ctl.started, 1)
	assert.Equal(t, task.TypePopup, ctl.started[0].Type)
	assert.JSONEq(t, `{"goodsIds":[1,2],"interval":[1000,2000]}`, string(ctl.started[0].Config))

	out.Reset()
	h.Start(context.Background(), []string{"acc1", "missing.yaml"})
	assert.Len(t, ctl.started, 1)
	assert.Contains(t, out.String(), "чтение пресета")
}

func TestTaskHandler_StopAndUpdate(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc1"] = app.AccountView{ID: "acc1"}
	var out bytes.Buffer
	h := NewTaskHandler(ctl, zaptest.NewLogger(t), &out)

	h.Stop([]string{"acc1", "auto-comment"})
	assert.Equal(t, []task.Type{task.TypeComment}, ctl.stopped)

	h.Stop([]string{"acc1", "auto-dance"})
	assert.Len(t, ctl.stopped, 1)

	h.Update([]string{"acc1", "auto-popup", `{"interval":`, `[500,900]}`})
	assert.JSONEq(t, `{"interval":[500,900]}`, ctl.updates[task.TypePopup])

	out.Reset()
	h.Update([]string{"acc1", "auto-popup", "{oops"})
	assert.Contains(t, out.String(), "JSON")
}

func TestTaskHandler_RunsAndComments(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc1"] = app.AccountView{ID: "acc1"}
	ctl.runs = []database.TaskRun{
		{ID: 7, Type: string(task.TypeBatch), Status: database.RunFailed, Error: "page closed", StartedAt: time.Now()},
	}
	ctl.comments = []listener.LiveMessage{
		{MsgType: listener.MsgComment, NickName: "小李", Content: "多少钱"},
		{MsgType: listener.MsgComment, NickName: "主播", Content: "99元", Self: true},
	}
	var out bytes.Buffer
	h := NewTaskHandler(ctl, zaptest.NewLogger(t), &out)

	h.Runs(context.Background(), []string{"acc1"})
	assert.Contains(t, out.String(), "#7")
	assert.Contains(t, out.String(), "page closed")

	out.Reset()
	h.Comments([]string{"acc1", "1"})
	assert.NotContains(t, out.String(), "小李")
	assert.Contains(t, out.String(), "主播 (я)")

	out.Reset()
	h.Comments([]string{"ghost"})
	assert.Contains(t, out.String(), "Ошибка")
}

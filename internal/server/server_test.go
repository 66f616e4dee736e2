package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"liveAgent/internal/app"
	"liveAgent/internal/config"
	"liveAgent/internal/database"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

type fakeControl struct {
	mu       sync.Mutex
	accounts map[string]app.AccountView
	started  []task.Descriptor
	updates  map[task.Type]string
	startErr error
	comments chan listener.LiveMessage
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		accounts: map[string]app.AccountView{},
		updates:  map[task.Type]string{},
		comments: make(chan listener.LiveMessage, 4),
	}
}

func (f *fakeControl) Accounts() []app.AccountView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]app.AccountView, 0, len(f.accounts))
	for _, v := range f.accounts {
		out = append(out, v)
	}
	return out
}

func (f *fakeControl) Account(id string) (app.AccountView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.accounts[id]
	if !ok {
		return app.AccountView{}, fmt.Errorf("%s: %w", id, session.ErrAccountNotFound)
	}
	return v, nil
}

func (f *fakeControl) CreateAccount(_ context.Context, name platform.Name, acc session.Account) (app.AccountView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := app.AccountView{ID: acc.ID, Name: acc.Name, Platform: name, Title: name.Title(), Tasks: []task.Type{}}
	f.accounts[acc.ID] = v
	return v, nil
}

func (f *fakeControl) RemoveAccount(_ context.Context, id string) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.accounts, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeControl) Connect(_ context.Context, id string, _ session.ConnectConfig) (session.ConnectResult, error) {
	if _, err := f.Account(id); err != nil {
		return session.ConnectResult{}, err
	}
	return session.ConnectResult{}, platform.ErrConnection(platform.Dev, io.EOF)
}

func (f *fakeControl) Disconnect(id string) error {
	_, err := f.Account(id)
	return err
}

func (f *fakeControl) StartTask(_ context.Context, id string, d task.Descriptor) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, d)
	return nil
}

func (f *fakeControl) startedTasks() []task.Descriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Descriptor(nil), f.started...)
}

func (f *fakeControl) update(typ task.Type) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[typ]
}

func (f *fakeControl) StopTask(id string, _ task.Type) error {
	_, err := f.Account(id)
	return err
}

func (f *fakeControl) UpdateTask(id string, typ task.Type, partial json.RawMessage) error {
	if _, err := f.Account(id); err != nil {
		return err
	}
	f.mu.Lock()
	f.updates[typ] = string(partial)
	f.mu.Unlock()
	return nil
}

func (f *fakeControl) Runs(context.Context, string, int) ([]database.TaskRun, error) {
	return []database.TaskRun{{ID: 1, AccountID: "acc", Type: "auto-popup", Status: database.RunStopped}}, nil
}

func (f *fakeControl) Comments(string, int) []listener.LiveMessage {
	return []listener.LiveMessage{{MsgType: listener.MsgComment, MsgID: "m1", Content: "你好"}}
}

func (f *fakeControl) SubscribeComments(string, int) (<-chan listener.LiveMessage, func()) {
	return f.comments, func() {}
}

func newTestServer(t *testing.T, ctl *fakeControl) *httptest.Server {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "live_agent_sessions_active 0\n")
	})
	s := New(config.App{}, ctl, metrics, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, newFakeControl())

	code, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "live_agent_sessions_active")
}

func TestPlatforms(t *testing.T) {
	srv := newTestServer(t, newFakeControl())

	code, body := do(t, http.MethodGet, srv.URL+"/api/platforms", "")
	require.Equal(t, http.StatusOK, code)

	var got []platformInfo
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, len(platform.All))
	for _, p := range got {
		assert.NotEmpty(t, p.Title, p.Name)
	}
}

func TestAccountsCRUD(t *testing.T) {
	ctl := newFakeControl()
	srv := newTestServer(t, ctl)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/accounts", `{"id":"acc","name":"Тест","platform":"dev"}`)
	assert.Equal(t, http.StatusCreated, code)

	code, body := do(t, http.MethodPost, srv.URL+"/api/accounts", `{"id":"x","platform":"tiktok"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "неизвестная платформа")

	code, _ = do(t, http.MethodPost, srv.URL+"/api/accounts", `{"name":"no id"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodGet, srv.URL+"/api/accounts/acc", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"platform":"dev"`)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/accounts/missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, http.MethodDelete, srv.URL+"/api/accounts/acc", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, http.MethodDelete, srv.URL+"/api/accounts/acc", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestConnectErrorKind(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc"] = app.AccountView{ID: "acc"}
	srv := newTestServer(t, ctl)

	code, body := do(t, http.MethodPost, srv.URL+"/api/accounts/acc/connect", `{"headless":true}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, `"kind":"connection"`)
}

func TestTasks(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc"] = app.AccountView{ID: "acc"}
	srv := newTestServer(t, ctl)
	base := srv.URL + "/api/accounts/acc/tasks"

	code, _ := do(t, http.MethodPost, base, `{"type":"auto-popup","config":{"goodsIds":[1],"interval":[1000,2000]}}`)
	assert.Equal(t, http.StatusAccepted, code)
	started := ctl.startedTasks()
	require.Len(t, started, 1)
	assert.Equal(t, task.TypePopup, started[0].Type)

	code, _ = do(t, http.MethodPost, base, `{"type":"dance","config":{}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPatch, base+"/auto-popup", `{"random":true}`)
	assert.Equal(t, http.StatusNoContent, code)
	assert.JSONEq(t, `{"random":true}`, ctl.update(task.TypePopup))

	code, _ = do(t, http.MethodDelete, base+"/auto-popup", "")
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, http.MethodDelete, base+"/nope", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaskErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"running", fmt.Errorf("auto-popup: %w", session.ErrTaskRunning), http.StatusConflict},
		{"no browser", session.ErrNoBrowser, http.StatusConflict},
		{"invalid config", fmt.Errorf("%w: интервал не задан", task.ErrInvalidConfig), http.StatusBadRequest},
		{"capability", platform.ErrCapabilityMissing(platform.Taobao, platform.CapListen.Feature()), http.StatusUnprocessableEntity},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := newFakeControl()
			ctl.accounts["acc"] = app.AccountView{ID: "acc"}
			ctl.startErr = tt.err
			srv := newTestServer(t, ctl)

			code, _ := do(t, http.MethodPost, srv.URL+"/api/accounts/acc/tasks", `{"type":"auto-reply","config":{}}`)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestRunsAndComments(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc"] = app.AccountView{ID: "acc"}
	srv := newTestServer(t, ctl)

	code, body := do(t, http.MethodGet, srv.URL+"/api/accounts/acc/runs?limit=5", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "auto-popup")

	code, body = do(t, http.MethodGet, srv.URL+"/api/accounts/acc/comments", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"msg_id":"m1"`)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/accounts/missing/comments", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCommentStream(t *testing.T) {
	ctl := newFakeControl()
	ctl.accounts["acc"] = app.AccountView{ID: "acc"}
	srv := newTestServer(t, ctl)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/accounts/acc/comments/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	ctl.comments <- listener.LiveMessage{MsgType: listener.MsgComment, MsgID: "m9", NickName: "观众", Content: "多少钱"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got listener.LiveMessage
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "m9", got.MsgID)
	assert.Equal(t, "多少钱", got.Content)

	close(ctl.comments)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
}

func TestCommentStreamUnknownAccount(t *testing.T) {
	srv := newTestServer(t, newFakeControl())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/accounts/nope/comments/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

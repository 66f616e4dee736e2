package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"liveAgent/internal/browser"
	"liveAgent/internal/config"
	"liveAgent/internal/database"
	"liveAgent/internal/events"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu       sync.Mutex
	accounts map[string]database.Account
	states   map[string]string
	finished []string
	started  []string
	aborted  []uint
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]database.Account{}, states: map[string]string{}}
}

func (m *memStore) UpsertAccount(_ context.Context, a *database.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = *a
	return nil
}

func (m *memStore) ListAccounts(context.Context) ([]database.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *memStore) SaveStorageState(_ context.Context, id, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = state
	return nil
}

func (m *memStore) LoadStorageState(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id], nil
}

func (m *memStore) StartRun(_ context.Context, accountID, taskType, _ string) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, accountID+"/"+taskType)
	return uint(len(m.started)), nil
}

func (m *memStore) FinishRun(_ context.Context, accountID, taskType string, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, accountID+"/"+taskType)
	return nil
}

func (m *memStore) AbortRun(_ context.Context, id uint, _ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, id)
	return nil
}

func (m *memStore) runs() (started, finished []string, aborted []uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...), append([]string(nil), m.finished...), append([]uint(nil), m.aborted...)
}

func (m *memStore) ListRuns(context.Context, string, int) ([]database.TaskRun, error) {
	return nil, nil
}

func (m *memStore) finishedRuns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.finished...)
}

// failingFactory запоминает опции и не открывает браузер.
type failingFactory struct {
	mu   sync.Mutex
	last browser.Options
}

func (f *failingFactory) NewSession(_ context.Context, opts browser.Options) (browser.Session, error) {
	f.mu.Lock()
	f.last = opts
	f.mu.Unlock()
	return nil, errors.New("браузер недоступен")
}

func testConfig() *config.Cfg {
	return &config.Cfg{
		Tasks: config.Tasks{MaxTryCount: 2, AuthMaxAttempts: 1},
		App:   config.App{CommentHistory: 3},
	}
}

func newTestApp(t *testing.T, store *memStore, factory browser.Factory) *App {
	t.Helper()
	p := Parts{Factory: factory}
	if store != nil {
		p.Accounts = store
		p.Runs = store
	}
	a := Assemble(testConfig(), zaptest.NewLogger(t), p)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestAccountLifecycle(t *testing.T) {
	store := newMemStore()
	a := newTestApp(t, store, &failingFactory{})

	v, err := a.CreateAccount(t.Context(), platform.Dev, session.Account{ID: "acc-1", Name: "Тест"})
	require.NoError(t, err)
	assert.Equal(t, platform.Dev, v.Platform)
	assert.False(t, v.Connected)
	assert.Empty(t, v.Tasks)

	store.mu.Lock()
	assert.Equal(t, "dev", store.accounts["acc-1"].Platform)
	store.mu.Unlock()

	require.Len(t, a.Accounts(), 1)

	require.NoError(t, a.RemoveAccount(t.Context(), "acc-1"))
	assert.Empty(t, a.Accounts())
	assert.ErrorIs(t, a.RemoveAccount(t.Context(), "acc-1"), session.ErrAccountNotFound)

	store.mu.Lock()
	assert.Empty(t, store.accounts)
	store.mu.Unlock()
}

func TestCreateAccountRequiresID(t *testing.T) {
	a := newTestApp(t, nil, &failingFactory{})

	_, err := a.CreateAccount(t.Context(), platform.Dev, session.Account{})
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	store := newMemStore()
	store.accounts["a"] = database.Account{ID: "a", Name: "A", Platform: "douyin"}
	store.accounts["b"] = database.Account{ID: "b", Name: "B", Platform: "unknown"}
	a := newTestApp(t, store, &failingFactory{})

	require.NoError(t, a.Restore(t.Context()))

	views := a.Accounts()
	require.Len(t, views, 1)
	assert.Equal(t, "a", views[0].ID)
	assert.Equal(t, platform.Douyin, views[0].Platform)
}

func TestConnectUsesSavedState(t *testing.T) {
	store := newMemStore()
	store.states["acc"] = `{"cookies":[],"origins":[]}`
	factory := &failingFactory{}
	a := newTestApp(t, store, factory)

	_, err := a.CreateAccount(t.Context(), platform.Dev, session.Account{ID: "acc"})
	require.NoError(t, err)

	_, err = a.Connect(t.Context(), "acc", session.ConnectConfig{Headless: true})
	require.Error(t, err)
	assert.True(t, platform.IsKind(err, platform.KindConnection))

	factory.mu.Lock()
	assert.Equal(t, `{"cookies":[],"origins":[]}`, factory.last.StorageState)
	assert.True(t, factory.last.Headless)
	factory.mu.Unlock()
}

func TestControlUnknownAccount(t *testing.T) {
	a := newTestApp(t, nil, &failingFactory{})

	_, err := a.Connect(t.Context(), "nope", session.ConnectConfig{})
	assert.ErrorIs(t, err, session.ErrAccountNotFound)
	assert.ErrorIs(t, a.Disconnect("nope"), session.ErrAccountNotFound)
	assert.ErrorIs(t, a.StartTask(t.Context(), "nope", task.Descriptor{Type: task.TypePopup}), session.ErrAccountNotFound)
	assert.ErrorIs(t, a.StopTask("nope", task.TypePopup), session.ErrAccountNotFound)
	assert.ErrorIs(t, a.UpdateTask("nope", task.TypePopup, nil), session.ErrAccountNotFound)
}

func TestTaskStoppedClosesRun(t *testing.T) {
	store := newMemStore()
	a := newTestApp(t, store, &failingFactory{})

	err := a.bus.Publish(t.Context(), events.TypeTaskStopped, events.TaskStopped{AccountID: "acc", Task: "auto-popup"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(store.finishedRuns()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"acc/auto-popup"}, store.finishedRuns())
}

func TestStartTaskRecordsRunBeforeStart(t *testing.T) {
	store := newMemStore()
	a := newTestApp(t, store, &failingFactory{})

	_, err := a.CreateAccount(t.Context(), platform.Dev, session.Account{ID: "acc"})
	require.NoError(t, err)

	// без браузера задача не стартует, запись уже создана и закрывается по id
	err = a.StartTask(t.Context(), "acc", task.Descriptor{Type: task.TypePopup})
	require.ErrorIs(t, err, session.ErrNoBrowser)

	started, finished, aborted := store.runs()
	assert.Equal(t, []string{"acc/auto-popup"}, started)
	assert.Equal(t, []uint{1}, aborted)
	assert.Empty(t, finished)
}

func TestSubscribeCommentsFiltersAccount(t *testing.T) {
	a := newTestApp(t, nil, &failingFactory{})

	ch, stop := a.SubscribeComments("acc", 4)

	publish := func(account, id string) {
		err := a.bus.Publish(t.Context(), events.TypeComment, events.Comment{
			AccountID: account,
			Message:   listener.LiveMessage{MsgType: listener.MsgComment, MsgID: id},
		})
		require.NoError(t, err)
	}
	publish("other", "x")
	publish("acc", "m1")

	select {
	case msg := <-ch:
		assert.Equal(t, "m1", msg.MsgID)
	case <-time.After(time.Second):
		t.Fatal("сообщение не доставлено")
	}

	stop()
	stop()
	for range ch {
	}
}

func TestCommentLog(t *testing.T) {
	l := newCommentLog(3, nil)

	for i := range 5 {
		l.DeliverComment("acc", listener.LiveMessage{MsgID: fmt.Sprintf("m%d", i)})
	}
	l.DeliverComment("acc", listener.LiveMessage{MsgID: "m4"})

	got := l.Recent("acc", 0)
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.MsgID)
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, ids)

	last := l.Recent("acc", 1)
	require.Len(t, last, 1)
	assert.Equal(t, "m4", last[0].MsgID)

	assert.Nil(t, l.Recent("missing", 10))

	l.forget("acc")
	assert.Nil(t, l.Recent("acc", 10))
}

func TestCloseIdempotent(t *testing.T) {
	a := Assemble(testConfig(), zaptest.NewLogger(t), Parts{Factory: &failingFactory{}})
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"liveAgent/internal/app"
	"liveAgent/internal/cli/commands"
	"liveAgent/internal/database"
	"liveAgent/internal/listener"
	"liveAgent/internal/logger"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

type stubControl struct {
	created  []string
	headless bool
}

func (s *stubControl) Accounts() []app.AccountView { return nil }

func (s *stubControl) Account(string) (app.AccountView, error) { return app.AccountView{}, nil }

func (s *stubControl) RemoveAccount(context.Context, string) error { return nil }

func (s *stubControl) Disconnect(string) error { return nil }

func (s *stubControl) StopTask(string, task.Type) error { return nil }

func (s *stubControl) Comments(string, int) []listener.LiveMessage { return nil }

func (s *stubControl) StartTask(context.Context, string, task.Descriptor) error { return nil }

func (s *stubControl) UpdateTask(string, task.Type, json.RawMessage) error { return nil }

func (s *stubControl) Runs(context.Context, string, int) ([]database.TaskRun, error) {
	return nil, nil
}

func (s *stubControl) CreateAccount(_ context.Context, name platform.Name, acc session.Account) (app.AccountView, error) {
	s.created = append(s.created, acc.ID)
	return app.AccountView{ID: acc.ID, Platform: name, Title: name.Title()}, nil
}

func (s *stubControl) Connect(_ context.Context, _ string, cfg session.ConnectConfig) (session.ConnectResult, error) {
	s.headless = cfg.Headless
	return session.ConnectResult{}, nil
}

func newTestCLI(t *testing.T, ctl commands.Control, headless bool) (*CLI, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	log := &logger.Zap{Logger: zaptest.NewLogger(t)}
	return &CLI{
		log:            log,
		out:            out,
		headless:       headless,
		accountHandler: commands.NewAccountHandler(ctl, log.Logger, out),
		taskHandler:    commands.NewTaskHandler(ctl, log.Logger, out),
	}, out
}

func TestHandleCommand_Dispatch(t *testing.T) {
	ctl := &stubControl{}
	c, out := newTestCLI(t, ctl, true)
	ctx := context.Background()

	require.True(t, c.handleCommand(ctx, "add douyin acc1"))
	assert.Equal(t, []string{"acc1"}, ctl.created)

	require.True(t, c.handleCommand(ctx, "  connect   acc1 "))
	assert.True(t, ctl.headless, "режим по умолчанию берётся из конфигурации")

	out.Reset()
	require.True(t, c.handleCommand(ctx, "dance"))
	assert.Contains(t, out.String(), "Доступные команды")
}

func TestHandleCommand_Exit(t *testing.T) {
	c, out := newTestCLI(t, &stubControl{}, false)

	assert.False(t, c.handleCommand(context.Background(), "exit"))
	assert.False(t, c.handleCommand(context.Background(), "quit"))
	assert.Contains(t, out.String(), "До свидания")
}

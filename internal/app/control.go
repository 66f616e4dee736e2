package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"liveAgent/internal/database"
	"liveAgent/internal/events"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/session"
	"liveAgent/internal/task"
)

const storeTimeout = 5 * time.Second

// AccountView - снимок состояния аккаунта для CLI и API.
type AccountView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Platform    platform.Name `json:"platform"`
	Title       string        `json:"platformTitle"`
	SessionID   string        `json:"sessionId"`
	Connected   bool          `json:"connected"`
	AccountName string        `json:"accountName,omitempty"`
	Tasks       []task.Type   `json:"tasks"`
}

func view(s *session.AccountSession) AccountView {
	acc := s.Account()
	tasks := s.RunningTasks()
	if tasks == nil {
		tasks = []task.Type{}
	}
	return AccountView{
		ID:          acc.ID,
		Name:        acc.Name,
		Platform:    s.Platform(),
		Title:       s.Platform().Title(),
		SessionID:   s.ID(),
		Connected:   s.Connected(),
		AccountName: s.AccountName(),
		Tasks:       tasks,
	}
}

// Restore поднимает сессии для аккаунтов, сохранённых в базе. Браузеры
// не открываются до Connect.
func (a *App) Restore(ctx context.Context) error {
	if a.accounts == nil {
		return nil
	}
	accounts, err := a.accounts.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("загрузка аккаунтов: %w", err)
	}
	for _, acc := range accounts {
		name, err := platform.ParseName(acc.Platform)
		if err != nil {
			a.log.Warn("Аккаунт с неизвестной платформой пропущен", zap.String("account_id", acc.ID), zap.String("platform", acc.Platform))
			continue
		}
		if _, err := a.registry.CreateSession(name, session.Account{ID: acc.ID, Name: acc.Name}); err != nil {
			return err
		}
	}
	a.log.Info("Аккаунты восстановлены", zap.Int("count", len(accounts)))
	return nil
}

// CreateAccount заводит аккаунт и его сессию. Повторный вызов для того же
// id пересоздаёт сессию.
func (a *App) CreateAccount(ctx context.Context, name platform.Name, acc session.Account) (AccountView, error) {
	if acc.ID == "" {
		return AccountView{}, errors.New("не задан id аккаунта")
	}
	s, err := a.registry.CreateSession(name, acc)
	if err != nil {
		return AccountView{}, err
	}
	if a.accounts != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if err := a.accounts.UpsertAccount(sctx, &database.Account{ID: acc.ID, Name: acc.Name, Platform: string(name)}); err != nil {
			a.log.Warn("Аккаунт не сохранён в БД", zap.String("account_id", acc.ID), zap.Error(err))
		}
	}
	return view(s), nil
}

func (a *App) RemoveAccount(ctx context.Context, id string) error {
	if err := a.registry.RemoveSession(id); err != nil {
		return err
	}
	a.comments.forget(id)
	if a.accounts != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if err := a.accounts.DeleteAccount(sctx, id); err != nil {
			a.log.Warn("Аккаунт не удалён из БД", zap.String("account_id", id), zap.Error(err))
		}
	}
	return nil
}

func (a *App) Accounts() []AccountView {
	sessions := a.registry.Sessions()
	out := make([]AccountView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, view(s))
	}
	return out
}

func (a *App) Account(id string) (AccountView, error) {
	s, err := a.registry.GetSession(id)
	if err != nil {
		return AccountView{}, err
	}
	return view(s), nil
}

// Connect подключает аккаунт. Если storage state не передан, берётся
// последний сохранённый.
func (a *App) Connect(ctx context.Context, id string, cfg session.ConnectConfig) (session.ConnectResult, error) {
	s, err := a.registry.GetSession(id)
	if err != nil {
		return session.ConnectResult{}, err
	}
	if cfg.StorageState == "" && a.accounts != nil {
		sctx, cancel := context.WithTimeout(ctx, storeTimeout)
		state, err := a.accounts.LoadStorageState(sctx, id)
		cancel()
		if err != nil {
			a.log.Warn("Storage state не загружен", zap.String("account_id", id), zap.Error(err))
		}
		cfg.StorageState = state
	}
	return s.Connect(ctx, cfg)
}

func (a *App) Disconnect(id string) error {
	s, err := a.registry.GetSession(id)
	if err != nil {
		return err
	}
	s.Disconnect()
	return nil
}

// StartTask записывает запуск в историю и запускает задачу.
// Запись создаётся до старта, чтобы TaskStopped быстрой задачи закрыл её.
func (a *App) StartTask(ctx context.Context, id string, d task.Descriptor) error {
	s, err := a.registry.GetSession(id)
	if err != nil {
		return err
	}

	var runID uint
	if a.runs != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		runID, err = a.runs.StartRun(sctx, id, string(d.Type), string(d.Config))
		cancel()
		if err != nil {
			a.log.Warn("Запуск задачи не записан", zap.String("account_id", id), zap.String("task", string(d.Type)), zap.Error(err))
		}
	}

	if err := s.StartTask(ctx, d); err != nil {
		if runID != 0 {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
			if aerr := a.runs.AbortRun(sctx, runID, err); aerr != nil {
				a.log.Warn("Неудачный запуск не закрыт", zap.Uint("run_id", runID), zap.Error(aerr))
			}
			cancel()
		}
		return err
	}
	return nil
}

func (a *App) StopTask(id string, typ task.Type) error {
	s, err := a.registry.GetSession(id)
	if err != nil {
		return err
	}
	s.StopTask(typ)
	return nil
}

func (a *App) UpdateTask(id string, typ task.Type, partial json.RawMessage) error {
	s, err := a.registry.GetSession(id)
	if err != nil {
		return err
	}
	return s.UpdateTaskConfig(typ, partial)
}

func (a *App) Runs(ctx context.Context, id string, limit int) ([]database.TaskRun, error) {
	if a.runs == nil {
		return nil, nil
	}
	return a.runs.ListRuns(ctx, id, limit)
}

// Comments возвращает до n последних сообщений чата аккаунта.
func (a *App) Comments(id string, n int) []listener.LiveMessage {
	return a.comments.Recent(id, n)
}

// SubscribeComments отдаёт поток сообщений одного аккаунта. Медленный
// потребитель теряет сообщения, шина не ждёт его. Канал закрывается
// функцией отписки или при остановке приложения.
func (a *App) SubscribeComments(id string, buffer int) (<-chan listener.LiveMessage, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch, unsubscribe := a.bus.Subscribe(events.TypeComment)
	out := make(chan listener.LiveMessage, buffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				c, ok := ev.Payload.(events.Comment)
				if !ok || c.AccountID != id {
					continue
				}
				select {
				case out <- c.Message:
				default:
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			unsubscribe()
			close(done)
		})
	}
	return out, stop
}

// trackRuns закрывает записи о запусках по событиям остановки задач.
func (a *App) trackRuns(ch <-chan events.Event, done <-chan struct{}) {
	defer a.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			ts, ok := ev.Payload.(events.TaskStopped)
			if !ok {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := a.runs.FinishRun(ctx, ts.AccountID, ts.Task, nil); err != nil {
				a.log.Warn("Остановка задачи не записана", zap.String("account_id", ts.AccountID), zap.String("task", ts.Task), zap.Error(err))
			}
			cancel()
		}
	}
}

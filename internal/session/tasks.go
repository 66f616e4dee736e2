package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/events"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
	"liveAgent/internal/task"
)

// StartTask создаёт задачу по описанию и запускает её. Второй экземпляр
// того же типа не запускается, пока первый не остановлен.
func (s *AccountSession) StartTask(ctx context.Context, d task.Descriptor) error {
	s.mu.Lock()
	bs := s.browser
	if bs == nil {
		s.mu.Unlock()
		return ErrNoBrowser
	}
	if _, ok := s.tasks[d.Type]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", d.Type, ErrTaskRunning)
	}

	t, err := s.buildTask(d, bs)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.tasks[d.Type] = t
	s.mu.Unlock()

	t.OnStop(func() { s.forget(d.Type, t) })

	if err := t.Start(ctx); err != nil {
		t.Stop()
		return err
	}
	return nil
}

func (s *AccountSession) forget(typ task.Type, t task.Task) {
	s.mu.Lock()
	if s.tasks[typ] == t {
		delete(s.tasks, typ)
	}
	s.mu.Unlock()

	if s.deps.Bus != nil {
		go func() {
			ev := events.TaskStopped{AccountID: s.account.ID, Task: string(typ)}
			_ = s.deps.Bus.Publish(context.Background(), events.TypeTaskStopped, ev)
		}()
	}
}

func (s *AccountSession) taskEnv() task.Env {
	env := s.deps.TaskEnv
	env.Log = s.deps.Log
	env.AccountID = s.account.ID
	env.Platform = s.Platform()
	return env
}

func (s *AccountSession) buildTask(d task.Descriptor, bs browser.Session) (task.Task, error) {
	env := s.taskEnv()

	switch d.Type {
	case task.TypePopup:
		p, err := platform.AsPopper(s.adapter)
		if err != nil {
			return nil, err
		}
		return task.NewPopup(p, bs, d.Config, env)

	case task.TypeComment:
		c, err := platform.AsCommenter(s.adapter)
		if err != nil {
			return nil, err
		}
		return task.NewComment(c, bs, d.Config, env)

	case task.TypeBatch:
		c, err := platform.AsCommenter(s.adapter)
		if err != nil {
			return nil, err
		}
		return task.NewBatch(c, bs, d.Config, env)

	case task.TypeReply:
		l, err := platform.AsListenable(s.adapter)
		if err != nil {
			return nil, err
		}
		// отправка ответов нужна только при autoSend, NewReply проверит сам
		c, _ := platform.AsCommenter(s.adapter)
		return task.NewReply(bs, d.Config, task.ReplyDeps{
			Source:    l.CommentSource(),
			Commenter: c,
			Generator: s.deps.Generator,
			Sink:      s.deliver,
			NewTap:    s.newTap,
		}, env)

	default:
		return nil, fmt.Errorf("неизвестный тип задачи %q", d.Type)
	}
}

func (s *AccountSession) newTap(src listener.Source, sink func(listener.LiveMessage)) task.Tap {
	opts := append([]listener.Option{listener.WithLogger(s.deps.Log)}, s.deps.Listener...)
	return listener.New(src, sink, opts...)
}

// deliver передаёт сообщение чата получателю и в шину.
func (s *AccountSession) deliver(msg listener.LiveMessage) {
	if s.deps.Sink != nil {
		s.deps.Sink.DeliverComment(s.account.ID, msg)
	}
	if s.deps.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), commentPublishWait)
		defer cancel()
		if err := s.deps.Bus.Publish(ctx, events.TypeComment, events.Comment{AccountID: s.account.ID, Message: msg}); err != nil {
			s.log.Debug("Комментарий не опубликован", zap.String("msg_id", msg.MsgID), zap.Error(err))
		}
	}
}

// StopTask останавливает задачу. Если её нет - только предупреждение.
func (s *AccountSession) StopTask(typ task.Type) {
	s.mu.Lock()
	t, ok := s.tasks[typ]
	s.mu.Unlock()

	if !ok {
		s.log.Warn("Задача не запущена", zap.String("task", string(typ)))
		return
	}
	t.Stop()
}

// UpdateTaskConfig передаёт частичную конфигурацию запущенной задаче.
// Если задачи нет или она не умеет обновляться, вызов игнорируется.
func (s *AccountSession) UpdateTaskConfig(typ task.Type, partial json.RawMessage) error {
	s.mu.Lock()
	t, ok := s.tasks[typ]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	updater, ok := t.(task.ConfigUpdater)
	if !ok {
		s.log.Debug("Задача не поддерживает обновление конфигурации", zap.String("task", string(typ)))
		return nil
	}
	return updater.UpdateConfig(partial)
}

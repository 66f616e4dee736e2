package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/listener"
	"liveAgent/internal/platform"
)

const (
	replyQueueSize = 64
	repliedMemory  = 1000
)

// ReplyGenerator - внешний генератор ответа по тексту комментария.
type ReplyGenerator interface {
	Reply(ctx context.Context, prompt string, msg listener.LiveMessage) (string, error)
}

// Tap - подключаемый источник комментариев.
type Tap interface {
	Start(ctx context.Context, s browser.Session) error
	Stop()
}

// TapFactory создаёт источник для Source платформы. По умолчанию listener.New.
type TapFactory func(src listener.Source, sink func(listener.LiveMessage)) Tap

// ReplyDeps - зависимости автоответа помимо Env.
type ReplyDeps struct {
	Source    listener.Source
	Commenter platform.Commenter
	Generator ReplyGenerator
	// Sink получает каждое сообщение потока, включая собственные.
	Sink   func(listener.LiveMessage)
	NewTap TapFactory
}

// ReplyTask слушает комментарии, пересылает их в Sink и отвечает зрителям
// по правилам или через генератор. На каждый MsgID - не больше одного ответа.
type ReplyTask struct {
	*runner
	deps    ReplyDeps
	session browser.Session
	tap     Tap

	mu      sync.Mutex
	cfg     ReplyConfig
	page    playwright.Page
	replied *idSet
	queue   chan listener.LiveMessage
}

func NewReply(s browser.Session, raw json.RawMessage, deps ReplyDeps, env Env) (*ReplyTask, error) {
	cfg, err := decodeConfig[ReplyConfig](raw)
	if err != nil {
		return nil, err
	}
	if cfg.AutoSend && deps.Commenter == nil {
		return nil, platform.ErrCapabilityMissing(env.Platform, platform.CapComment.Feature())
	}
	if deps.NewTap == nil {
		deps.NewTap = func(src listener.Source, sink func(listener.LiveMessage)) Tap {
			return listener.New(src, sink, listener.WithLogger(env.withDefaults().Log))
		}
	}
	return &ReplyTask{
		runner:  newRunner(TypeReply, env),
		deps:    deps,
		session: s,
		cfg:     cfg,
		replied: newIDSet(repliedMemory),
		queue:   make(chan listener.LiveMessage, replyQueueSize),
	}, nil
}

func (t *ReplyTask) Start(ctx context.Context) error {
	if t.deps.Commenter != nil {
		page, err := t.deps.Commenter.CommentPage(ctx, t.session)
		if err != nil {
			return fmt.Errorf("страница комментариев: %w", err)
		}
		t.mu.Lock()
		t.page = page
		t.mu.Unlock()
	}

	t.tap = t.deps.NewTap(t.deps.Source, t.handle)
	if err := t.tap.Start(ctx, t.session); err != nil {
		t.tap.Stop()
		return fmt.Errorf("запуск слушателя комментариев: %w", err)
	}

	err := t.launch(ctx, func(ctx context.Context) {
		defer t.tap.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-t.queue:
				t.respond(ctx, msg)
			}
		}
	})
	if err != nil {
		t.tap.Stop()
	}
	return err
}

// handle вызывается слушателем на каждое сообщение. Не блокируется:
// при переполненной очереди ответ на сообщение пропускается.
func (t *ReplyTask) handle(msg listener.LiveMessage) {
	if t.deps.Sink != nil {
		t.deps.Sink(msg)
	}

	if msg.Self || msg.MsgType != listener.MsgComment {
		return
	}
	if !t.replied.Add(msg.MsgID) {
		return
	}

	select {
	case t.queue <- msg:
	default:
		t.log.Warn("Очередь ответов переполнена, комментарий пропущен", zap.String("msg_id", msg.MsgID))
	}
}

func (t *ReplyTask) respond(ctx context.Context, msg listener.LiveMessage) {
	t.mu.Lock()
	cfg := t.cfg
	page := t.page
	t.mu.Unlock()

	reply := matchRules(cfg.Rules, msg.Content, t.env.IntN)
	if reply == "" && cfg.AI.Enabled && t.deps.Generator != nil {
		generated, err := t.deps.Generator.Reply(ctx, cfg.AI.Prompt, msg)
		if err != nil {
			t.log.Warn("Генерация ответа не удалась", zap.String("msg_id", msg.MsgID), zap.Error(err))
			return
		}
		reply = strings.TrimSpace(generated)
	}
	if reply == "" {
		return
	}

	if !cfg.HideUsername && msg.NickName != "" {
		reply = "@" + msg.NickName + " " + reply
	}

	if !cfg.AutoSend {
		t.log.Info("Предложен ответ", zap.String("msg_id", msg.MsgID), zap.String("reply", reply))
		return
	}

	t.attempt(ctx, func(ctx context.Context) error {
		return t.deps.Commenter.PerformComment(ctx, page, reply, false)
	}, func() playwright.Page { return page })
}

func (t *ReplyTask) UpdateConfig(partial json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := mergeConfig(t.cfg, partial)
	if err != nil {
		return err
	}
	if next.AutoSend && t.deps.Commenter == nil {
		return platform.ErrCapabilityMissing(t.env.Platform, platform.CapComment.Feature())
	}
	t.cfg = next
	t.log.Info("Конфигурация обновлена", zap.Int("rules", len(next.Rules)), zap.Bool("ai", next.AI.Enabled))
	return nil
}

// matchRules возвращает случайный ответ первого правила, ключевое слово
// которого встречается в тексте.
func matchRules(rules []ReplyRule, content string, intN func(int) int) string {
	text := strings.ToLower(content)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) && len(r.Replies) > 0 {
				return r.Replies[intN(len(r.Replies))]
			}
		}
	}
	return ""
}

// idSet - ограниченное множество id с вытеснением самых старых.
type idSet struct {
	mu    sync.Mutex
	limit int
	order []string
	seen  map[string]struct{}
}

func newIDSet(limit int) *idSet {
	return &idSet{limit: limit, seen: make(map[string]struct{}, limit)}
}

// Add возвращает false, если id уже был.
func (s *idSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.seen, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/platform"
)

// CommentTask отправляет сообщения из списка с интервалом.
type CommentTask struct {
	*runner
	commenter platform.Commenter
	session   browser.Session

	mu   sync.Mutex
	cfg  CommentConfig
	sel  selector
	page playwright.Page
}

func NewComment(commenter platform.Commenter, s browser.Session, raw json.RawMessage, env Env) (*CommentTask, error) {
	cfg, err := decodeConfig[CommentConfig](raw)
	if err != nil {
		return nil, err
	}
	return &CommentTask{
		runner:    newRunner(TypeComment, env),
		commenter: commenter,
		session:   s,
		cfg:       cfg,
	}, nil
}

func (t *CommentTask) Start(ctx context.Context) error {
	page, err := t.commenter.CommentPage(ctx, t.session)
	if err != nil {
		return fmt.Errorf("страница комментариев: %w", err)
	}
	t.mu.Lock()
	t.page = page
	t.mu.Unlock()

	return t.launch(ctx, func(ctx context.Context) {
		t.every(ctx, t.interval, t.nextUnit, t.currentPage)
	})
}

func (t *CommentTask) interval() Interval {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Interval
}

func (t *CommentTask) currentPage() playwright.Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page
}

func (t *CommentTask) nextUnit() func(ctx context.Context) error {
	t.mu.Lock()
	i := t.sel.pick(len(t.cfg.Messages), t.cfg.Random, t.env.IntN)
	msg := t.cfg.Messages[i]
	if t.cfg.ExtraSpaces {
		msg.Content = insertSpaces(msg.Content, t.env.IntN)
	}
	page := t.page
	t.mu.Unlock()

	return func(ctx context.Context) error {
		t.log.Debug("Отправка сообщения", zap.Int("index", i), zap.Bool("pin_top", msg.PinTop))
		return t.commenter.PerformComment(ctx, page, msg.Content, msg.PinTop)
	}
}

func (t *CommentTask) UpdateConfig(partial json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := mergeConfig(t.cfg, partial)
	if err != nil {
		return err
	}
	t.cfg = next
	t.sel.reset()
	t.log.Info("Конфигурация обновлена", zap.Int("messages", len(next.Messages)), zap.Bool("random", next.Random))
	return nil
}

package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/platform"
)

const batchPause = time.Second

// BatchTask отправляет Count случайных сообщений с паузой в секунду
// и останавливается сама.
type BatchTask struct {
	*runner
	commenter platform.Commenter
	session   browser.Session
	cfg       BatchConfig
}

func NewBatch(commenter platform.Commenter, s browser.Session, raw json.RawMessage, env Env) (*BatchTask, error) {
	cfg, err := decodeConfig[BatchConfig](raw)
	if err != nil {
		return nil, err
	}
	return &BatchTask{
		runner:    newRunner(TypeBatch, env),
		commenter: commenter,
		session:   s,
		cfg:       cfg,
	}, nil
}

func (t *BatchTask) Start(ctx context.Context) error {
	page, err := t.commenter.CommentPage(ctx, t.session)
	if err != nil {
		return fmt.Errorf("страница комментариев: %w", err)
	}

	return t.launch(ctx, func(ctx context.Context) {
		t.run(ctx, page)
	})
}

func (t *BatchTask) run(ctx context.Context, page playwright.Page) {
	sent := 0
	for i := 0; i < t.cfg.Count; i++ {
		if i > 0 {
			if err := t.env.Sleep(ctx, batchPause); err != nil {
				break
			}
		}

		text := t.cfg.Messages[t.env.IntN(len(t.cfg.Messages))]
		if t.cfg.ExtraSpaces {
			text = insertSpaces(text, t.env.IntN)
		}

		ok := t.attempt(ctx, func(ctx context.Context) error {
			return t.commenter.PerformComment(ctx, page, text, false)
		}, func() playwright.Page { return page })
		if ok {
			sent++
		}
	}
	t.log.Info("Пакетная отправка завершена", zap.Int("sent", sent), zap.Int("count", t.cfg.Count))
}

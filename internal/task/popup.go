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

// PopupTask по очереди или случайно всплывает карточки товаров.
type PopupTask struct {
	*runner
	popper  platform.Popper
	session browser.Session

	mu   sync.Mutex
	cfg  PopupConfig
	sel  selector
	page playwright.Page
}

func NewPopup(popper platform.Popper, s browser.Session, raw json.RawMessage, env Env) (*PopupTask, error) {
	cfg, err := decodeConfig[PopupConfig](raw)
	if err != nil {
		return nil, err
	}
	return &PopupTask{
		runner:  newRunner(TypePopup, env),
		popper:  popper,
		session: s,
		cfg:     cfg,
	}, nil
}

func (t *PopupTask) Start(ctx context.Context) error {
	page, err := t.popper.PopupPage(ctx, t.session)
	if err != nil {
		return fmt.Errorf("страница всплывающих карточек: %w", err)
	}
	t.mu.Lock()
	t.page = page
	t.mu.Unlock()

	return t.launch(ctx, func(ctx context.Context) {
		t.every(ctx, t.interval, t.nextUnit, t.currentPage)
	})
}

func (t *PopupTask) interval() Interval {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Interval
}

func (t *PopupTask) currentPage() playwright.Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page
}

// nextUnit выбирает товар на цикл. Повторы одного цикла используют тот же товар.
func (t *PopupTask) nextUnit() func(ctx context.Context) error {
	t.mu.Lock()
	i := t.sel.pick(len(t.cfg.GoodsIDs), t.cfg.Random, t.env.IntN)
	goodsID := t.cfg.GoodsIDs[i]
	page := t.page
	t.mu.Unlock()

	return func(ctx context.Context) error {
		t.log.Debug("Всплывающая карточка", zap.Int("goods_id", goodsID))
		return t.popper.PerformPopup(ctx, page, goodsID)
	}
}

// UpdateConfig применяет частичную конфигурацию и начинает список заново.
func (t *PopupTask) UpdateConfig(partial json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := mergeConfig(t.cfg, partial)
	if err != nil {
		return err
	}
	t.cfg = next
	t.sel.reset()
	t.log.Info("Конфигурация обновлена", zap.Ints("goods_ids", next.GoodsIDs), zap.Bool("random", next.Random))
	return nil
}

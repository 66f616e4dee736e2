package task

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
	"liveAgent/internal/platform"
)

// Task - запущенный экземпляр задачи. Создаётся на каждый запуск.
type Task interface {
	Type() Type
	Start(ctx context.Context) error
	// Stop идемпотентен и дожидается выхода из цикла.
	Stop()
	// OnStop регистрирует колбэк, который сработает ровно один раз.
	OnStop(fn func())
}

// ConfigUpdater - задачи с изменением конфигурации на лету.
type ConfigUpdater interface {
	UpdateConfig(partial json.RawMessage) error
}

// Screenshotter сохраняет снимок страницы после окончательного отказа.
type Screenshotter interface {
	Capture(page playwright.Page, prefix string) (string, error)
}

// Recorder - метрики задач. Реализация в internal/metrics.
type Recorder interface {
	WorkUnit(platform, task string, ok bool)
	Retry(platform, task string)
	MaxRetries(platform, task string)
}

// Sleeper ждёт d или отмену ctx. В тестах подменяется, чтобы не ждать.
type Sleeper func(ctx context.Context, d time.Duration) error

// Env - общее окружение задач одной сессии.
type Env struct {
	Log         *zap.Logger
	AccountID   string
	Platform    platform.Name
	MaxTryCount int
	// RetryDelay - пауза между попытками одной единицы работы.
	RetryDelay  time.Duration
	Sleep       Sleeper
	IntN        func(n int) int
	Screenshots Screenshotter
	Metrics     Recorder
}

func (e Env) withDefaults() Env {
	if e.Log == nil {
		e.Log = zap.NewNop()
	}
	if e.MaxTryCount <= 0 {
		e.MaxTryCount = 3
	}
	if e.RetryDelay < 0 {
		e.RetryDelay = 0
	}
	if e.Sleep == nil {
		e.Sleep = browser.Sleep
	}
	if e.IntN == nil {
		e.IntN = rand.IntN
	}
	return e
}

// RandomDelay выбирает задержку равномерно из [min, max] мс.
func RandomDelay(iv Interval, intN func(int) int) time.Duration {
	lo, hi := iv[0], iv[1]
	if hi < lo {
		lo, hi = hi, lo
	}
	ms := lo
	if hi > lo {
		ms += intN(hi - lo + 1)
	}
	return time.Duration(ms) * time.Millisecond
}

// selector выдаёт индексы элементов списка по кругу или случайно.
type selector struct {
	next int
}

func (s *selector) pick(n int, random bool, intN func(int) int) int {
	if n <= 0 {
		return -1
	}
	if random {
		return intN(n)
	}
	i := s.next % n
	s.next = (i + 1) % n
	return i
}

func (s *selector) reset() { s.next = 0 }

// insertSpaces вставляет 1-2 пробела в случайные места текста, чтобы
// одинаковые сообщения не отсекались как дубли.
func insertSpaces(text string, intN func(int) int) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text + " "
	}
	n := 1 + intN(2)
	for i := 0; i < n; i++ {
		pos := 1 + intN(len(runes)-1)
		runes = append(runes[:pos], append([]rune{' '}, runes[pos:]...)...)
	}
	return strings.TrimSpace(string(runes))
}

var ErrStopped = errors.New("задача уже остановлена")

// runner - общий жизненный цикл задач: однократный старт, идемпотентная
// остановка, колбэки остановки.
type runner struct {
	typ Type
	env Env
	log *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	onStop  []func()
	fired   bool
}

func newRunner(typ Type, env Env) *runner {
	env = env.withDefaults()
	return &runner{
		typ: typ,
		env: env,
		log: env.Log.Named(string(typ)).With(
			zap.String("account_id", env.AccountID),
			zap.String("platform", string(env.Platform)),
		),
		done: make(chan struct{}),
	}
}

func (r *runner) Type() Type { return r.typ }

func (r *runner) OnStop(fn func()) {
	r.mu.Lock()
	if !r.fired {
		r.onStop = append(r.onStop, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn()
}

// launch запускает цикл. Цикл живёт дольше ctx вызывающего: отменяет его только Stop.
func (r *runner) launch(ctx context.Context, loop func(ctx context.Context)) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.mu.Unlock()

	r.log.Info("Задача запущена")
	go func() {
		defer close(r.done)
		loop(loopCtx)
		r.finish()
	}()
	return nil
}

// Stop можно вызывать из любой горутины, кроме цикла самой задачи.
func (r *runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	started := r.started
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-r.done
	}
	r.finish()
}

func (r *runner) finish() {
	r.mu.Lock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	if r.fired {
		r.mu.Unlock()
		return
	}
	r.fired = true
	callbacks := r.onStop
	r.onStop = nil
	r.mu.Unlock()

	r.log.Info("Задача остановлена")
	for _, fn := range callbacks {
		fn()
	}
}

// every - цикл интервальной задачи: единица работы, затем случайная пауза.
// next выбирает работу на цикл, повторы выполняют ту же единицу.
// Следующий цикл начинается только после завершения предыдущего вместе с повторами.
func (r *runner) every(ctx context.Context, interval func() Interval, next func() func(ctx context.Context) error, page func() playwright.Page) {
	for {
		r.attempt(ctx, next(), page)

		d := RandomDelay(interval(), r.env.IntN)
		r.log.Debug("Следующий цикл", zap.Duration("delay", d))
		if err := r.env.Sleep(ctx, d); err != nil {
			return
		}
	}
}

// attempt выполняет единицу работы до MaxTryCount раз. После последней
// неудачи сохраняет скриншот и пишет max-retries в лог, но цикл не прерывает.
func (r *runner) attempt(ctx context.Context, unit func(ctx context.Context) error, page func() playwright.Page) bool {
	max := r.env.MaxTryCount
	var lastErr error

	for i := 1; i <= max; i++ {
		if ctx.Err() != nil {
			return false
		}

		err := unit(ctx)
		if err == nil {
			r.record(true)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		lastErr = err
		r.log.Warn("Попытка не удалась",
			zap.Int("attempt", i),
			zap.Int("max", max),
			zap.String("kind", platform.KindOf(err).String()),
			zap.Error(err))

		if i < max {
			if r.env.Metrics != nil {
				r.env.Metrics.Retry(string(r.env.Platform), string(r.typ))
			}
			if r.env.RetryDelay > 0 {
				if err := r.env.Sleep(ctx, r.env.RetryDelay); err != nil {
					return false
				}
			}
		}
	}

	r.record(false)
	if r.env.Metrics != nil {
		r.env.Metrics.MaxRetries(string(r.env.Platform), string(r.typ))
	}

	fields := []zap.Field{zap.Error(platform.ErrMaxRetries(string(r.typ), max, lastErr))}
	if r.env.Screenshots != nil && page != nil {
		if path, err := r.env.Screenshots.Capture(page(), string(r.env.Platform)+"-"+string(r.typ)); err != nil {
			r.log.Warn("Скриншот не сохранён", zap.Error(err))
		} else {
			fields = append(fields, zap.String("screenshot", path))
		}
	}
	r.log.Error("Единица работы не выполнена", fields...)
	return false
}

func (r *runner) record(ok bool) {
	if r.env.Metrics != nil {
		r.env.Metrics.WorkUnit(string(r.env.Platform), string(r.typ), ok)
	}
}

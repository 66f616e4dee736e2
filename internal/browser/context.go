package browser

import (
	"context"
	"time"
)

// RunWithContext выполняет блокирующий вызов playwright, который не умеет
// отменяться, и возвращает ctx.Err(), если контекст завершился раньше.
// Сам вызов при этом доработает в фоне.
func RunWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return RunWithCleanup(ctx, fn, nil)
}

// RunWithCleanup - то же, но результат, пришедший после отмены ctx,
// передаётся в cleanup. Так освобождаются ресурсы, которые уже некому забрать.
func RunWithCleanup[T any](ctx context.Context, fn func() (T, error), cleanup func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}

	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		if cleanup != nil {
			go func() {
				if r := <-ch; r.err == nil {
					cleanup(r.v)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

// Sleep ждёт d или отмену контекста.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

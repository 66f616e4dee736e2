package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liveAgent/internal/events"
	"liveAgent/internal/platform"
)

const shutdownParallelism = 4

// Registry сопоставляет аккаунты и их сессии. На аккаунт - одна сессия,
// новая вытесняет старую.
type Registry struct {
	deps Deps
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*AccountSession

	unsubscribe func()
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	r := &Registry{
		deps:     deps,
		log:      deps.Log.Named("registry"),
		sessions: make(map[string]*AccountSession),
		stop:     make(chan struct{}),
	}

	if deps.Bus != nil {
		ch, unsubscribe := deps.Bus.Subscribe(events.TypePageClosed)
		r.unsubscribe = unsubscribe
		r.wg.Add(1)
		go r.watch(ch)
	}
	return r
}

// CreateSession создаёт сессию аккаунта. Прежняя сессия того же аккаунта
// отключается до возврата.
func (r *Registry) CreateSession(name platform.Name, account Account) (*AccountSession, error) {
	adapter, err := r.deps.NewAdapter(name)
	if err != nil {
		return nil, err
	}
	account.Platform = name

	s := newAccountSession(account, adapter, r.deps)

	r.mu.Lock()
	old := r.sessions[account.ID]
	r.sessions[account.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	if old != nil {
		r.log.Info("Сессия аккаунта пересоздана", zap.String("account_id", account.ID), zap.String("old_session", old.ID()))
		old.Disconnect()
	}
	r.gauge(n)
	return s, nil
}

func (r *Registry) GetSession(accountID string) (*AccountSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[accountID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", accountID, ErrAccountNotFound)
	}
	return s, nil
}

// RemoveSession отключает аккаунт и убирает его из реестра.
func (r *Registry) RemoveSession(accountID string) error {
	r.mu.Lock()
	s, ok := r.sessions[accountID]
	delete(r.sessions, accountID)
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", accountID, ErrAccountNotFound)
	}
	s.Disconnect()
	r.gauge(n)
	return nil
}

// Sessions возвращает сессии, отсортированные по id аккаунта.
func (r *Registry) Sessions() []*AccountSession {
	r.mu.Lock()
	out := make([]*AccountSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AccountID() < out[j].AccountID() })
	return out
}

// watch убирает сессии, чьё окно закрыли снаружи. События от уже
// пересозданных сессий отбрасываются по SessionID.
func (r *Registry) watch(ch <-chan events.Event) {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			pc, ok := ev.Payload.(events.PageClosed)
			if !ok {
				continue
			}
			r.handlePageClosed(pc)
		}
	}
}

func (r *Registry) handlePageClosed(pc events.PageClosed) {
	r.mu.Lock()
	s, ok := r.sessions[pc.AccountID]
	if !ok || s.ID() != pc.SessionID {
		r.mu.Unlock()
		r.log.Debug("Закрытие устаревшей сессии", zap.String("account_id", pc.AccountID), zap.String("session_id", pc.SessionID))
		return
	}
	delete(r.sessions, pc.AccountID)
	n := len(r.sessions)
	r.mu.Unlock()

	s.Disconnect()
	r.gauge(n)
	r.log.Info("Сессия удалена после закрытия окна", zap.String("account_id", pc.AccountID))
}

func (r *Registry) gauge(n int) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.SessionsActive(n)
	}
}

// Close отключает все аккаунты параллельно и останавливает обработку событий.
func (r *Registry) Close(ctx context.Context) error {
	r.stopOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
		close(r.stop)
	})
	r.wg.Wait()

	r.mu.Lock()
	all := make([]*AccountSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*AccountSession)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shutdownParallelism)
	for _, s := range all {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.Disconnect()
			return nil
		})
	}
	err := g.Wait()
	r.gauge(0)
	return err
}

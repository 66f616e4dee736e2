// Package events - шина событий процесса. Через неё сессии сообщают реестру
// о закрытии окна браузера, а задачи публикуют комментарии и остановки.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveAgent/internal/listener"
)

type Type string

const (
	TypePageClosed  Type = "page_closed"
	TypeTaskStopped Type = "task_stopped"
	TypeComment     Type = "comment"
)

// PageClosed - контекст браузера закрылся не по команде оператора.
// SessionID отличает старую сессию аккаунта от пересозданной.
type PageClosed struct {
	AccountID string
	SessionID string
}

type TaskStopped struct {
	AccountID string
	Task      string
}

type Comment struct {
	AccountID string
	Message   listener.LiveMessage
}

// Event - конверт сообщения шины.
type Event struct {
	ID        string
	Timestamp time.Time
	Type      Type
	Payload   interface{}
}

var ErrClosed = errors.New("шина событий закрыта")

type Bus struct {
	log        *zap.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[Type][]chan Event

	closeMu  sync.Mutex
	closed   bool
	closing  chan struct{}
	inFlight sync.WaitGroup
	once     sync.Once
}

func New(log *zap.Logger, bufferSize int) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Bus{
		log:         log.Named("bus"),
		bufferSize:  bufferSize,
		subscribers: make(map[Type][]chan Event),
		closing:     make(chan struct{}),
	}
}

// Publish доставляет событие всем подписчикам типа. Блокируется, если буфер
// подписчика заполнен, до отмены ctx или закрытия шины.
func (b *Bus) Publish(ctx context.Context, t Type, payload interface{}) error {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return ErrClosed
	}
	b.inFlight.Add(1)
	b.closeMu.Unlock()
	defer b.inFlight.Done()

	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Payload:   payload,
	}

	b.mu.RLock()
	subs := append([]chan Event(nil), b.subscribers[t]...)
	b.mu.RUnlock()

	if t != TypeComment {
		b.log.Debug("Событие", zap.String("type", string(t)), zap.String("id", ev.ID), zap.Int("subscribers", len(subs)))
	}

	for _, ch := range subs {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closing:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe возвращает канал событий указанных типов и функцию отписки.
// Канал закрывается только при Close шины.
func (b *Bus) Subscribe(types ...Type) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeMu.Lock()
	closed := b.closed
	b.closeMu.Unlock()
	if closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, b.bufferSize)
	subscribed := append([]Type(nil), types...)
	for _, t := range subscribed {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for _, t := range subscribed {
				subs := b.subscribers[t]
				for i, c := range subs {
					if c == ch {
						b.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
						break
					}
				}
				if len(b.subscribers[t]) == 0 {
					delete(b.subscribers, t)
				}
			}
		})
	}
	return ch, unsubscribe
}

// Close прекращает приём событий, дожидается текущих Publish и закрывает
// каналы подписчиков. Повторный вызов ничего не делает.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		b.closeMu.Unlock()

		close(b.closing)
		b.inFlight.Wait()

		b.mu.Lock()
		unique := make(map[chan Event]struct{})
		for _, subs := range b.subscribers {
			for _, ch := range subs {
				unique[ch] = struct{}{}
			}
		}
		for ch := range unique {
			close(ch)
		}
		b.subscribers = make(map[Type][]chan Event)
		b.mu.Unlock()

		b.log.Debug("Шина событий закрыта", zap.Int("subscribers", len(unique)))
	})
}

package listener

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"liveAgent/internal/browser"
)

const (
	cdpFrameReceived    = "Network.webSocketFrameReceived"
	cdpSocketCreated    = "Network.webSocketCreated"
	wsOpcodeBinary      = 2
	defaultBufferLength = 256
)

// Subscription - хэндл подписки на события страницы. Отписка структурная:
// после Close обработчик больше ничего не делает.
type Subscription struct {
	detached atomic.Bool
	detach   func()
}

func (s *Subscription) Active() bool { return !s.detached.Load() }

func (s *Subscription) Close() {
	if s.detached.Swap(true) {
		return
	}
	if s.detach != nil {
		s.detach()
	}
}

type Option func(*Listener)

func WithLogger(log *zap.Logger) Option {
	return func(l *Listener) { l.log = log.Named("listener") }
}

func WithLocation(loc *time.Location) Option {
	return func(l *Listener) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithDropHook вызывается для каждой отброшенной битой записи.
func WithDropHook(fn func(platform string, n int)) Option {
	return func(l *Listener) { l.onDrop = fn }
}

// Listener подключается к странице и отдаёт в sink каждое распознанное сообщение.
type Listener struct {
	src    Source
	sink   func(LiveMessage)
	log    *zap.Logger
	loc    *time.Location
	onDrop func(platform string, n int)

	mu      sync.Mutex
	started bool
	stopped bool
	subs    []*Subscription
	cdp     playwright.CDPSession
	sockets map[string]string

	out  chan LiveMessage
	done chan struct{}
	wg   sync.WaitGroup
}

func New(src Source, sink func(LiveMessage), opts ...Option) *Listener {
	l := &Listener{
		src:     src,
		sink:    sink,
		log:     zap.NewNop(),
		loc:     time.Local,
		sockets: make(map[string]string),
		out:     make(chan LiveMessage, defaultBufferLength),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start подключает все источники, описанные в Source.
func (l *Listener) Start(ctx context.Context, s browser.Session) error {
	if s == nil || s.Page() == nil {
		return errors.New("страница не открыта")
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return errors.New("слушатель уже остановлен")
	}
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	l.startPump()

	if len(l.src.Responses) > 0 {
		l.addSubscription(l.tapResponses(s.Page()))
	}

	if l.src.Frames {
		sub, err := l.tapFrames(ctx, s)
		if err != nil {
			l.Stop()
			return fmt.Errorf("подключение к кадрам WebSocket: %w", err)
		}
		l.addSubscription(sub)
	}

	l.log.Info("Слушатель комментариев запущен",
		zap.String("platform", l.src.Platform),
		zap.Int("response_rules", len(l.src.Responses)),
		zap.Bool("frames", l.src.Frames))
	return nil
}

// Stop снимает все подписки и выключает CDP. Можно вызывать многократно
// и без предварительного Start.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	subs := l.subs
	l.subs = nil
	cdp := l.cdp
	l.cdp = nil
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	if cdp != nil {
		if _, err := cdp.Send("Network.disable", nil); err != nil {
			l.log.Debug("Network.disable", zap.Error(err))
		}
		if err := cdp.Detach(); err != nil {
			l.log.Debug("Отключение CDP-сессии", zap.Error(err))
		}
	}

	close(l.done)
	l.wg.Wait()
}

func (l *Listener) addSubscription(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		sub.Close()
		return
	}
	l.subs = append(l.subs, sub)
}

func (l *Listener) startPump() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.done:
				return
			case msg := <-l.out:
				if l.sink != nil {
					l.sink(msg)
				}
			}
		}
	}()
}

func (l *Listener) emit(msgs []LiveMessage) {
	for _, msg := range msgs {
		select {
		case <-l.done:
			return
		case l.out <- msg:
		}
	}
}

func (l *Listener) dropped(n int) {
	if n > 0 && l.onDrop != nil {
		l.onDrop(l.src.Platform, n)
	}
}

// tapResponses слушает ответы страницы. Тело читается в отдельной горутине:
// блокирующие вызовы внутри обработчика событий playwright вешают диспетчер.
// Close подписки снимает обработчик со страницы.
func (l *Listener) tapResponses(page responseEvents) *Subscription {
	sub := &Subscription{}
	sub.detach = subscribeResponses(page, func(resp playwright.Response) {
		if !sub.Active() {
			return
		}
		rule, ok := l.matchRule(resp.URL(), resp.Request().Method())
		if !ok {
			return
		}
		go func() {
			body, err := resp.Body()
			if err != nil {
				l.log.Debug("Тело ответа недоступно", zap.String("rule", rule.Name), zap.Error(err))
				return
			}
			if sub.Active() {
				l.ingestResponse(rule, body)
			}
		}()
	})
	return sub
}

func (l *Listener) matchRule(url, method string) (ResponseRule, bool) {
	for _, rule := range l.src.Responses {
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		if strings.Contains(url, rule.Match) {
			return rule, true
		}
	}
	return ResponseRule{}, false
}

func (l *Listener) ingestResponse(rule ResponseRule, body []byte) {
	msgs, err := rule.Decode(body, l.loc)
	if err != nil {
		l.log.Debug("Ответ не разобран", zap.String("rule", rule.Name), zap.Error(err))
		l.dropped(1)
		return
	}
	for i := range msgs {
		msgs[i].MsgID = MessageID(msgs[i].MsgID)
	}
	l.emit(msgs)
}

func (l *Listener) tapFrames(ctx context.Context, s browser.Session) (*Subscription, error) {
	cdp, err := browser.RunWithContext(ctx, func() (playwright.CDPSession, error) {
		return s.Context().NewCDPSession(s.Page())
	})
	if err != nil {
		return nil, err
	}

	sub := &Subscription{}

	if l.src.FrameURL != "" {
		cdp.On(cdpSocketCreated, func(params map[string]interface{}) {
			if !sub.Active() {
				return
			}
			id, _ := params["requestId"].(string)
			url, _ := params["url"].(string)
			l.mu.Lock()
			l.sockets[id] = url
			l.mu.Unlock()
		})
	}

	cdp.On(cdpFrameReceived, func(params map[string]interface{}) {
		if !sub.Active() {
			return
		}
		l.ingestCDPFrame(params)
	})

	if _, err := cdp.Send("Network.enable", map[string]interface{}{}); err != nil {
		sub.Close()
		_ = cdp.Detach()
		return nil, err
	}

	l.mu.Lock()
	l.cdp = cdp
	l.mu.Unlock()
	return sub, nil
}

// ingestCDPFrame типизирует событие через cdproto и разбирает payload.
func (l *Listener) ingestCDPFrame(params map[string]interface{}) {
	raw, err := json.Marshal(params)
	if err != nil {
		l.dropped(1)
		return
	}

	var ev network.EventWebSocketFrameReceived
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Response == nil {
		l.dropped(1)
		return
	}

	if l.src.FrameURL != "" {
		l.mu.Lock()
		url := l.sockets[string(ev.RequestID)]
		l.mu.Unlock()
		if !strings.Contains(url, l.src.FrameURL) {
			return
		}
	}

	payload := []byte(ev.Response.PayloadData)
	if int(ev.Response.Opcode) == wsOpcodeBinary {
		decoded, err := base64.StdEncoding.DecodeString(ev.Response.PayloadData)
		if err != nil {
			l.dropped(1)
			return
		}
		payload = decoded
	}

	l.ingestFrame(payload)
}

func (l *Listener) ingestFrame(payload []byte) {
	res := DecodeFrame(payload, l.loc)
	l.dropped(res.Dropped)
	l.emit(res.Messages)
}

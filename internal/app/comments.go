package app

import (
	"sync"

	"liveAgent/internal/listener"
	"liveAgent/internal/metrics"
)

const defaultCommentHistory = 200

// commentLog хранит последние сообщения чата каждого аккаунта и убирает
// повторы по MsgID: доставка в sink идёт по принципу at-least-once.
type commentLog struct {
	limit   int
	metrics *metrics.Metrics

	mu       sync.Mutex
	accounts map[string]*ring
}

type ring struct {
	items []listener.LiveMessage
	seen  map[string]struct{}
}

func newCommentLog(limit int, m *metrics.Metrics) *commentLog {
	if limit <= 0 {
		limit = defaultCommentHistory
	}
	return &commentLog{
		limit:    limit,
		metrics:  m,
		accounts: make(map[string]*ring),
	}
}

// DeliverComment реализует session.CommentSink.
func (l *commentLog) DeliverComment(accountID string, msg listener.LiveMessage) {
	l.mu.Lock()
	r, ok := l.accounts[accountID]
	if !ok {
		r = &ring{seen: make(map[string]struct{})}
		l.accounts[accountID] = r
	}
	if _, dup := r.seen[msg.MsgID]; dup {
		l.mu.Unlock()
		return
	}
	r.items = append(r.items, msg)
	r.seen[msg.MsgID] = struct{}{}
	if len(r.items) > l.limit {
		delete(r.seen, r.items[0].MsgID)
		r.items = append(r.items[:0:0], r.items[1:]...)
	}
	l.mu.Unlock()

	l.metrics.Comment(string(msg.MsgType))
}

// Recent возвращает до n последних сообщений, старые первыми.
func (l *commentLog) Recent(accountID string, n int) []listener.LiveMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.accounts[accountID]
	if !ok {
		return nil
	}
	items := r.items
	if n > 0 && len(items) > n {
		items = items[len(items)-n:]
	}
	return append([]listener.LiveMessage(nil), items...)
}

func (l *commentLog) forget(accountID string) {
	l.mu.Lock()
	delete(l.accounts, accountID)
	l.mu.Unlock()
}

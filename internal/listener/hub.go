package listener

import (
	"sync"

	"github.com/playwright-community/playwright-go"
)

// responseEvents - часть playwright.Page, нужная для подписки на ответы.
type responseEvents interface {
	OnResponse(fn func(playwright.Response))
	RemoveListener(name string, handler interface{})
}

// responseHub - единственный обработчик "response" на страницу. playwright
// снимает обработчик по адресу кода функции, а у замыканий разных слушателей
// он общий, поэтому каждый слушатель отписывается через хаб, а не напрямую.
type responseHub struct {
	handler func(playwright.Response)

	mu   sync.Mutex
	next int
	subs map[int]func(playwright.Response)
}

var (
	hubsMu sync.Mutex
	hubs   = map[responseEvents]*responseHub{}
)

// subscribeResponses вешает fn на ответы страницы. Когда отписывается
// последний подписчик, обработчик снимается со страницы.
func subscribeResponses(page responseEvents, fn func(playwright.Response)) (unsubscribe func()) {
	hubsMu.Lock()
	defer hubsMu.Unlock()

	h, ok := hubs[page]
	if !ok {
		h = &responseHub{subs: make(map[int]func(playwright.Response))}
		h.handler = h.dispatch
		page.OnResponse(h.handler)
		hubs[page] = h
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			hubsMu.Lock()
			defer hubsMu.Unlock()

			h.mu.Lock()
			delete(h.subs, id)
			empty := len(h.subs) == 0
			h.mu.Unlock()

			if empty && hubs[page] == h {
				page.RemoveListener("response", h.handler)
				delete(hubs, page)
			}
		})
	}
}

func (h *responseHub) dispatch(resp playwright.Response) {
	h.mu.Lock()
	fns := make([]func(playwright.Response), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(resp)
	}
}

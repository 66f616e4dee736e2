package listener

import "time"

// ResponseRule описывает эндпоинт, ответы которого содержат сообщения чата.
type ResponseRule struct {
	Name string
	// Match - подстрока URL ответа.
	Match string
	// Method пустой - любой метод.
	Method string
	Decode func(body []byte, loc *time.Location) ([]LiveMessage, error)
}

// Source - описание того, откуда платформа отдаёт чат. Заполняется адаптером.
type Source struct {
	Platform  string
	Responses []ResponseRule
	// Frames включает перехват кадров WebSocket через CDP.
	Frames bool
	// FrameURL - подстрока адреса WebSocket, пусто - любые сокеты страницы.
	FrameURL string
}

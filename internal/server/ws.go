package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 128
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// панель оператора открывается с локального адреса
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamComments отдаёт поток сообщений чата аккаунта по WebSocket.
// Каждое сообщение - отдельный JSON-кадр listener.LiveMessage.
func (s *Server) streamComments(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.ctl.Account(id); err != nil {
		s.fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade не удался", zap.Error(err))
		return
	}
	defer conn.Close()

	msgs, unsubscribe := s.ctl.SubscribeComments(id, wsBuffer)
	defer unsubscribe()

	// читатель нужен, чтобы заметить закрытие со стороны клиента и pong
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	s.log.Debug("Подписка на комментарии", zap.String("account_id", id))
	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

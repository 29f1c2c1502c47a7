package httpserver

import (
	"encoding/json"
	"log/slog"
	"time"

	apperrors "github.com/alessandrobessi/tamagotchi/internal/platform/errors"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	transportWebSocket = "websocket"

	wsWriteDeadline = 5 * time.Second
	wsPongDeadline  = 60 * time.Second
	wsPingInterval  = 30 * time.Second
)

// handleWebSocket mirrors handleEvents over a WebSocket: one text message per
// snapshot. Inbound messages are read only to detect disconnects.
func (s *Server) handleWebSocket(c echo.Context) error {
	sub, err := s.hub.Subscribe()
	if err != nil {
		return apperrors.UnavailableError("snapshot stream unavailable", err)
	}
	defer s.hub.Unregister(sub)

	ctx := c.Request().Context()
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.DebugContext(ctx, "WebSocket upgrade failed", "error", err)
		return nil
	}
	defer func() { _ = conn.Close() }()

	s.trackStream(transportWebSocket, 1)
	defer s.trackStream(transportWebSocket, -1)

	initial, err := json.Marshal(s.app.State(ctx, nil))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode snapshot", "error", err)
		return nil
	}
	if err := s.writeWS(conn, websocket.TextMessage, initial); err != nil {
		return nil
	}
	s.countSent(transportWebSocket)

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	ping := s.clock.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		case <-ping.Chan():
			if err := s.writeWS(conn, websocket.PingMessage, nil); err != nil {
				return nil
			}
		case msg, ok := <-sub.Messages():
			if !ok {
				slog.DebugContext(ctx, "WebSocket stream closed by hub", "subscriber", sub.ID())
				_ = s.writeWS(conn, websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return nil
			}
			if err := s.writeWS(conn, websocket.TextMessage, msg); err != nil {
				return nil
			}
			s.countSent(transportWebSocket)
		}
	}
}

// readPump discards client frames and closes done when the connection drops.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(s.clock.Now().Add(wsPongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(s.clock.Now().Add(wsPongDeadline))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, messageType int, data []byte) error {
	_ = conn.SetWriteDeadline(s.clock.Now().Add(wsWriteDeadline))
	return conn.WriteMessage(messageType, data)
}

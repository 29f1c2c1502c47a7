package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/alessandrobessi/tamagotchi/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

const (
	transportSSE = "sse"

	sseKeepalive = ":keepalive\n\n"
)

// handleEvents streams snapshots as server-sent events: the current pet on
// connect, then one event per publish. The stream ends when the client goes
// away or the hub evicts the subscriber.
func (s *Server) handleEvents(c echo.Context) error {
	sub, err := s.hub.Subscribe()
	if err != nil {
		return apperrors.UnavailableError("snapshot stream unavailable", err)
	}
	defer s.hub.Unregister(sub)

	ctx := c.Request().Context()
	initial, err := json.Marshal(s.app.State(ctx, nil))
	if err != nil {
		return apperrors.InternalError("failed to encode snapshot", err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Long-lived stream: lift any server write deadline.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	s.trackStream(transportSSE, 1)
	defer s.trackStream(transportSSE, -1)

	if err := s.writeEvent(w, initial); err != nil {
		return nil
	}

	keepalive := s.clock.NewTicker(s.config.SSEKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepalive.Chan():
			if _, err := w.Write([]byte(sseKeepalive)); err != nil {
				return nil
			}
			w.Flush()
		case msg, ok := <-sub.Messages():
			if !ok {
				slog.DebugContext(ctx, "SSE stream closed by hub", "subscriber", sub.ID())
				return nil
			}
			if err := s.writeEvent(w, msg); err != nil {
				return nil
			}
		}
	}
}

func (s *Server) writeEvent(w *echo.Response, payload []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.Flush()
	s.countSent(transportSSE)
	return nil
}

func (s *Server) trackStream(transport string, delta float64) {
	if s.streamMetrics != nil {
		s.streamMetrics.ActiveConnections.WithLabelValues(transport).Add(delta)
	}
}

func (s *Server) countSent(transport string) {
	if s.streamMetrics != nil {
		s.streamMetrics.MessagesSent.WithLabelValues(transport).Inc()
	}
}

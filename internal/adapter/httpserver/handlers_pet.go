package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/alessandrobessi/tamagotchi/internal/domain"
	"github.com/labstack/echo/v4"
)

const maxBodyBytes = 64 << 10

// petRequest is the optional body of every pet endpoint. Clients may send the
// snapshot they hold so the server acts on it instead of the stored record.
type petRequest struct {
	CurrentState *domain.Pet `json:"currentState"`
	Name         string      `json:"name"`
}

// decodePetRequest never fails: an empty, oversized or malformed body is
// treated as an empty object.
func decodePetRequest(c echo.Context) petRequest {
	var req petRequest
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return req
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.DebugContext(c.Request().Context(), "Ignoring unparseable request body", "path", c.Path(), "error", err)
		return petRequest{}
	}
	return req
}

func (s *Server) handleGetState(c echo.Context) error {
	return writePet(c, s.app.State(c.Request().Context(), nil))
}

func (s *Server) handlePostState(c echo.Context) error {
	req := decodePetRequest(c)
	return writePet(c, s.app.State(c.Request().Context(), req.CurrentState))
}

func (s *Server) handleFeed(c echo.Context) error {
	req := decodePetRequest(c)
	return writePet(c, s.app.Feed(c.Request().Context(), req.CurrentState))
}

func (s *Server) handlePlay(c echo.Context) error {
	req := decodePetRequest(c)
	return writePet(c, s.app.Play(c.Request().Context(), req.CurrentState))
}

func (s *Server) handleHeal(c echo.Context) error {
	req := decodePetRequest(c)
	return writePet(c, s.app.Heal(c.Request().Context(), req.CurrentState))
}

func (s *Server) handleRebirth(c echo.Context) error {
	req := decodePetRequest(c)
	return writePet(c, s.app.Rebirth(c.Request().Context(), req.Name))
}

func writePet(c echo.Context, pet domain.Pet) error {
	if err := c.JSON(http.StatusOK, pet); err != nil {
		return fmt.Errorf("failed to write pet response: %w", err)
	}
	return nil
}

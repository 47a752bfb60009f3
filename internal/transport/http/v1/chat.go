package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// Chat runs one chat turn for the caller's session.
// POST /chat
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := c.Request().Context()
	sessionID := h.requestSession(c)

	result, err := h.service.Chat(ctx, sessionID, req.Message)
	if domain.KindOf(err) == domain.KindRetired {
		// Wiped ids are never reused; start the caller on a fresh session.
		sessionID = newSessionID()
		result, err = h.service.Chat(ctx, sessionID, req.Message)
	}
	h.bindSession(c, sessionID)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Clear deletes the conversation of the caller's session, keeping its persona.
// POST /clear
func (h *Handler) Clear(c echo.Context) error {
	sessionID := h.requestSession(c)
	h.bindSession(c, sessionID)

	if err := h.service.ClearConversation(c.Request().Context(), sessionID); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Conversation cleared"})
}

// History returns the recent user and assistant messages of the caller's session.
// GET /history?limit=
func (h *Handler) History(c echo.Context) error {
	sessionID := h.requestSession(c)
	h.bindSession(c, sessionID)

	limit := queryInt(c, "limit", h.cfg.HistoryLimit)
	history, err := h.service.GetDisplayHistory(c.Request().Context(), sessionID, limit)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"history": history,
	})
}

// Stats returns message and token counts for the caller's session.
// GET /stats
func (h *Handler) Stats(c echo.Context) error {
	sessionID := h.requestSession(c)
	h.bindSession(c, sessionID)

	stats, err := h.service.GetStats(c.Request().Context(), sessionID)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func queryInt(c echo.Context, name string, fallback int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

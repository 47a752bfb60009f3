package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// ListSessions returns the most recently active sessions.
// GET /sessions?limit=
func (h *Handler) ListSessions(c echo.Context) error {
	limit := queryInt(c, "limit", h.cfg.SessionListLimit)
	sessions, err := h.service.ListSessions(c.Request().Context(), limit)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// WipeSession deletes a session with all its messages and retires its id.
// DELETE /sessions/:session_id
func (h *Handler) WipeSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	if err := h.service.WipeSession(c.Request().Context(), sessionID); err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session deleted"})
}

// Backup writes a database snapshot into the backup directory.
// POST /backup
func (h *Handler) Backup(c echo.Context) error {
	if h.backuper == nil {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": "backups are disabled"})
	}

	path, err := h.backuper.Run(c.Request().Context(), "")
	if errors.Is(err, domain.ErrBackupUnsupported) {
		return c.JSON(http.StatusNotImplemented, map[string]string{"error": err.Error()})
	}
	if err != nil {
		h.logger.Error("backup failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": "Backup created",
		"path":    path,
	})
}

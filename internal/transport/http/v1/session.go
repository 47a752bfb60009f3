package v1

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// SessionHeader carries the session id for clients that do not keep cookies.
const SessionHeader = "X-Session-ID"

const maxSessionIDLength = 128

// requestSession returns the caller's session id, minting one when the
// request carries none.
func (h *Handler) requestSession(c echo.Context) string {
	if cookie, err := c.Cookie(h.cfg.SessionCookie); err == nil && validSessionID(cookie.Value) {
		return cookie.Value
	}
	if id := c.Request().Header.Get(SessionHeader); validSessionID(id) {
		return id
	}
	return newSessionID()
}

// bindSession hands the session id back to the client.
func (h *Handler) bindSession(c echo.Context, sessionID string) {
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.Response().Header().Set(SessionHeader, sessionID)
}

func newSessionID() string {
	return uuid.New().String()
}

func validSessionID(id string) bool {
	return id != "" && len(id) <= maxSessionIDLength
}

// writeError maps a conversation error to its HTTP status. Gateway and
// storage details stay in the logs.
func (h *Handler) writeError(c echo.Context, err error) error {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": publicMessage(err)})
	case domain.KindNotFound:
		return c.JSON(http.StatusNotFound, map[string]string{"error": publicMessage(err)})
	case domain.KindRetired:
		return c.JSON(http.StatusGone, map[string]string{"error": publicMessage(err)})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func publicMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return err.Error()
}

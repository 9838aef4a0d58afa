package handler

import (
	"errors"
	"net/http"
	"strings"

	"gowa-hub/internal/manager"
	"gowa-hub/internal/store"
	"gowa-hub/internal/webhook"
	"gowa-hub/internal/ws"

	"github.com/labstack/echo/v4"
)

// Handler carries the wired components into the echo routes.
type Handler struct {
	Manager *manager.Manager
	Store   store.Store
	Worker  *webhook.Worker
	Hub     *ws.Hub
}

type CreateSessionRequest struct {
	Name string `json:"name"`
}

// POST /api/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return ErrorResponse(c, http.StatusBadRequest, "Field 'name' is required", "VALIDATION_ERROR", "")
	}

	sess, err := h.Manager.Create(c.Request().Context(), strings.TrimSpace(req.Name))
	if err != nil {
		if errors.Is(err, manager.ErrDriverInit) {
			return ErrorResponse(c, http.StatusBadGateway, "Failed to start connection driver", "DRIVER_INIT_FAILED", err.Error())
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to create session", "CREATE_SESSION_FAILED", err.Error())
	}

	return SuccessResponse(c, http.StatusCreated, "Session created, scan the QR code to connect", sess)
}

// GET /api/sessions
func (h *Handler) GetSessions(c echo.Context) error {
	return SuccessResponse(c, http.StatusOK, "Sessions", h.Manager.List(c.Request().Context()))
}

// GET /api/sessions/:sessionId
func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.Manager.Get(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
	}
	return SuccessResponse(c, http.StatusOK, "Session", sess)
}

// GET /api/sessions/:sessionId/qr
func (h *Handler) GetQR(c echo.Context) error {
	sess, err := h.Manager.Get(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
	}
	if sess.QRPayload == "" {
		return ErrorResponse(c, http.StatusConflict, "No QR code available in the current state", "QR_NOT_AVAILABLE",
			"QR codes exist only while the session is in qr_ready")
	}
	return SuccessResponse(c, http.StatusOK, "QR code", map[string]interface{}{
		"sessionId": sess.ID,
		"status":    sess.Status,
		"qr":        sess.QRPayload,
	})
}

// POST /api/sessions/:sessionId/logout
func (h *Handler) LogoutSession(c echo.Context) error {
	err := h.Manager.Logout(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, manager.ErrSessionNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to logout session", "LOGOUT_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Session logged out", nil)
}

// POST /api/sessions/:sessionId/reconnect
func (h *Handler) ReconnectSession(c echo.Context) error {
	sess, err := h.Manager.Reconnect(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrSessionNotFound):
			return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
		case errors.Is(err, manager.ErrCannotReconnect):
			return ErrorResponse(c, http.StatusConflict, "Session is not in a reconnectable state", "CANNOT_RECONNECT",
				"Reconnect is only valid from disconnected or auth_failure")
		case errors.Is(err, manager.ErrDriverInit):
			return ErrorResponse(c, http.StatusBadGateway, "Failed to start connection driver", "DRIVER_INIT_FAILED", err.Error())
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to reconnect session", "RECONNECT_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Session reconnecting", sess)
}

// DELETE /api/sessions/:sessionId
func (h *Handler) DeleteSession(c echo.Context) error {
	err := h.Manager.Delete(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, manager.ErrSessionNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to delete session", "DELETE_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Session deleted", nil)
}

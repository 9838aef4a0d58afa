package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gowa-hub/internal/manager"
	"gowa-hub/internal/model"

	"github.com/labstack/echo/v4"
)

type SendMessageRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// POST /api/sessions/:sessionId/messages
func (h *Handler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Content) == "" {
		return ErrorResponse(c, http.StatusBadRequest, "Fields 'to' and 'content' are required", "VALIDATION_ERROR", "")
	}

	msgType := model.MessageText
	if req.Type != "" {
		msgType = model.MessageType(req.Type)
	}

	msg, err := h.Manager.Send(c.Request().Context(), c.Param("sessionId"), req.To, req.Content, msgType)
	if err != nil {
		switch {
		case errors.Is(err, manager.ErrSessionNotFound):
			return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
		case errors.Is(err, manager.ErrSessionNotConnected):
			return ErrorResponse(c, http.StatusBadRequest, "Session is not connected", "SESSION_NOT_CONNECTED",
				"Messages can only be sent while the session is connected")
		case errors.Is(err, manager.ErrDriverCommand):
			return ErrorResponse(c, http.StatusBadGateway, "Failed to send message", "SEND_FAILED", err.Error())
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to send message", "SEND_FAILED", err.Error())
	}

	return SuccessResponse(c, http.StatusCreated, "Message sent", msg)
}

// GET /api/sessions/:sessionId/messages
func (h *Handler) GetMessages(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if _, err := h.Manager.Get(c.Request().Context(), sessionID); err != nil {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := h.Store.GetMessages(c.Request().Context(), sessionID, limit)
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to load messages", "LIST_MESSAGES_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Messages", msgs)
}

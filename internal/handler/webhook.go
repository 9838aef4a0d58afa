package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gowa-hub/internal/event"
	"gowa-hub/internal/model"
	"gowa-hub/internal/store"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type WebhookRequest struct {
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
	IsActive *bool    `json:"isActive"`
}

func (r *WebhookRequest) validate() (string, string) {
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "Field 'url' must be a valid http(s) URL", "INVALID_URL"
	}
	if len(r.Events) == 0 {
		return "Field 'events' must name at least one event", "VALIDATION_ERROR"
	}
	for _, ev := range r.Events {
		if ev == model.EventWildcard {
			continue
		}
		if !event.Known(ev) {
			return "Unknown event kind: " + ev, "UNKNOWN_EVENT"
		}
	}
	return "", ""
}

// POST /api/sessions/:sessionId/webhooks
func (h *Handler) CreateWebhook(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if _, err := h.Manager.Get(c.Request().Context(), sessionID); err != nil {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
	}

	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if msg, code := req.validate(); msg != "" {
		return ErrorResponse(c, http.StatusBadRequest, msg, code, "")
	}

	hook := &model.Webhook{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		URL:       strings.TrimSpace(req.URL),
		Events:    req.Events,
		Secret:    req.Secret,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if req.IsActive != nil {
		hook.IsActive = *req.IsActive
	}

	if err := h.Store.SaveWebhook(c.Request().Context(), hook); err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to save webhook", "SAVE_WEBHOOK_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusCreated, "Webhook registered", hook)
}

// GET /api/sessions/:sessionId/webhooks
func (h *Handler) GetWebhooks(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if _, err := h.Manager.Get(c.Request().Context(), sessionID); err != nil {
		return ErrorResponse(c, http.StatusNotFound, "Session not found", "SESSION_NOT_FOUND", "")
	}

	hooks, err := h.Store.GetWebhooks(c.Request().Context(), sessionID)
	if err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to load webhooks", "LIST_WEBHOOKS_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Webhooks", hooks)
}

// PUT /api/webhooks/:webhookId
func (h *Handler) UpdateWebhook(c echo.Context) error {
	hook, err := h.Store.GetWebhook(c.Request().Context(), c.Param("webhookId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "Webhook not found", "WEBHOOK_NOT_FOUND", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to load webhook", "GET_WEBHOOK_FAILED", err.Error())
	}

	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if msg, code := req.validate(); msg != "" {
		return ErrorResponse(c, http.StatusBadRequest, msg, code, "")
	}

	hook.URL = strings.TrimSpace(req.URL)
	hook.Events = req.Events
	hook.Secret = req.Secret
	if req.IsActive != nil {
		hook.IsActive = *req.IsActive
	}

	if err := h.Store.SaveWebhook(c.Request().Context(), hook); err != nil {
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to save webhook", "SAVE_WEBHOOK_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Webhook updated", hook)
}

// DELETE /api/webhooks/:webhookId
func (h *Handler) DeleteWebhook(c echo.Context) error {
	err := h.Store.DeleteWebhook(c.Request().Context(), c.Param("webhookId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "Webhook not found", "WEBHOOK_NOT_FOUND", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to delete webhook", "DELETE_WEBHOOK_FAILED", err.Error())
	}
	return SuccessResponse(c, http.StatusOK, "Webhook deleted", nil)
}

// POST /api/webhooks/:webhookId/test sends a synthetic event through the
// real delivery path so an endpoint can be verified before going live.
func (h *Handler) TestWebhook(c echo.Context) error {
	hook, err := h.Store.GetWebhook(c.Request().Context(), c.Param("webhookId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "Webhook not found", "WEBHOOK_NOT_FOUND", "")
		}
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to load webhook", "GET_WEBHOOK_FAILED", err.Error())
	}
	if h.Worker == nil {
		return ErrorResponse(c, http.StatusServiceUnavailable, "Webhook delivery is disabled", "WEBHOOK_DISABLED", "")
	}

	res := h.Worker.Test(c.Request().Context(), hook)
	if !res.Success() {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		return ErrorResponse(c, http.StatusBadGateway, "Webhook test delivery failed", "WEBHOOK_TEST_FAILED", detail)
	}
	return SuccessResponse(c, http.StatusOK, "Webhook test delivered", map[string]interface{}{
		"webhookId":  hook.ID,
		"statusCode": res.StatusCode,
	})
}

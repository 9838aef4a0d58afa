package handler

import (
	"log"
	"net/http"

	"gowa-hub/internal/ws"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard runs on another origin in dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /ws?sessionId=... upgrades to a realtime event stream. Without a
// sessionId the client receives events for every session.
func (h *Handler) ServeWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return err
	}

	client := ws.NewClient(h.Hub, conn, c.QueryParam("sessionId"))
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	return nil
}

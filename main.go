package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gowa-hub/config"
	"gowa-hub/internal/dispatcher"
	"gowa-hub/internal/driver"
	"gowa-hub/internal/handler"
	"gowa-hub/internal/manager"
	"gowa-hub/internal/store"
	"gowa-hub/internal/webhook"
	"gowa-hub/internal/ws"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func main() {

	// Load .env (ignore error when the file is missing, e.g. in production)
	_ = godotenv.Load()

	cfg := config.Load()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open state store: %v", err)
	}

	// connection driver: whatsmeow by default, fake for local dashboard work
	var factory driver.Factory
	switch cfg.Driver {
	case "fake":
		factory = driver.NewFakeFactory()
	default:
		container, err := driver.NewContainer(context.Background(), cfg.DriverStoreURL)
		if err != nil {
			log.Fatalf("failed to open driver store: %v", err)
		}
		factory = driver.NewWhatsmeowFactory(container)
	}

	// WebSocket hub for the realtime event stream
	hub := ws.NewHub()
	go hub.Run()

	var worker *webhook.Worker
	if cfg.EnableWebhook {
		worker = webhook.NewWorker(st, cfg.WebhookTimeout)
	} else {
		log.Println("webhook delivery disabled (set GOWA_ENABLE_WEBHOOK=true to enable)")
	}

	disp := dispatcher.New(st, hub, worker)

	mgr := manager.New(st, factory, disp, manager.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	// Bring persisted sessions back after a restart
	log.Println("Restoring existing sessions...")
	if err := mgr.Restore(context.Background()); err != nil {
		log.Printf("Warning: failed to restore sessions: %v", err)
	}

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.PUT,
			echo.PATCH,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestedWith,
			echo.HeaderAuthorization,
		},
		AllowCredentials: true,
	}))
	e.OPTIONS("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimitPerSecond),
				Burst:     cfg.RateLimitBurst,
				ExpiresIn: cfg.RateLimitWindow,
			},
		),
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		response := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		switch code {
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			response["message"] = "Endpoint not found"
		}

		c.JSON(code, response)
	}

	h := &handler.Handler{
		Manager: mgr,
		Store:   st,
		Worker:  worker,
		Hub:     hub,
	}

	// WebSocket and health check
	e.GET("/ws", h.ServeWS)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"success": true,
			"message": "GOWA Hub is running",
			"version": "1.0.0",
		})
	})

	api := e.Group("/api")

	// Session lifecycle
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.GetSessions)
	api.GET("/sessions/:sessionId", h.GetSession)
	api.GET("/sessions/:sessionId/qr", h.GetQR)
	api.POST("/sessions/:sessionId/logout", h.LogoutSession)
	api.POST("/sessions/:sessionId/reconnect", h.ReconnectSession)
	api.DELETE("/sessions/:sessionId", h.DeleteSession)

	// Messages
	api.POST("/sessions/:sessionId/messages", h.SendMessage)
	api.GET("/sessions/:sessionId/messages", h.GetMessages)

	// Webhooks
	api.POST("/sessions/:sessionId/webhooks", h.CreateWebhook)
	api.GET("/sessions/:sessionId/webhooks", h.GetWebhooks)
	api.PUT("/webhooks/:webhookId", h.UpdateWebhook)
	api.DELETE("/webhooks/:webhookId", h.DeleteWebhook)
	api.POST("/webhooks/:webhookId/test", h.TestWebhook)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// teardown order matters: stop sessions first so no new events are
	// raised, then drain webhook deliveries, then stop HTTP and the store
	mgr.Shutdown(ctx)
	disp.Wait()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := st.Close(); err != nil {
		log.Printf("store close: %v", err)
	}
	log.Println("Bye")
}

package core

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteTable builds the route table once the gate exists.
type RouteTable func(g *Gate) []Route

// NewRouter constructs the Gin engine. /healthz and /metrics are plain gin
// routes registered ahead of the session middleware; every other request
// falls through to the dispatcher. Templates are loaded by the caller.
func NewRouter(cfg Config, store sessions.Store, users CredentialStore, renderer Renderer, table RouteTable) (*gin.Engine, error) {
	startedAt := time.Now()

	resolver := NewPrincipalResolver(users)
	throttle := NewLoginThrottle(cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLockDuration)
	gate := NewGate(cfg, users, resolver, throttle)

	dispatcher, err := NewDispatcher(table(gate), renderer)
	if err != nil {
		return nil, err
	}

	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, CollectSystemStatus(cfg, dispatcher.Routes(), startedAt))
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Global middleware for the dispatched pages: trailing slash -> session -> CSRF
	if cfg.AddSlashes {
		r.Use(AddSlashes("", "/healthz", "/metrics"))
	}
	r.Use(SessionMiddleware(cfg, store, resolver, renderer))
	if cfg.CSRFEnabled {
		r.Use(CSRFMiddleware(cfg, renderer))
	}

	r.NoRoute(dispatcher.Handle)
	return r, nil
}

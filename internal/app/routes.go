package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/presence/internal/middleware"
	"github.com/mx-space/presence/internal/modules/archive"
	"github.com/mx-space/presence/internal/modules/gateway"
	"github.com/mx-space/presence/internal/modules/presence"
	"github.com/mx-space/presence/internal/pkg/response"
)

const (
	apiPrefix    = "/api/v2"
	rateLimitMax = 50
)

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.Auth(a.signer)

	r.NoRoute(func(c *gin.Context) {
		response.NotFoundMsg(c, "not found")
	})

	appInfo := gin.H{
		"name":    "presence",
		"version": "1.0.0",
	}
	r.GET("/", func(c *gin.Context) { c.JSON(http.StatusOK, appInfo) })

	gateway.RegisterRoutes(r.Group(""), a.hub)

	api := r.Group(apiPrefix)
	api.GET("/health", a.health)
	api.GET("/health/cron", authMW, func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})

	limited := api.Group("",
		middleware.OptionalAuth(a.signer),
		middleware.RateLimit(a.pool.Primary().Raw(), a.cfg.Presence.Prefix, rateLimitMax))
	presence.NewHandler(a.layer).RegisterRoutes(limited)
	archive.NewHandler(a.archive, a.sched).RegisterRoutes(api, authMW)
}

func (a *App) health(c *gin.Context) {
	ctx := c.Request.Context()

	sqlDB, err := a.db.DB()
	dbOK := err == nil && sqlDB.PingContext(ctx) == nil

	failures := a.pool.Ping(ctx)
	shards := make(map[string]bool, len(a.pool.Clients()))
	for _, client := range a.pool.Clients() {
		_, failed := failures[client.Name()]
		shards[client.Name()] = !failed
	}

	status := "ok"
	code := http.StatusOK
	if !dbOK || len(failures) > 0 {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": dbOK,
		"shards":   shards,
		"uptime":   humanizeDuration(time.Since(a.started)),
	})
}

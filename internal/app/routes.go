package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/middleware"
	"github.com/mx-space/sentinel/internal/modules/enforcement"
	"github.com/mx-space/sentinel/internal/modules/health"
	"github.com/mx-space/sentinel/internal/modules/moderation"
	"github.com/mx-space/sentinel/internal/modules/rights"
	"github.com/mx-space/sentinel/internal/modules/tasks/crontask"
	"github.com/mx-space/sentinel/internal/modules/webhook"
	"github.com/mx-space/sentinel/internal/pkg/jwt"
	"github.com/mx-space/sentinel/internal/pkg/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	apiPrefix = "/api/v1"

	apiRateLimit  = 600
	apiRateWindow = time.Minute
)

func (a *App) registerRoutes() {
	r := a.router
	rdb := a.rc.Raw()
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "mx-space-sentinel",
		"version": "1.0.0",
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})))

	api := r.Group(apiPrefix)
	api.Use(middleware.RateLimit(rdb, a.bark, "api", apiRateLimit, apiRateWindow))
	ledgerRoutes := make([]string, 0, len(rights.LedgerRoutes))
	for _, p := range rights.LedgerRoutes {
		ledgerRoutes = append(ledgerRoutes, apiPrefix+p)
	}
	api.Use(middleware.Idempotence(rdb, ledgerRoutes...))

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptime := time.Since(a.started)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptime.Milliseconds(),
			"humanize":  humanizeDuration(uptime),
		})
	})

	checks := health.Checks{
		DB:       a.db,
		Optional: map[string]health.Pinger{"redis": a.rc.Ping},
		Sched:    a.sched,
		LogDir:   a.cfg.LogDir(),
		Started:  a.started,
	}
	if a.mongo != nil {
		checks.Optional["mongo"] = func(ctx context.Context) error { return a.mongo.Ping(ctx, nil) }
	}
	for _, b := range a.breakers {
		checks.Breakers = append(checks.Breakers, b)
	}
	health.RegisterRoutes(api, checks, authMW)

	moderation.NewHandler(a.moderation, a.tasks).RegisterRoutes(api, authMW)
	rights.NewHandler(a.rights).RegisterRoutes(api, authMW)
	enforcement.NewHandler(a.ledger).RegisterRoutes(api, authMW)
	webhook.NewHandler(a.webhooks).RegisterRoutes(api, authMW, middleware.RequireRole(jwt.RoleAdmin))
	crontask.NewHandler(a.ctx, a.sched, a.tasks).RegisterRoutes(api, authMW)
}

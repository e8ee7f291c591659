package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mx-space/sentinel/internal/config"
	"github.com/mx-space/sentinel/internal/database"
	"github.com/mx-space/sentinel/internal/middleware"
	"github.com/mx-space/sentinel/internal/modules/audit"
	"github.com/mx-space/sentinel/internal/modules/detection"
	"github.com/mx-space/sentinel/internal/modules/enforcement"
	"github.com/mx-space/sentinel/internal/modules/lifecycle"
	"github.com/mx-space/sentinel/internal/modules/moderation"
	"github.com/mx-space/sentinel/internal/modules/notify"
	"github.com/mx-space/sentinel/internal/modules/rights"
	"github.com/mx-space/sentinel/internal/modules/tasks/crontask"
	"github.com/mx-space/sentinel/internal/modules/webhook"
	"github.com/mx-space/sentinel/internal/pkg/bark"
	pkgcron "github.com/mx-space/sentinel/internal/pkg/cron"
	"github.com/mx-space/sentinel/internal/pkg/metrics"
	pkgredis "github.com/mx-space/sentinel/internal/pkg/redis"
	"github.com/mx-space/sentinel/internal/pkg/taskqueue"
	"github.com/mx-space/sentinel/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// lifecycleChannelPrefix prefixes the per-kind visibility channels, e.g.
// sentinel:lifecycle:video.
const lifecycleChannelPrefix = "sentinel:lifecycle"

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	rc       *pkgredis.Client
	mongo    *mongo.Client
	logger   *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	sched    *pkgcron.Scheduler
	registry *prometheus.Registry
	started  time.Time

	breakers   []*detection.Breaker
	moderation *moderation.Service
	rights     *rights.Service
	ledger     *enforcement.Ledger
	tasks      *taskqueue.Service
	webhooks   *webhook.Service
	bark       *bark.Service
	dispatcher *notify.Dispatcher
}

// New initializes the application: database, redis, optional mongo audit
// trail, engines, background jobs and routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	applyRuntimeSettings(cfg, logger)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{cfg: cfg, db: db, logger: logger, ctx: ctx, cancel: cancel, started: time.Now()}

	a.rc, err = pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis: %w", err)
	}

	trail, err := a.auditTrail()
	if err != nil {
		a.Shutdown()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	a.wireEngines(trail, m)

	a.sched = pkgcron.New(logger)
	crontask.Register(a.sched, crontask.Deps{
		Moderation: a.moderation,
		Ledger:     a.ledger,
		Tasks:      a.tasks,
		Jobs:       cfg.Jobs,
	})
	a.sched.Start(ctx)

	a.router = a.newRouter()
	a.registerRoutes()
	return a, nil
}

// auditTrail writes decisions to the log and, when enabled, to MongoDB.
func (a *App) auditTrail() (*audit.Trail, error) {
	recorders := audit.Multi{audit.NewLogRecorder(a.logger)}
	if !a.cfg.Mongo.Enable {
		return audit.NewTrail(recorders, a.logger), nil
	}

	client, coll, err := database.ConnectMongo(a.ctx, a.cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	a.mongo = client
	rec := audit.NewMongoRecorder(coll)
	if err := rec.EnsureIndexes(a.ctx); err != nil {
		a.logger.Warn("audit index creation failed", zap.Error(err))
	}
	// the trail reads history back from the first Reader it finds
	return audit.NewTrail(append(audit.Multi{rec}, recorders...), a.logger), nil
}

func (a *App) wireEngines(trail *audit.Trail, m *metrics.Metrics) {
	cfg := a.cfg
	rdb := a.rc.Raw()

	detectors := []detection.Detector{
		detection.NewRuleDetector(cfg.Detection.SpamKeywords, cfg.Detection.BlockedPatterns),
	}
	if cfg.Detection.OpenAI.Enable {
		b := detection.NewBreaker(detection.NewOpenAIDetector(cfg.Detection.OpenAI), cfg.Detection.Breaker, a.logger)
		a.breakers = append(a.breakers, b)
		detectors = append(detectors, b)
	}

	a.bark = bark.New(cfg.Notify.Bark.Key, cfg.Notify.Bark.ServerURL, cfg.Notify.Bark.Title)
	a.webhooks = webhook.NewService(a.db, a.logger)
	channels := notify.Multi{}
	if cfg.Notify.Webhooks {
		channels = append(channels, a.webhooks)
	}
	if cfg.Notify.RedisChannel != "" {
		channels = append(channels, notify.NewRedisPublisher(rdb, cfg.Notify.RedisChannel))
	}
	if a.bark.Enabled() {
		channels = append(channels, notify.NewBarkAlerter(a.bark))
	}
	a.dispatcher = notify.NewDispatcher(channels, a.logger)

	st := store.New(a.db)
	publisher := lifecycle.NewRedisRegistry(rdb, lifecycleChannelPrefix)
	a.ledger = enforcement.NewLedger(st, cfg.Policy.TemporaryActionTTL, a.logger, m)
	a.tasks = taskqueue.NewService(a.rc)

	a.moderation = moderation.NewService(moderation.Deps{
		Store:     st,
		Ledger:    a.ledger,
		Detector:  detection.NewComposite(a.logger, m, detectors...),
		Lifecycle: publisher,
		Notifier:  a.dispatcher,
		Audit:     trail,
		Metrics:   m,
		Policy:    cfg.Policy,
		Logger:    a.logger,
	})
	a.rights = rights.NewService(rights.Deps{
		Store:     st,
		Ledger:    a.ledger,
		Lifecycle: publisher,
		Notifier:  a.dispatcher,
		Audit:     trail,
		Metrics:   m,
		Policy:    cfg.Policy,
		Logger:    a.logger,
	})
}

func (a *App) newRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(a.logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-idempotence"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}
	if len(a.cfg.AllowedOrigins) > 0 && !a.cfg.IsDev() {
		corsConfig.AllowOriginFunc = newOriginPolicy(a.cfg.AllowedOrigins).Allow
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))
	return router
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and closes connections.
func (a *App) Shutdown() {
	a.cancel()
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}
	if a.rc != nil {
		_ = a.rc.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mx-space/presence/internal/config"
	"github.com/mx-space/presence/internal/database"
	"github.com/mx-space/presence/internal/middleware"
	"github.com/mx-space/presence/internal/modules/archive"
	"github.com/mx-space/presence/internal/modules/gateway"
	"github.com/mx-space/presence/internal/modules/identity"
	"github.com/mx-space/presence/internal/modules/presence"
	"github.com/mx-space/presence/internal/pkg/cluster"
	pkgcron "github.com/mx-space/presence/internal/pkg/cron"
	jwtpkg "github.com/mx-space/presence/internal/pkg/jwt"
	pkgredis "github.com/mx-space/presence/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	db      *gorm.DB
	pool    *pkgredis.Pool
	layer   *presence.Layer
	hub     *gateway.Hub
	archive *archive.Service
	signer  *jwtpkg.Signer
	logger  *zap.Logger
	cancel  context.CancelFunc
	sched   *pkgcron.Scheduler
	started time.Time
}

// New initializes the application: config → DB → Redis shards → presence layer → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := applyRuntimeSettings(cfg); err != nil {
		return nil, err
	}

	signer := jwtpkg.New(cfg.JWTSecret)
	if signer.IsDefault() {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	pool, err := pkgredis.Open(redisShards(cfg))
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("redis: %w", err)
	}

	store := identity.NewStore(db, signer)
	layer := presence.NewLayer(
		presence.NewRouter(pool, cfg.Presence.Capacity),
		presence.NewCodec(cfg.Presence.Prefix, cfg.Presence.Capacity),
		presence.NewLedger(cfg.Presence.StaleWindow()),
		presence.WithResolver(store),
		presence.WithLogger(logger.Named("presence")),
	)
	hub := gateway.NewHub(layer, store, pool.Primary(), cfg.Presence.Prefix, logger.Named("gateway"))

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	archiveSvc := archive.NewService(layer, pool, cfg.Archive, archive.WithLogger(logger.Named("archive")))
	sched := pkgcron.New(pkgcron.WithLogger(logger.Named("CronService")))
	if archiveSvc.Enabled() {
		if err := registerCronJobs(sched, archiveSvc); err != nil {
			cancel()
			_ = pool.Close()
			_ = database.Close(db)
			return nil, err
		}
		if cluster.ShouldRunCron() {
			go sched.Start(ctx)
		}
	} else {
		logger.Info("presence archive disabled, no bucket configured")
	}

	app := &App{
		cfg:     cfg,
		router:  newRouter(cfg, logger),
		db:      db,
		pool:    pool,
		layer:   layer,
		hub:     hub,
		archive: archiveSvc,
		signer:  signer,
		logger:  logger,
		cancel:  cancel,
		sched:   sched,
		started: time.Now(),
	}
	app.registerRoutes()

	logger.Info("presence layer ready",
		zap.Int("shards", len(pool.Clients())),
		zap.String("prefix", cfg.Presence.Prefix),
		zap.Duration("stale_after", cfg.Presence.StaleWindow()))
	return app, nil
}

func redisShards(cfg *config.AppConfig) []pkgredis.Shard {
	shards := make([]pkgredis.Shard, 0, len(cfg.Shards))
	for _, s := range cfg.Shards {
		shards = append(shards, pkgredis.Shard{Name: s.Name, URL: s.URL})
	}
	return shards
}

func newRouter(cfg *config.AppConfig, logger *zap.Logger) *gin.Engine {
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))
	return router
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		corsConfig.AllowOriginFunc = originMatcher(cfg.AllowedOrigins)
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsConfig
}

func registerCronJobs(sched *pkgcron.Scheduler, archiveSvc *archive.Service) error {
	return sched.Register(archiveSvc.Job())
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines and closes the shard pool and database.
func (a *App) Shutdown() {
	a.cancel()
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("close redis shards", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}

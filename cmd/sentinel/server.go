package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"

	"github.com/haven-msg/sentinel/moderation/analysis"
	"github.com/haven-msg/sentinel/moderation/cachestore"
	"github.com/haven-msg/sentinel/moderation/cleanup"
	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/engine"
	"github.com/haven-msg/sentinel/moderation/evidence"
	"github.com/haven-msg/sentinel/moderation/notify"
	"github.com/haven-msg/sentinel/moderation/screenguard"
	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/moderation/suspension"
)

type Server struct {
	logger  *slog.Logger
	engine  *engine.Engine
	guard   *screenguard.Guard
	cleaner *cleanup.Scheduler
	flags   store.FlagStore
	rdb     *redis.Client

	echo  *echo.Echo
	httpd *http.Server
}

type Config struct {
	Logger             *slog.Logger
	DatabaseURL        string
	MaxDBConnections   int
	RedisURL           string
	Bind               string
	AnalyzerHost       string
	AnalyzerToken      string
	AnalyzerRateLimit  int
	AgencyGatewayHost  string
	AgencyGatewayToken string
	SlackWebhookURL    string
	ScanBatchSize      int
	CleanupInterval    time.Duration
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	db, err := store.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
	if err != nil {
		return nil, err
	}
	if err := store.MigrateModels(db); err != nil {
		return nil, fmt.Errorf("running database migrations: %w", err)
	}
	st := store.NewGormStore(db)

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}

		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
	}

	var analyzer analysis.Analyzer
	if config.AnalyzerHost != "" {
		logger.Info("configuring remote content analyzer", "host", config.AnalyzerHost)
		analyzer = analysis.NewHTTPAnalyzer(config.AnalyzerHost, config.AnalyzerToken, config.AnalyzerRateLimit)
	} else {
		logger.Info("no analyzer host configured, using keyword analyzer")
		analyzer = analysis.NewKeywordAnalyzer(analysis.DefaultTerms())
	}

	var notifier notify.Notifier = notify.Null{}
	if config.SlackWebhookURL != "" {
		logger.Info("configuring webhook notifications")
		notifier = notify.NewWebhookNotifier(config.SlackWebhookURL)
	}

	var gateway evidence.AgencyGateway = evidence.ManualGateway{}
	if config.AgencyGatewayHost != "" {
		logger.Info("configuring agency gateway", "host", config.AgencyGatewayHost)
		gateway = evidence.NewHTTPGateway(config.AgencyGatewayHost, config.AgencyGatewayToken)
	}

	susp := suspension.NewManager(logger, st, st)
	ev := &evidence.Manager{
		Logger:  logger,
		Holds:   st,
		Cases:   st,
		Flags:   st,
		Alerts:  st,
		Content: st,
		Audit:   st,
		Gateway: gateway,
	}

	eng := &engine.Engine{
		Logger:        logger,
		Policy:        engine.DefaultThresholds(),
		Analyzer:      analyzer,
		Flags:         st,
		Alerts:        st,
		Audit:         st,
		Content:       st,
		Behavior:      st,
		Suspensions:   susp,
		Evidence:      ev,
		Counters:      counters,
		Cache:         cache,
		Notifier:      notifier,
		ScanBatchSize: config.ScanBatchSize,
	}

	srv := &Server{
		logger:  logger,
		engine:  eng,
		guard:   screenguard.NewGuard(logger, st, st, notifier),
		flags:   st,
		rdb:     rdb,
		cleaner: &cleanup.Scheduler{
			Logger:      logger,
			Content:     st,
			Audit:       st,
			Suspensions: susp,
			Evidence:    ev,
			Interval:    config.CleanupInterval,
			BatchSize:   100,
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)

	e.POST("/moderation/content", srv.HandleSubmitContent)
	e.GET("/moderation/flags", srv.HandleListFlags)
	e.POST("/moderation/flags/:flagID/review", srv.HandleReviewFlag)
	e.POST("/moderation/flags/:flagID/report", srv.HandleReportToAuthorities)
	e.POST("/moderation/conversations/:convID/scan", srv.HandleScanConversation)
	e.POST("/moderation/activity-reports", srv.HandleActivityReport)
	e.POST("/moderation/users/:userID/suspend", srv.HandleSuspendUser)
	e.POST("/moderation/users/:userID/unsuspend", srv.HandleLiftSuspension)
	e.GET("/moderation/users/:userID/restrictions", srv.HandleCheckRestrictions)
	e.POST("/moderation/cases/:caseID/agency-update", srv.HandleAgencyUpdate)
	e.POST("/moderation/alerts/:alertID/acknowledge", srv.HandleAcknowledgeAlert)
	e.POST("/moderation/alerts/:alertID/resolve", srv.HandleResolveAlert)
	e.POST("/moderation/screenshot-attempts", srv.HandleScreenshotAttempt)
	e.POST("/moderation/holds", srv.HandleCreateHold)
	e.POST("/moderation/holds/:holdID/release", srv.HandleReleaseHold)
	e.POST("/admin/maintenance", srv.HandleMaintenance)
	e.POST("/admin/cleanup", srv.HandleBulkCleanup)

	srv.echo = e
	srv.httpd = &http.Server{
		Handler:        e,
		Addr:           config.Bind,
		ReadTimeout:    time.Minute,
		WriteTimeout:   5 * time.Minute,
		MaxHeaderBytes: 1 * (1024 * 1024),
	}

	return srv, nil
}

// Run starts the HTTP API and the background cleanup loops, then blocks
// until an exit signal arrives.
func (srv *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := srv.cleaner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			srv.logger.Error("cleanup scheduler stopped", "err", err)
		}
	}()

	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exitSignals
		srv.logger.Info("received OS exit signal", "signal", sig)
		cancel()
		if err := srv.Shutdown(); err != nil {
			srv.logger.Error("HTTP server shutdown error", "err", err)
		}
		close(quit)
	}()
	<-quit
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.httpd.Shutdown(ctx)
}

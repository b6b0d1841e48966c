package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/apollo/booking/internal/config"
	"github.com/apollo/booking/internal/domain/appointment"
	"github.com/apollo/booking/internal/domain/otp"
	"github.com/apollo/booking/internal/platform/db"
	"github.com/apollo/booking/internal/platform/middleware"
	"github.com/apollo/booking/internal/platform/notification"
	"github.com/apollo/booking/internal/platform/openapi"
	"github.com/apollo/booking/internal/platform/telemetry"
	"github.com/apollo/booking/internal/platform/validation"
)

const welcomeMessage = "Welcome to Apollo Hospitals Chennai Appointment Booking API. Navigate to /v1/docs for API documentation."

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func runServer() error {
	// Logger
	logger := newLogger(os.Getenv("ENV"), os.Getenv("LOG_LEVEL"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	logger = newLogger(cfg.Env, cfg.LogLevel)

	ctx := context.Background()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.OTelEnabled,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnLifetime:   cfg.DBMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBHealthCheckPeriod,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up rate limiting")
	}
	defer closeLimiter()

	svc := appointment.NewService(appointment.NewRepoPG(pool), appointment.Options{
		AtomicCreate:  cfg.AtomicCreate(),
		IDMaxAttempts: cfg.IDMaxAttempts,
		SlotCapacity:  cfg.SlotCapacity,
		SlotStartHour: cfg.SlotStartHour,
		DoctorName:    cfg.DefaultDoctorName,
	})
	logger.Info().
		Str("create_mode", cfg.CreateMode).
		Int("slot_capacity", cfg.SlotCapacity).
		Msg("appointment service ready")

	e := newRouter(routerDeps{
		cfg:      cfg,
		logger:   logger,
		appts:    svc,
		session:  db.SessionMiddleware(pool, logger),
		dbHealth: db.HealthHandler(pool, logger),
		limiter:  limiter,
		sms:      notification.NewLogSender(logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           telemetry.WrapHandler(e, cfg.OTelServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newLogger writes JSON, or human-readable output in development. Unknown
// levels fall back to info.
func newLogger(env, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stdout)
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

// newRateLimiter prefers the shared Redis window when REDIS_URL is set so
// the limit holds across replicas. Outside production an unreachable Redis
// lets requests through.
func newRateLimiter(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (echo.MiddlewareFunc, func(), error) {
	if cfg.RedisURL == "" {
		rlCfg := middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           3 * time.Minute,
		}
		if rlCfg.RequestsPerSecond <= 0 {
			rlCfg = middleware.DefaultRateLimitConfig()
		}
		return middleware.RateLimit(rlCfg), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup")
	} else {
		logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	}

	rl := middleware.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "booking")
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("close redis client")
		}
	}
	return rl.Middleware(logger, !cfg.IsProduction()), closeFn, nil
}

// routerDeps are the collaborators the HTTP surface is built from.
type routerDeps struct {
	cfg      *config.Config
	logger   zerolog.Logger
	appts    *appointment.Service
	session  echo.MiddlewareFunc
	dbHealth echo.HandlerFunc
	limiter  echo.MiddlewareFunc
	sms      notification.SMSSender
}

func newRouter(d routerDeps) *echo.Echo {
	cfg, logger := d.cfg, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.RouteNamer())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": welcomeMessage})
	})

	api := e.Group(cfg.APIPrefix)

	// Health checks are registered before the limiter so probes are never throttled.
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	if d.dbHealth != nil {
		api.GET("/health/db", d.dbHealth)
	}
	openapi.NewGenerator(version, cfg.APIPrefix).RegisterRoutes(api)

	if d.limiter != nil {
		api.Use(d.limiter)
	}

	var apptMW []echo.MiddlewareFunc
	if d.session != nil {
		apptMW = append(apptMW, d.session)
	}
	appointment.NewHandler(d.appts, logger).RegisterRoutes(api, apptMW...)
	otp.NewHandler(otp.NewService(logger), logger).RegisterRoutes(api)
	notification.NewHandler(d.sms, notification.NewTemplateEngine(), logger).RegisterRoutes(api)

	return e
}

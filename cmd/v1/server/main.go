package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/admin"
	"github.com/phiralab/phira-mp-server/internal/v1/config"
	"github.com/phiralab/phira-mp-server/internal/v1/console"
	"github.com/phiralab/phira-mp-server/internal/v1/events"
	"github.com/phiralab/phira-mp-server/internal/v1/health"
	"github.com/phiralab/phira-mp-server/internal/v1/identity"
	"github.com/phiralab/phira-mp-server/internal/v1/logging"
	"github.com/phiralab/phira-mp-server/internal/v1/monitors"
	"github.com/phiralab/phira-mp-server/internal/v1/ratelimit"
	"github.com/phiralab/phira-mp-server/internal/v1/room"
	"github.com/phiralab/phira-mp-server/internal/v1/security"
	"github.com/phiralab/phira-mp-server/internal/v1/session"
	"github.com/phiralab/phira-mp-server/internal/v1/tracing"
	"github.com/phiralab/phira-mp-server/internal/v1/transport"
)

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	// --- Tracing (optional) ---
	var tracerProvider interface {
		Shutdown(ctx context.Context) error
	}
	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), "phira-mp-server", cfg.OtelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			tracerProvider = tp
			slog.Info("✅ OTLP tracing initialized", "collector", cfg.OtelCollectorAddr)
		}
	}

	// --- Persistent moderation state ---
	secStore, err := security.Load(cfg.SecurityFile)
	if err != nil {
		slog.Error("Failed to load security store", "error", err, "path", cfg.SecurityFile)
		os.Exit(1)
	}

	// --- Core services ---
	registry := room.NewRegistry(cfg.MaxRoomUsers)

	monitorIDs, err := monitors.Load(cfg.MonitorsFile)
	if err != nil {
		slog.Error("Failed to load monitors file", "error", err, "path", cfg.MonitorsFile)
		os.Exit(1)
	}
	registry.SetMonitors(monitorIDs)
	if len(monitorIDs) > 0 {
		slog.Info("Monitors loaded", "count", len(monitorIDs))
	}

	identityClient := identity.NewClient(cfg.PhiraAPIBase)
	bus := events.NewBus()
	subscribeDebugLogging(bus)
	mgr := session.NewManager(registry, identityClient, secStore, bus)

	limiter, err := ratelimit.NewRateLimiter(cfg.RateLimitConnect, cfg.RateLimitAdmin)
	if err != nil {
		slog.Error("Failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	// --- TCP game server ---
	tcpServer := transport.NewServer(cfg.GameAddr(), mgr, secStore, limiter)
	if err := tcpServer.Listen(); err != nil {
		slog.Error("Failed to bind TCP listener", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := tcpServer.Serve(); err != nil {
			slog.Error("TCP server failed", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// --- Admin HTTP surface (optional) ---
	var httpServer *http.Server
	if cfg.AdminPort != "" {
		if !cfg.DevelopmentMode {
			gin.SetMode(gin.ReleaseMode)
		}
		router := gin.New()
		router.Use(gin.Recovery())
		router.Use(otelgin.Middleware("phira-mp-server"))

		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		router.Use(cors.New(corsCfg))

		// Prometheus metrics endpoint
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))

		// Health check endpoints
		healthHandler := health.NewHandler(registry, func() bool {
			return tcpServer.Addr() != nil
		})
		router.GET("/health/live", healthHandler.Liveness)
		router.GET("/health/ready", healthHandler.Readiness)

		adminServer := admin.NewServer(mgr, secStore, cfg.AdminToken, cfg.MonitorsFile)
		adminServer.RegisterRoutes(router, limiter)

		httpServer = &http.Server{
			Addr:    ":" + cfg.AdminPort,
			Handler: router,
		}
		go func() {
			slog.Info("Admin API starting", "port", cfg.AdminPort)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Failed to run admin server", "error", err)
				syscall.Kill(os.Getpid(), syscall.SIGTERM)
			}
		}()
	} else {
		slog.Info("Admin API disabled (ADMIN_PORT not set)")
	}

	// --- Operator console ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	cons := console.New(mgr, secStore, cfg.MonitorsFile, func() {
		quit <- syscall.SIGTERM
	}, os.Stdin, os.Stdout)
	go cons.Run(context.Background())

	// Wait for an interrupt signal to gracefully shut down the server
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := tcpServer.Shutdown(ctx); err != nil {
		slog.Error("Error during TCP shutdown:", "error", err)
	}

	// With the listener stopped, close every live connection so the
	// disconnect hooks run and rooms tear down before exit.
	mgr.CloseAll()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("Admin server forced to shutdown:", "error", err)
		}
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down tracer provider:", "error", err)
		}
	}

	_ = logging.GetLogger().Sync()
	slog.Info("Server exiting")
}

// subscribeDebugLogging mirrors every core event into the debug log.
func subscribeDebugLogging(bus *events.Bus) {
	for _, topic := range []string{
		events.TopicUserAuthenticated,
		events.TopicUserDisconnected,
		events.TopicRoomCreated,
		events.TopicRoomDestroyed,
		events.TopicRoomJoined,
		events.TopicRoomLeft,
		events.TopicChat,
		events.TopicGameStarted,
		events.TopicGameFinished,
	} {
		bus.Subscribe(topic, func(ctx context.Context, payload any) {
			logging.Debug(ctx, "event", zap.String("topic", topic), zap.Any("payload", payload))
		})
	}
}

// allowedOrigins splits the comma-separated ALLOWED_ORIGINS value, falling
// back to localhost for development.
func allowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

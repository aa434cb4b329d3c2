package main

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/dhawalhost/rowguard/internal/authz"
	"github.com/dhawalhost/rowguard/internal/token"
	"github.com/dhawalhost/rowguard/pkg/database"
	"github.com/dhawalhost/rowguard/pkg/logger"
	"github.com/dhawalhost/rowguard/pkg/middleware"
	"github.com/dhawalhost/rowguard/pkg/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

func main() {
	log := logger.New(zapcore.InfoLevel)
	defer log.Sync()

	ctx := context.Background()
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    "authzsvc",
		ServiceVersion: "0.1.0",
		Environment:    envOr("ENVIRONMENT", "development"),
	}, log)
	if err != nil {
		log.Error("Failed to initialize tracing", zap.Error(err))
		os.Exit(1)
	}
	defer shutdownTracer(ctx)

	db, err := database.NewConnection(database.Config{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envInt("DB_PORT", 5432),
		User:     envOr("DB_USER", "rowguard"),
		Password: envOr("DB_PASSWORD", "rowguard"),
		DBName:   envOr("DB_NAME", "rowguard"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	})
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	tokenSvc, err := token.NewService(token.NewStore(db))
	if err != nil {
		log.Error("Failed to create token service", zap.Error(err))
		os.Exit(1)
	}
	authzSvc := authz.NewService(authz.NewStore(db), metrics)

	currentUser := token.CurrentUser(tokenSvc)
	perms, err := middleware.ConfigurePermissions(middleware.PermissionConfig{
		CurrentUser: currentUser,
		Observe:     metrics.RecordDecision,
	})
	if err != nil {
		log.Error("Failed to configure permissions", zap.Error(err))
		os.Exit(1)
	}

	if envOr("GIN_MODE", "") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("authzsvc"))
	router.Use(observability.PrometheusMiddleware(metrics))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.RateLimitMiddleware(rate.Limit(50), 100))
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{envOr("CORS_ORIGIN", "http://localhost:3000")},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	router.GET("/metrics", gin.WrapH(observability.PrometheusHandler()))
	router.GET("/health", func(c *gin.Context) {
		if ok, err := authzSvc.HealthCheck(c.Request.Context()); !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"healthy": true})
	})

	token.NewHTTPHandler(tokenSvc, log).RegisterRoutes(router)
	authz.NewHTTPHandler(authzSvc, perms, currentUser, log).RegisterRoutes(router.Group("/api/v1"))

	addr := envOr("HTTP_ADDR", ":8080")
	log.Info("HTTP server starting", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		log.Error("HTTP server failed", zap.Error(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

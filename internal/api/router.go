// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// Coordinator is the submission surface the handlers drive.
type Coordinator interface {
	Submit(ctx context.Context, req execution.SubmissionRequest) (string, error)
	GetResult(ctx context.Context, taskID string) (execution.Outcome, error)
	Languages(ctx context.Context) ([]execution.LanguageSpec, error)
}

// EngineInfo reports container engine version data.
type EngineInfo interface {
	Info(ctx context.Context) (execution.EngineInfo, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config carries the router dependencies. Engine, Checks and Metrics are optional.
type Config struct {
	Coordinator Coordinator
	Engine      EngineInfo
	Checks      map[string]HealthCheck
	Metrics     http.Handler
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter builds the gin engine serving the API.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("coordinator must be provided")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(log.Named("http")), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.CORSOrigins
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"*"}
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	router.Use(cors.New(corsCfg))

	h := &handler{
		coordinator: cfg.Coordinator,
		engine:      cfg.Engine,
		checks:      cfg.Checks,
	}

	router.POST("/execute", h.execute)
	router.GET("/execute/:taskId", h.result)
	router.GET("/languages", h.languages)
	router.GET("/health", h.health)
	if cfg.Engine != nil {
		router.GET("/docker/info", h.engineInfo)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return router, nil
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("request failed", fields...)
			return
		}
		log.Debug("request served", fields...)
	}
}

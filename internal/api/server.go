// Package api implements the operator control surface: a small gin HTTP
// server exposing mode control (C14), operator settings, and read-only
// risk/position status. Adapted from the teacher's internal/api/server.go
// (gin.Engine + gin-contrib/cors + grouped routes), trimmed from the
// teacher's large multi-tenant handler set down to the single-operator
// surface this engine needs.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kairoslabs/derivatives-engine/internal/auth"
	"github.com/kairoslabs/derivatives-engine/internal/coordinator"
	"github.com/kairoslabs/derivatives-engine/internal/database"
	"github.com/kairoslabs/derivatives-engine/internal/position"
	"github.com/kairoslabs/derivatives-engine/internal/risk"
	"github.com/kairoslabs/derivatives-engine/internal/safety"
)

// Config holds the HTTP server's listen settings.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins string
}

// Server is the operator control surface.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	logger zerolog.Logger
}

// Dependencies are the components the control surface exposes or drives.
type Dependencies struct {
	Coordinator   *coordinator.Coordinator
	Settings      *database.SettingsStore
	RiskManager   *risk.Manager
	SafetyLayer   *safety.Layer
	Positions     *position.Manager
	AuthManager   *auth.Manager
	Passwords     *auth.PasswordManager
	OperatorName  string
	OperatorPasswordHash string
}

// New builds a Server with routes registered.
func New(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.AllowedOrigins}, AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	scopedLogger := logger.With().Str("component", "ControlSurface").Logger()
	h := &handlers{deps: deps, logger: scopedLogger}

	engine.GET("/healthz", h.health)
	if deps.AuthManager != nil {
		engine.POST("/v1/auth/login", h.login)
	}

	protected := engine.Group("/v1")
	if deps.AuthManager != nil {
		protected.Use(auth.Middleware(deps.AuthManager))
	}
	protected.GET("/status", h.status)
	protected.GET("/settings", h.getSettings)
	protected.POST("/settings", h.putSettings)
	protected.POST("/mode/sentinel", h.startSentinel)
	protected.POST("/mode/institutional", h.startInstitutional)
	protected.POST("/mode/idle", h.stopAll)
	protected.GET("/positions", h.listPositions)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		engine: engine,
		http:   &http.Server{Addr: addr, Handler: engine, ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		logger: scopedLogger,
	}
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("control surface shutdown error")
		}
	}()

	s.logger.Info().Str("addr", s.http.Addr).Msg("control surface listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control surface: %w", err)
	}
	return nil
}

// Package server assembles the HTTP router and runs the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"todo-api/internal/config"
	"todo-api/internal/handlers"
	"todo-api/internal/middleware"
	"todo-api/internal/monitoring"
	"todo-api/internal/server/apidocs"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// AccountService covers registration, login and user management.
type AccountService interface {
	handlers.Authenticator
	handlers.UserManager
}

type Dependencies struct {
	Accounts AccountService
	Tasks    handlers.TaskManager
	Tokens   middleware.TokenVerifier
	Metrics  *monitoring.Metrics
	Health   *monitoring.HealthChecker
	Logger   *slog.Logger
}

type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	router *gin.Engine
	deps   Dependencies
}

func New(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Health == nil {
		deps.Health = monitoring.NewHealthChecker(0)
	}

	s := &Server{
		cfg:    cfg,
		log:    deps.Logger,
		router: gin.New(),
		deps:   deps,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) corsConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowedOrigins,
		AllowMethods:     s.cfg.CORS.AllowedMethods,
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(
		middleware.RecoveryWithLog(s.log),
		middleware.RequestID(),
		middleware.RequestLogger(s.log),
		s.deps.Metrics.MetricsMiddleware(),
		cors.New(s.corsConfig()),
	)

	r.GET("/healthz", s.deps.Health.HealthHandler())
	r.GET("/readyz", s.deps.Health.ReadinessHandler())
	r.GET("/livez", s.deps.Health.LivenessHandler())
	r.GET("/metrics", s.deps.Metrics.MetricsHandler())
	apidocs.Register(r)

	authHandler := handlers.NewAuthHandler(s.deps.Accounts)
	userHandler := handlers.NewUserHandler(s.deps.Accounts)
	taskHandler := handlers.NewTaskHandler(s.deps.Tasks)
	requireAuth := middleware.AuthMiddleware(s.deps.Tokens)

	authGroup := r.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	users := authGroup.Group("/users", requireAuth)
	users.GET("", userHandler.ListUsers)
	users.PUT("/:id", userHandler.UpdateUser)
	users.DELETE("/:id", userHandler.DeleteUser)

	tasks := r.Group("/tasks", requireAuth)
	tasks.GET("", taskHandler.GetTasks)
	tasks.GET("/:id", taskHandler.GetTaskByID)
	tasks.POST("", taskHandler.CreateTask)
	tasks.PUT("/:id", taskHandler.UpdateTask)
	tasks.DELETE("/:id", taskHandler.DeleteTask)
}

// Run serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.GetServerAddr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server.Run: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Run: shutdown: %w", err)
	}
	return nil
}

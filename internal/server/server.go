package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outcall-server/internal/api"
	"outcall-server/internal/bootstrap"
	"outcall-server/internal/config"
	"outcall-server/internal/observability"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	deps       *bootstrap.Dependencies
	config     config.Config
	logger     *observability.Logger
}

func New(cfg config.Config, deps *bootstrap.Dependencies, logger *observability.Logger) *Server {
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
}

func (s *Server) Setup() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.Middleware(s.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS", "DELETE"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	allowedOrigins := []string{s.config.Server.WebAppURI}
	if os.Getenv("GO_ENV") != "production" {
		allowedOrigins = append(allowedOrigins, "http://localhost:3000")
	}
	corsConfig.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsConfig))

	rootRouter := router.Group("/")
	callAPI := api.New(rootRouter, s.deps.Handler, s.deps.Verifier)
	callAPI.RegisterRoutes()

	s.router = router
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.Port),
		Handler: router,
	}
}

func (s *Server) Start() {
	ctx := context.Background()
	go func() {
		s.logger.Info(ctx, fmt.Sprintf("Server listening on port %d", s.config.Server.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, "failed to start server", err)
			os.Exit(1)
		}
	}()
}

func (s *Server) WaitForShutdown() {
	ctx := context.Background()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, "server forced to shutdown", err)
	}

	s.deps.Cleanup(ctx)
	s.logger.Info(ctx, "Server exited")
}

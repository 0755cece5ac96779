// Package server exposes the HTTP surface: the manual digest trigger and a
// placeholder page for everything else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bird_whisperer/internal/app"
)

const placeholder = "Bird Whisperer"

// Runner performs one digest run.
type Runner interface {
	RunDigest(ctx context.Context, trigger string) (*app.RunResult, error)
}

// Server is the HTTP server.
type Server struct {
	runner Runner
	router *gin.Engine
	log    *slog.Logger
}

// New creates a Server. The trigger route is registered only when
// enableTrigger is true.
func New(runner Runner, enableTrigger bool, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		runner: runner,
		router: router,
		log:    log,
	}

	router.Use(s.logRequests, gin.Recovery())

	if enableTrigger {
		router.GET("/trigger", s.handleTrigger)
		router.POST("/trigger", s.handleTrigger)
	}
	router.NoRoute(func(c *gin.Context) {
		c.String(http.StatusOK, placeholder)
	})

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleTrigger(c *gin.Context) {
	_, err := s.runner.RunDigest(c.Request.Context(), app.TriggerHTTP)
	switch {
	case errors.Is(err, app.ErrRunInProgress):
		c.String(http.StatusConflict, "Error: %v", err)
	case err != nil:
		c.String(http.StatusInternalServerError, "Error: %v", err)
	default:
		c.String(http.StatusOK, "Digest triggered")
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

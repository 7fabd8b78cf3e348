// Package web serves the JSON API used to build and join schedules.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"meetme/internal/agenda"
	"meetme/internal/planner"
	"meetme/internal/store"
	"meetme/internal/timeparse"
)

// ErrUnauthenticated is returned by a ProviderFactory when the session has no
// usable credentials.
var ErrUnauthenticated = errors.New("not authenticated")

// ProviderFactory returns the calendar provider for a session. token is nil
// until the session completed the OAuth flow.
type ProviderFactory func(ctx context.Context, token *oauth2.Token) (planner.Provider, error)

// Options configures a Server.
type Options struct {
	BaseURL     string
	Location    *time.Location
	SessionTTL  time.Duration
	SessionSize int
	// OAuth enables /auth/google and /oauth2callback when set.
	OAuth     *oauth2.Config
	Providers ProviderFactory
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	logger    *slog.Logger
	planner   *planner.Planner
	oauth     *oauth2.Config
	providers ProviderFactory
	sessions  *sessionStore
	baseURL   string
	location  *time.Location
	now       func() time.Time
	engine    *gin.Engine
}

// NewServer builds the router.
func NewServer(logger *slog.Logger, p *planner.Planner, opts Options) *Server {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		logger:    logger,
		planner:   p,
		oauth:     opts.OAuth,
		providers: opts.Providers,
		baseURL:   opts.BaseURL,
		location:  loc,
		now:       time.Now,
	}
	s.sessions = newSessionStore(opts.SessionSize, opts.SessionTTL, func() agenda.Window {
		return timeparse.DefaultWindow(s.now(), s.location)
	})

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	s.registerRoutes(router)
	s.engine = router
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.health)
	router.GET("/auth/google", s.authGoogle)
	router.GET("/oauth2callback", s.oauthCallback)

	api := router.Group("/api")
	{
		api.GET("/session", s.getSession)
		api.POST("/range", s.setRange)
		api.GET("/calendars", s.listCalendars)
		api.POST("/proposal", s.propose)
		api.POST("/schedules", s.createSchedule)
		api.GET("/schedules/:id", s.getSchedule)
		api.GET("/schedules/:id/ics", s.exportSchedule)
		api.GET("/invite/:id", s.invite)
		api.POST("/schedules/:id/join", s.joinSchedule)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// fail writes err as a JSON error with a status derived from its kind.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var parseErr *agenda.ParseError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, planner.ErrBadIndex),
		errors.Is(err, planner.ErrNoWindow),
		errors.Is(err, agenda.ErrInvalidWindow),
		errors.As(err, &parseErr):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// requestLogger logs each request once it has been handled.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Package httpserver exposes the video delivery pipeline over HTTP with echo.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/service"
)

type (
	// Options carry the services and settings of the HTTP API.
	Options struct {
		Address        string
		DisableReqLogs bool
		// AllowedOrigins feed the CORS policy; empty allows any origin.
		AllowedOrigins []string
		Videos         service.VideoRegistry
		Tokens         service.TokenIssuer
		Stream         service.StreamProxy
		DeepLinks      service.DeepLinkRedeemer
		Sessions       service.UserDirectory
		// Ping reports database health for /healthz; nil means always healthy.
		Ping func(ctx context.Context) error
		Log  *zap.Logger
	}

	// Server is the HTTP API.
	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
		log  *zap.Logger
	}
)

var _ Server = (*server)(nil)

// NewServer builds the echo application and registers every route.
func NewServer(opts *Options) Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &server{
		opts: opts,
		app:  echo.New(),
		log:  log,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Pre(corsMiddleware(s.opts.AllowedOrigins))
	s.app.Use(middleware.RequestID())
	s.app.Use(RecoverMiddleware(s.log))
	if !s.opts.DisableReqLogs {
		s.app.Use(LoggingMiddleware(s.log))
	}

	s.app.Validator = newValidator()
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.log)

	s.app.GET("/healthz", s.health)

	api := s.app.Group("/api")
	bearer := BearerMiddleware(s.opts.Sessions)

	courses := api.Group("/courses/:course/modules/:module", bearer)
	courses.POST("/add-video", s.addVideo)
	courses.PUT("/video", s.updateVideo)
	courses.DELETE("/video", s.removeVideo)
	courses.GET("/video-stream-token", s.streamToken)

	api.GET("/videos/stream", s.stream)

	api.GET("/deep-link/watch", s.deepLink, bearer)
	api.POST("/deep-link/login", s.deepLinkLogin)
}

func (s *server) Start() error {
	err := s.app.Start(s.opts.Address)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) health(c echo.Context) error {
	if s.opts.Ping != nil {
		if err := s.opts.Ping(c.Request().Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Package http serves the detectd API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/fyrsmithlabs/detectd/internal/logging"
	"github.com/fyrsmithlabs/detectd/internal/problem"
	"github.com/fyrsmithlabs/detectd/internal/telemetry"
	"github.com/fyrsmithlabs/detectd/pkg/circuit"
	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/fyrsmithlabs/detectd/pkg/fragment"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for detectd.
type Server struct {
	echo    *echo.Echo
	svc     *detect.Service
	tel     *telemetry.Telemetry
	logger  *logging.Logger
	config  *Config
	version string
}

// Config holds HTTP server configuration.
type Config struct {
	Host      string
	Port      int
	BodyLimit string // echo size notation, e.g. "4M"
	Version   string
}

// NewServer creates a new HTTP server. tel may be nil.
func NewServer(svc *detect.Service, tel *telemetry.Telemetry, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("detect service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 9191}
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "4M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	e.Use(NewHTTPMetrics(tel.Meter(httpInstrumentationName), logger.Underlying()).Middleware())

	s := &Server{
		echo:    e,
		svc:     svc,
		tel:     tel,
		logger:  logger,
		config:  cfg,
		version: cfg.Version,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/fragments", s.handleFragments)
	v1.POST("/annotate", s.handleAnnotate)
	v1.POST("/cover", s.handleCover)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.version, Telemetry: "disabled"}
	h := s.tel.Health()
	switch {
	case h.Degraded:
		resp.Telemetry = "degraded"
		resp.Problems = h.Problems
	case h.Enabled:
		resp.Telemetry = "ok"
	}
	return c.JSON(http.StatusOK, resp)
}

// readCircuit accepts either a CircuitRequest JSON body or a raw circuit.
func (s *Server) readCircuit(c echo.Context) (*circuit.Circuit, error) {
	ctx := c.Request().Context()
	ct := c.Request().Header.Get(echo.HeaderContentType)

	if strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		var req CircuitRequest
		if err := c.Bind(&req); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Circuit) == "" {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "circuit field is required")
		}
		return s.svc.Parse(ctx, strings.NewReader(req.Circuit))
	}
	return s.svc.Parse(ctx, c.Request().Body)
}

func (s *Server) handleFragments(c echo.Context) error {
	circ, err := s.readCircuit(c)
	if err != nil {
		return err
	}
	tree, err := s.svc.Fragments(c.Request().Context(), circ)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, FragmentsResponse{
		Fragments: fragment.Count(tree.Nodes),
		Nodes:     tree.Summary,
		Warnings:  tree.Messages,
	})
}

func (s *Server) handleAnnotate(c echo.Context) error {
	circ, err := s.readCircuit(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Annotate(c.Request().Context(), circ)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewAnnotateResponse(res))
}

func (s *Server) handleCover(c echo.Context) error {
	format := problem.FormatJSON
	switch ct := c.Request().Header.Get(echo.HeaderContentType); {
	case strings.Contains(ct, "yaml"):
		format = problem.FormatYAML
	case strings.Contains(ct, "toml"):
		format = problem.FormatTOML
	}

	p, err := problem.Decode(c.Request().Body, format)
	if err != nil {
		if detecterr.IsUserError(err) {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := s.svc.Cover(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// errorHandler maps detecterr kinds to 422 and keeps echo's status for
// everything else.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := ErrorResponse{Message: http.StatusText(status)}

	var he *echo.HTTPError
	switch {
	case detecterr.IsUserError(err):
		kind := detecterr.KindOf(err)
		status = http.StatusUnprocessableEntity
		body = ErrorResponse{Code: kind.Code(), Kind: kind.String(), Message: err.Error()}
	case errors.As(err, &he):
		status = he.Code
		body.Message = fmt.Sprint(he.Message)
		if status == http.StatusRequestEntityTooLarge {
			body.Message = "request body too large"
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

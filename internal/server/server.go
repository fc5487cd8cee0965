// Package server exposes runs over HTTP so clients can start a run and answer
// its interrupts asynchronously.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/internal/workflow"
	"github.com/rahul/quill/pkg/config"
)

// Runs is the run lifecycle the API drives. *session.Manager implements it.
type Runs interface {
	StartRun(ctx context.Context, chatID string, in workflow.Input) (*store.Record, error)
	ResumeRun(ctx context.Context, id, token, reply string) (*store.Record, error)
	Get(ctx context.Context, id string) (*store.Record, error)
	Discard(ctx context.Context, id string, notAfter time.Time) (*store.Record, error)
}

type Server struct {
	echo   *echo.Echo
	runs   Runs
	logger *observability.Logger
	addr   string
}

// NewServer creates the HTTP API. gatherer backs /metrics and may be nil.
func NewServer(runs Runs, gatherer prometheus.Gatherer, logger *observability.Logger, cfg config.ServerConfig) (*Server, error) {
	if runs == nil {
		return nil, fmt.Errorf("run service cannot be nil")
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		runs:   runs,
		logger: logger,
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	s.registerRoutes(gatherer)
	return s, nil
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleStart)
	v1.GET("/runs/:id", s.handleGet)
	v1.POST("/runs/:id/resume", s.handleResume)
	v1.DELETE("/runs/:id", s.handleDiscard)
}

type HealthResponse struct {
	Status string `json:"status"`
}

// StartRequest is the body of POST /api/v1/runs.
type StartRequest struct {
	ChatID        string             `json:"chat_id,omitempty"`
	Request       string             `json:"request"`
	PriorMessages []workflow.Message `json:"prior_messages,omitempty"`
}

// ResumeRequest is the body of POST /api/v1/runs/:id/resume. An empty token
// answers whatever interrupt is pending.
type ResumeRequest struct {
	Token string `json:"token,omitempty"`
	Reply string `json:"reply"`
}

// RunView is the API representation of a run.
type RunView struct {
	ID        string                 `json:"id"`
	Phase     workflow.Phase         `json:"phase"`
	Status    store.Status           `json:"status"`
	Interrupt *workflow.Interrupt    `json:"interrupt,omitempty"`
	Content   string                 `json:"content,omitempty"`
	Messages  []workflow.Message     `json:"messages,omitempty"`
	Commit    *workflow.CommitRecord `json:"commit,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func viewOf(rec *store.Record) RunView {
	run := rec.Run
	v := RunView{
		ID:     run.ID,
		Phase:  run.Phase,
		Status: rec.Status,
		Commit: run.Commit,
		Error:  rec.Error,
	}
	if rec.Status == store.StatusSuspended {
		v.Interrupt = run.Pending
	}
	if run.Done() {
		res := run.Result()
		v.Content = res.Content
		v.Messages = res.Messages
	}
	return v
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStart(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid start request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Request == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request field is required")
	}

	rec, err := s.runs.StartRun(c.Request().Context(), req.ChatID, workflow.Input{
		PriorMessages: req.PriorMessages,
		Request:       req.Request,
	})
	if rec == nil {
		return s.runError(err)
	}
	// a failed run is still a run; its error is in the view
	return c.JSON(http.StatusCreated, viewOf(rec))
}

func (s *Server) handleGet(c echo.Context) error {
	rec, err := s.runs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.runError(err)
	}
	return c.JSON(http.StatusOK, viewOf(rec))
}

func (s *Server) handleResume(c echo.Context) error {
	var req ResumeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid resume request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rec, err := s.runs.ResumeRun(c.Request().Context(), c.Param("id"), req.Token, req.Reply)
	if err != nil && (rec == nil || isConflict(err)) {
		return s.runError(err)
	}
	return c.JSON(http.StatusOK, viewOf(rec))
}

func (s *Server) handleDiscard(c echo.Context) error {
	rec, err := s.runs.Discard(c.Request().Context(), c.Param("id"), time.Time{})
	if err != nil {
		return s.runError(err)
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusConflict, "run is not suspended")
	}
	return c.JSON(http.StatusOK, viewOf(rec))
}

func isConflict(err error) bool {
	return errors.Is(err, workflow.ErrNotSuspended) || errors.Is(err, workflow.ErrStaleResume)
}

func (s *Server) runError(err error) error {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	case isConflict(err):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		s.logger.Error("run request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

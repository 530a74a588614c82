// Package api exposes grading over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/engine"
	"github.com/abhisek/radgrade/internal/feedback"
	"github.com/abhisek/radgrade/internal/store"
)

// Grader is the part of the engine the API needs.
type Grader interface {
	Grade(ctx context.Context, sub engine.Submission) (*feedback.Report, error)
	ModelVersions() map[string]string
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server serves the assessment and case endpoints.
type Server struct {
	grader       Grader
	cases        store.CaseRepo
	vocabVersion string
	opts         Options
	log          *slog.Logger
}

// New creates a Server. A nil logger selects slog.Default.
func New(g Grader, cases store.CaseRepo, vocabVersion string, opts Options, log *slog.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{grader: g, cases: cases, vocabVersion: vocabVersion, opts: opts, log: log}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(
		requestLogger(s.log),
		gin.Recovery(),
		limitBodySize(s.opts.MaxBodyBytes),
	)
	if len(s.opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: s.opts.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/healthz", s.health)

	v1 := router.Group("/v1")
	v1.POST("/assessments", s.assess)
	v1.GET("/cases", s.listCases)
	v1.GET("/cases/:id", s.getCase)

	return router
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

type assessmentRequest struct {
	CaseID     string `json:"caseId"`
	ReportText string `json:"reportText"`
	ImageRef   string `json:"imageRef"`
}

type errorResponse struct {
	Code    engine.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) assess(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: engine.CodeInvalidInput, Message: "invalid payload"})
		return
	}

	report, err := s.grader.Grade(c.Request.Context(), engine.Submission{
		CaseID:     req.CaseID,
		ReportText: req.ReportText,
		ImageRef:   req.ImageRef,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) listCases(c *gin.Context) {
	cases, err := s.cases.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if cases == nil {
		cases = []clinical.Case{}
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

func (s *Server) getCase(c *gin.Context) {
	cs, err := s.cases.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":            "ok",
		"vocabularyVersion": s.vocabVersion,
		"modelVersions":     s.grader.ModelVersions(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	n, err := s.cases.Count(ctx)
	if err != nil {
		body["status"] = "degraded"
		body["store"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["casesLoaded"] = n
	c.JSON(http.StatusOK, body)
}

// fail writes err as {code, message}. Engine errors keep their code;
// store lookups are mapped; anything else is internal.
func (s *Server) fail(c *gin.Context, err error) {
	var ee *engine.Error
	switch {
	case errors.As(err, &ee):
	case errors.Is(err, store.ErrCaseNotFound):
		ee = &engine.Error{Code: engine.CodeCaseNotFound, Message: "case not found"}
	case errors.Is(err, context.DeadlineExceeded):
		ee = &engine.Error{Code: engine.CodeTimeout, Message: "deadline exceeded"}
	default:
		ee = &engine.Error{Code: engine.CodeStoreUnavailable, Message: "case store unavailable"}
	}

	status := ee.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "code", ee.Code, "error", err)
	}
	c.JSON(status, errorResponse{Code: ee.Code, Message: ee.Message})
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

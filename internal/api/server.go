// Package api exposes the admin HTTP surface: health, metrics, source and
// ledger views, and on-demand runs.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/david/anansi/internal/auth"
	"github.com/david/anansi/internal/ingest"
	"github.com/david/anansi/internal/ledger"
	"github.com/david/anansi/internal/logger"
	"github.com/david/anansi/internal/pipeline"
)

const defaultRunTimeout = 15 * time.Minute

// Job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// RunFunc performs one pipeline pass.
type RunFunc func(ctx context.Context) (pipeline.Report, error)

// Config carries the server collaborators. Gatherer defaults to the
// Prometheus default gatherer.
type Config struct {
	Auth       *auth.Service
	Run        RunFunc
	Ledger     ledger.Store
	Registry   *ingest.Registry
	Gatherer   prometheus.Gatherer
	Log        logger.Logger
	RunTimeout time.Duration
}

type Server struct {
	Echo *echo.Echo

	auth       *auth.Service
	run        RunFunc
	ledger     ledger.Store
	registry   *ingest.Registry
	log        logger.Logger
	runTimeout time.Duration

	// Background job tracking
	jobMu   sync.Mutex
	lastJob *backgroundJob
	jobDone sync.WaitGroup
}

type backgroundJob struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at,omitempty"`
	Result    *pipeline.Report `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	authSvc := cfg.Auth
	if authSvc == nil {
		authSvc = auth.NewService("", "")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("HTTP request",
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency))
			return nil
		},
	}))

	s := &Server{
		Echo:       e,
		auth:       authSvc,
		run:        cfg.Run,
		ledger:     cfg.Ledger,
		registry:   cfg.Registry,
		log:        log,
		runTimeout: timeout,
	}
	s.routes(gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.Echo.Group("/api/v1")
	api.GET("/sources", s.handleGetSources)

	admin := api.Group("")
	admin.Use(s.auth.Middleware)
	admin.GET("/ledger", s.handleLedgerStats)
	admin.POST("/run", s.handleTriggerRun)
	admin.GET("/jobs/:id", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type sourceView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Strategy        string `json:"strategy"`
	BaseURL         string `json:"base_url,omitempty"`
	Enabled         bool   `json:"enabled"`
	SinceDays       int    `json:"since_days"`
	OGPOnly         bool   `json:"ogp_only"`
	MaxItems        int    `json:"max_items"`
	RequireDeadline bool   `json:"require_deadline"`
}

func (s *Server) handleGetSources(c echo.Context) error {
	views := []sourceView{}
	if s.registry != nil {
		for _, src := range s.registry.Sources {
			views = append(views, sourceView{
				ID:              src.ID,
				Name:            src.Name,
				Strategy:        src.Strategy,
				BaseURL:         src.BaseURL,
				Enabled:         !src.Disabled,
				SinceDays:       src.SinceDays,
				OGPOnly:         src.OGPOnly,
				MaxItems:        src.MaxItems,
				RequireDeadline: src.RequireDeadline,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"sources": views})
}

func (s *Server) handleLedgerStats(c echo.Context) error {
	if s.ledger == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "ledger not configured"})
	}
	seen, err := s.ledger.Load(c.Request().Context())
	resp := map[string]interface{}{"count": len(seen)}
	switch {
	case errors.Is(err, ledger.ErrCorrupt):
		resp["warning"] = err.Error()
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTriggerRun(c echo.Context) error {
	if s.run == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "runner not configured"})
	}

	s.jobMu.Lock()
	if s.lastJob != nil && s.lastJob.Status == JobRunning {
		id := s.lastJob.ID
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "a run is already in progress", "job_id": id})
	}
	job := &backgroundJob{
		ID:        uuid.New().String()[:8],
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	s.lastJob = job
	s.jobDone.Add(1)
	s.jobMu.Unlock()

	go s.runJob(job)

	return c.JSON(http.StatusAccepted, map[string]string{"job_id": job.ID, "status": JobRunning})
}

func (s *Server) runJob(job *backgroundJob) {
	defer s.jobDone.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	log := s.log.With(logger.String("job_id", job.ID))
	log.Info("Background run started")

	rep, err := s.run(ctx)

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job.EndedAt = time.Now()
	job.Result = &rep
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		log.Warn("Background run failed", logger.Err(err))
		return
	}
	job.Status = JobCompleted
	log.Info("Background run finished", logger.String("outcome", string(rep.Outcome)))
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.lastJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

// Start serves on the given port until the server is shut down.
func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// Shutdown stops accepting requests and waits for a background run to end.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.jobDone.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/xraph/taskq/store"
)

// DefaultLimit is the page size of list endpoints without a limit.
const DefaultLimit = 100

// Server wires the HTTP handlers and the background pulse sweeper.
type Server struct {
	store  store.Store
	logger *slog.Logger

	limit         int
	sweepInterval time.Duration
	pulseTimeout  time.Duration

	engine *gin.Engine
	once   sync.Once
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDefaultLimit sets the page size used when a request has no limit.
func WithDefaultLimit(n int) Option {
	return func(s *Server) {
		s.limit = n
	}
}

// WithSweeper enables the background sweep: every interval, running
// tasks whose pulse is older than timeout are failed. A non-positive
// interval or timeout disables it.
func WithSweeper(interval, timeout time.Duration) Option {
	return func(s *Server) {
		s.sweepInterval = interval
		s.pulseTimeout = timeout
	}
}

// New creates a Server over st.
func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		logger: slog.Default(),
		limit:  DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully assembled http.Handler with all routes.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() {
		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.Use(gin.Recovery(), cors.Default(), requestLogger(s.logger))
		s.RegisterRoutes(r)
		s.engine = r
	})
	return s.engine
}

// RegisterRoutes registers all taskq routes on r.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("", s.banner)

	jobs := g.Group("/jobs")
	{
		jobs.GET("", s.listJobs)
		jobs.POST("", s.createJob)
		jobs.GET("/:job_id", s.getJob)
		jobs.PUT("/:job_id", s.updateJob)
		jobs.DELETE("/:job_id", s.deleteJob)
		jobs.GET("/:job_id/tasks", s.listJobTasks)
		jobs.POST("/:job_id/tasks", s.addJobTasks)
		jobs.GET("/:job_id/state_kwargs", s.listStateKWArgs)
		jobs.POST("/:job_id/state_kwargs", s.addStateKWArg)
		jobs.GET("/:job_id/next_task", s.nextTask)
		jobs.GET("/:job_id/count_pending_tasks_below_level", s.countPendingBelowLevel)
	}

	tasks := g.Group("/tasks")
	{
		tasks.GET("", s.listTasks)
		tasks.POST("", s.addTasks)
		tasks.GET("/:task_id", s.getTask)
		tasks.PUT("/:task_id", s.updateTask)
		tasks.DELETE("/:task_id", s.deleteTask)
		tasks.POST("/:task_id/start", s.setStartTime)
		tasks.POST("/:task_id/status", s.setStatus)
		tasks.POST("/:task_id/result", s.setResult)
	}

	objects := g.Group("/objects")
	{
		objects.POST("", s.createObject)
		objects.GET("/:object_id", s.getObject)
		objects.DELETE("/:object_id", s.deleteObject)
	}

	g.DELETE("/state_kwargs/:state_kwargs_id", s.deleteStateKWArg)
	g.POST("/fail_pulse_timeout", s.failPulseTimeout)
	g.POST("/keep_latest_jobs", s.keepLatestJobs)
	g.GET("/status/jobs", s.jobsStatus)
	g.GET("/status/tasks", s.tasksStatus)
}

// ListenAndServe serves on addr and runs the sweeper until ctx is done,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		s.RunSweeper(sweepCtx)
	}()
	defer func() {
		stopSweep()
		<-sweepDone
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", slog.String("addr", addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("api server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// RunSweeper fails timed-out tasks every sweep interval until ctx is done.
// It returns immediately when the sweeper is disabled.
func (s *Server) RunSweeper(ctx context.Context) {
	if s.sweepInterval <= 0 || s.pulseTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.store.FailPulseTimeoutTasks(ctx, s.pulseTimeout); err != nil && ctx.Err() == nil {
				s.logger.Error("pulse sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("api request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

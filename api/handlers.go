package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/store/remote"
	"github.com/xraph/taskq/task"
)

func (s *Server) banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":        "taskq",
		"schema_version": taskq.SchemaVersion,
	})
}

// ── jobs ─────────────────────────────────────────────────────────

func (s *Server) listJobs(c *gin.Context) {
	limit, offset, ok := s.page(c)
	if !ok {
		return
	}
	jobs, err := s.store.ListJobs(c.Request.Context(), job.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(jobs))
}

func (s *Server) createJob(c *gin.Context) {
	var j job.Job
	if !bind(c, &j) {
		return
	}
	j.ID = 0
	if err := s.store.CreateJob(c.Request.Context(), &j); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, &j)
}

func (s *Server) getJob(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	j, err := s.store.GetJob(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (s *Server) updateJob(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var j job.Job
	if !bind(c, &j) {
		return
	}
	j.ID = id
	if err := s.store.UpdateJob(c.Request.Context(), &j); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &j)
}

func (s *Server) deleteJob(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	if err := s.store.DeleteJob(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) keepLatestJobs(c *gin.Context) {
	var req remote.KeepLatestRequest
	if !bind(c, &req) {
		return
	}
	n, err := s.store.KeepLatestJobs(c.Request.Context(), req.Max)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.CountResponse{Count: n})
}

func (s *Server) jobsStatus(c *gin.Context) {
	limit, offset, ok := s.page(c)
	if !ok {
		return
	}
	out, err := s.store.JobsStatus(c.Request.Context(), job.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

// ── tasks ────────────────────────────────────────────────────────

func (s *Server) listTasks(c *gin.Context) {
	opts, ok := s.taskListOpts(c)
	if !ok {
		return
	}
	if raw := c.Query("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, fmt.Sprintf("invalid job_id %q", raw))
			return
		}
		opts.JobID = &id
	}
	s.writeTasks(c, opts)
}

func (s *Server) listJobTasks(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	opts, ok := s.taskListOpts(c)
	if !ok {
		return
	}
	opts.JobID = &id
	s.writeTasks(c, opts)
}

func (s *Server) taskListOpts(c *gin.Context) (task.ListOpts, bool) {
	limit, offset, ok := s.page(c)
	if !ok {
		return task.ListOpts{}, false
	}
	opts := task.ListOpts{Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		st, err := task.ParseStatus(raw)
		if err != nil {
			s.fail(c, err)
			return task.ListOpts{}, false
		}
		opts.Status = st
	}
	return opts, true
}

func (s *Server) writeTasks(c *gin.Context, opts task.ListOpts) {
	tasks, err := s.store.ListTasks(c.Request.Context(), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(tasks))
}

func (s *Server) addTasks(c *gin.Context) {
	var tasks []*task.Task
	if !bind(c, &tasks) {
		return
	}
	s.insertTasks(c, tasks)
}

func (s *Server) addJobTasks(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var tasks []*task.Task
	if !bind(c, &tasks) {
		return
	}
	for _, t := range tasks {
		t.JobID = id
	}
	s.insertTasks(c, tasks)
}

func (s *Server) insertTasks(c *gin.Context, tasks []*task.Task) {
	for _, t := range tasks {
		if t == nil {
			badRequest(c, "null task in request")
			return
		}
		t.ID = 0
	}
	if err := s.store.AddTasks(c.Request.Context(), tasks...); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, nonNil(tasks))
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	t, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	var t task.Task
	if !bind(c, &t) {
		return
	}
	t.ID = id
	if err := s.store.UpdateTask(c.Request.Context(), &t); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &t)
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) nextTask(c *gin.Context) {
	scope := task.Scope{}
	if raw := c.Param("job_id"); raw != remote.AllJobs && raw != "0" {
		id, ok := pathID(c, "job_id")
		if !ok {
			return
		}
		scope.JobID = &id
	}
	var ok bool
	if scope.Levels.Start, ok = queryFloat(c, "level_start"); !ok {
		return
	}
	if scope.Levels.Stop, ok = queryFloat(c, "level_stop"); !ok {
		return
	}

	action, t, err := s.store.TakeNextTask(c.Request.Context(), scope)
	if err != nil {
		s.fail(c, err)
		return
	}
	if t != nil {
		s.logger.Debug("task leased over http",
			slog.Int64("task_id", t.ID),
			slog.String("client", c.ClientIP()),
		)
	}
	c.JSON(http.StatusOK, remote.NextTaskResponse{Action: action, Task: t})
}

func (s *Server) countPendingBelowLevel(c *gin.Context) {
	var jobID *int64
	if raw := c.Param("job_id"); raw != remote.AllJobs && raw != "0" {
		id, ok := pathID(c, "job_id")
		if !ok {
			return
		}
		jobID = &id
	}
	level, ok := queryFloat(c, "level")
	if !ok {
		return
	}
	if level == nil {
		badRequest(c, "level is required")
		return
	}
	n, err := s.store.CountPendingTasksBelowLevel(c.Request.Context(), jobID, *level)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.CountResponse{Count: n})
}

func (s *Server) setStartTime(c *gin.Context) {
	id, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	var req remote.TimeRequest
	if !bind(c, &req) {
		return
	}
	if req.Time.IsZero() {
		req.Time = time.Now()
	}
	if err := s.store.SetTaskStartTime(c.Request.Context(), id, req.Time); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setStatus(c *gin.Context) {
	id, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	var req remote.StatusRequest
	if !bind(c, &req) {
		return
	}
	if req.Time.IsZero() {
		req.Time = time.Now()
	}
	if err := s.store.SetTaskStatus(c.Request.Context(), id, req.Status, req.Time); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) setResult(c *gin.Context) {
	id, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	var o object.Object
	if !bind(c, &o) {
		return
	}
	o.ID = 0
	if err := s.store.SetTaskResult(c.Request.Context(), id, &o); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, &o)
}

func (s *Server) failPulseTimeout(c *gin.Context) {
	var req remote.SweepRequest
	if !bind(c, &req) {
		return
	}
	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	n, err := s.store.FailPulseTimeoutTasks(c.Request.Context(), timeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, remote.CountResponse{Count: n})
}

func (s *Server) tasksStatus(c *gin.Context) {
	var jobID *int64
	if raw := c.Query("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, fmt.Sprintf("invalid job_id %q", raw))
			return
		}
		jobID = &id
	}
	out, err := s.store.TasksStatus(c.Request.Context(), jobID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

// ── objects ──────────────────────────────────────────────────────

func (s *Server) createObject(c *gin.Context) {
	var o object.Object
	if !bind(c, &o) {
		return
	}
	o.ID = 0
	if err := s.store.CreateObject(c.Request.Context(), &o); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, &o)
}

func (s *Server) getObject(c *gin.Context) {
	id, ok := pathID(c, "object_id")
	if !ok {
		return
	}
	o, err := s.store.GetObject(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) deleteObject(c *gin.Context) {
	id, ok := pathID(c, "object_id")
	if !ok {
		return
	}
	if err := s.store.DeleteObject(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ── state kwargs ─────────────────────────────────────────────────

func (s *Server) listStateKWArgs(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	out, err := s.store.ListStateKWArgs(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(out))
}

func (s *Server) addStateKWArg(c *gin.Context) {
	id, ok := pathID(c, "job_id")
	if !ok {
		return
	}
	var kw statekw.StateKWArg
	if !bind(c, &kw) {
		return
	}
	kw.ID, kw.JobID = 0, id
	if err := s.store.AddStateKWArg(c.Request.Context(), &kw); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, &kw)
}

func (s *Server) deleteStateKWArg(c *gin.Context) {
	id, ok := pathID(c, "state_kwargs_id")
	if !ok {
		return
	}
	if err := s.store.DeleteStateKWArg(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ── helpers ──────────────────────────────────────────────────────

// fail writes err with the status its sentinel maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := remote.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, remote.ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, remote.ErrorResponse{Error: msg, Code: remote.CodeBadRequest})
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid request payload: "+err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

func queryFloat(c *gin.Context, name string) (*float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		badRequest(c, fmt.Sprintf("invalid %s %q", name, raw))
		return nil, false
	}
	return &f, true
}

func (s *Server) page(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = s.limit, 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, fmt.Sprintf("invalid limit %q", raw))
			return 0, 0, false
		}
		limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, fmt.Sprintf("invalid offset %q", raw))
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

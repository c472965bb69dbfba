package remote

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/task"
)

// Request and response bodies shared by the client and the api server.

// NextTaskResponse is returned by GET /api/jobs/{job_id}/next_task.
type NextTaskResponse struct {
	Action task.Action `json:"action"`
	Task   *task.Task  `json:"task"`
}

// CountResponse carries a row count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// TimeRequest is the body of POST /api/tasks/{id}/start.
type TimeRequest struct {
	Time time.Time `json:"time"`
}

// StatusRequest is the body of POST /api/tasks/{id}/status.
type StatusRequest struct {
	Status task.Status `json:"status"`
	Time   time.Time   `json:"time"`
}

// SweepRequest is the body of POST /api/fail_pulse_timeout.
type SweepRequest struct {
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// KeepLatestRequest is the body of POST /api/keep_latest_jobs.
type KeepLatestRequest struct {
	Max int `json:"max"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AllJobs is the job_id path segment that leaves leasing unscoped.
const AllJobs = "_"

type errorCode struct {
	err    error
	status int
	code   string
}

var errorCodes = []errorCode{
	{taskq.ErrJobNotFound, http.StatusNotFound, "job_not_found"},
	{taskq.ErrTaskNotFound, http.StatusNotFound, "task_not_found"},
	{taskq.ErrObjectNotFound, http.StatusNotFound, "object_not_found"},
	{taskq.ErrStateKWNotFound, http.StatusNotFound, "state_kwarg_not_found"},
	{taskq.ErrTaskNotRunning, http.StatusConflict, "task_not_running"},
	{taskq.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{taskq.ErrUnsupportedStatus, http.StatusUnprocessableEntity, "unsupported_status"},
	{taskq.ErrInvalidTask, http.StatusBadRequest, "invalid_task"},
	{taskq.ErrUnknownStatus, http.StatusBadRequest, "unknown_status"},
	{taskq.ErrInvalidLevel, http.StatusBadRequest, "invalid_level"},
	{taskq.ErrSchemaVersionMismatch, http.StatusInternalServerError, "schema_version_mismatch"},
}

// CodeBadRequest marks malformed requests that match no sentinel.
const CodeBadRequest = "bad_request"

// ErrorStatus maps err to an HTTP status and a stable error code.
func ErrorStatus(err error) (int, string) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.status, ec.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// errorForCode returns the sentinel for a code, or ErrRemoteRequestRejected.
func errorForCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return taskq.ErrRemoteRequestRejected
}

// Package api serves a taskq store over HTTP with gin. Remote workers use
// it through store/remote; the leasing transaction and the pulse sweep run
// next to the database, in this process.
//
// Routes live under /api:
//
//	GET    /api                                       service banner
//	GET    /api/jobs, POST /api/jobs                  list, create
//	GET    /api/jobs/:job_id  PUT  DELETE
//	GET    /api/jobs/:job_id/tasks, POST             tasks of a job
//	GET    /api/jobs/:job_id/state_kwargs, POST
//	GET    /api/jobs/:job_id/next_task                lease ("_" for all jobs)
//	GET    /api/jobs/:job_id/count_pending_tasks_below_level
//	GET    /api/tasks, POST /api/tasks
//	GET    /api/tasks/:task_id  PUT  DELETE
//	POST   /api/tasks/:task_id/start | status | result
//	POST   /api/objects, GET|DELETE /api/objects/:object_id
//	DELETE /api/state_kwargs/:state_kwargs_id
//	POST   /api/fail_pulse_timeout
//	POST   /api/keep_latest_jobs
//	GET    /api/status/jobs, GET /api/status/tasks
package api

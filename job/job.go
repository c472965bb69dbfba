package job

// Job is a named collection of tasks.
type Job struct {
	ID          int64   `json:"job_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Priority    float64 `json:"priority"`
}

// Summary is one row of the jobs status view: a job and the number of its
// tasks in each status.
type Summary struct {
	Job
	Tasks   int64 `json:"tasks"`
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

package sqlstore

import "github.com/xraph/taskq/store/dialect"

// Column lists are declared once here. Every query selects and scans them
// in this order.
var (
	objectsTable = dialect.Table{
		Name: "objects",
		Columns: []dialect.Column{
			{Name: "object_id", Kind: dialect.KindPrimaryKey},
			{Name: "serializer", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "deserializer", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "blob", Kind: dialect.KindBytes},
		},
	}

	jobsTable = dialect.Table{
		Name: "jobs",
		Columns: []dialect.Column{
			{Name: "job_id", Kind: dialect.KindPrimaryKey},
			{Name: "name", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "description", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "priority", Kind: dialect.KindReal, NotNull: true, Default: "0"},
		},
	}

	tasksTable = dialect.Table{
		Name: "tasks",
		Columns: []dialect.Column{
			{Name: "task_id", Kind: dialect.KindPrimaryKey},
			{Name: "name", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "description", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "level", Kind: dialect.KindReal, NotNull: true, Default: "0"},
			{Name: "entrypoint", Kind: dialect.KindText, NotNull: true},
			{Name: "args_id", Kind: dialect.KindInt, References: "objects(object_id)", OnDelete: "SET NULL"},
			{Name: "kwargs_id", Kind: dialect.KindInt, References: "objects(object_id)", OnDelete: "SET NULL"},
			{Name: "ret_id", Kind: dialect.KindInt, References: "objects(object_id)", OnDelete: "SET NULL"},
			{Name: "status", Kind: dialect.KindText, NotNull: true, Default: "'pending'"},
			{Name: "take_time", Kind: dialect.KindTime},
			{Name: "start_time", Kind: dialect.KindTime},
			{Name: "done_time", Kind: dialect.KindTime},
			{Name: "pulse_time", Kind: dialect.KindTime},
			{Name: "job_id", Kind: dialect.KindInt, NotNull: true, References: "jobs(job_id)", OnDelete: "CASCADE"},
		},
	}

	stateKWArgsTable = dialect.Table{
		Name: "state_kwargs",
		Columns: []dialect.Column{
			{Name: "state_kwargs_id", Kind: dialect.KindPrimaryKey},
			{Name: "name", Kind: dialect.KindText, NotNull: true},
			{Name: "entrypoint", Kind: dialect.KindText, NotNull: true},
			{Name: "args_id", Kind: dialect.KindInt, References: "objects(object_id)", OnDelete: "SET NULL"},
			{Name: "kwargs_id", Kind: dialect.KindInt, References: "objects(object_id)", OnDelete: "SET NULL"},
			{Name: "description", Kind: dialect.KindText, NotNull: true, Default: "''"},
			{Name: "job_id", Kind: dialect.KindInt, NotNull: true, References: "jobs(job_id)", OnDelete: "CASCADE"},
		},
		Constraints: []string{"UNIQUE (job_id, name)"},
	}

	schemaVersionTable = dialect.Table{
		Name: "schema_version",
		Columns: []dialect.Column{
			{Name: "version", Kind: dialect.KindInt, NotNull: true},
		},
		Constraints: []string{"PRIMARY KEY (version)"},
	}

	// Creation order respects foreign keys.
	tables = []dialect.Table{objectsTable, jobsTable, tasksTable, stateKWArgsTable, schemaVersionTable}

	indexes = []string{
		"CREATE INDEX IF NOT EXISTS idx_tasks_lease ON tasks (job_id, status, level)",
		"CREATE INDEX IF NOT EXISTS idx_tasks_pulse ON tasks (status, pulse_time)",
		"CREATE INDEX IF NOT EXISTS idx_state_kwargs_job ON state_kwargs (job_id)",
	}
)

var (
	objectColumns  = objectsTable.ColumnNames("")
	jobColumns     = jobsTable.ColumnNames("")
	taskColumns    = tasksTable.ColumnNames("")
	stateKWColumns = stateKWArgsTable.ColumnNames("")
)

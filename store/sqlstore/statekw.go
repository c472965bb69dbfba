package sqlstore

import (
	"context"
	"database/sql"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/statekw"
)

// AddStateKWArg persists a state kwarg definition and sets its ID.
func (s *Store) AddStateKWArg(ctx context.Context, kw *statekw.StateKWArg) error {
	query := s.rebind(`INSERT INTO state_kwargs (name, entrypoint, args_id, kwargs_id, description, job_id)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING state_kwargs_id`)
	err := s.db.QueryRowContext(ctx, query,
		kw.Name, kw.Entrypoint, nullInt(kw.ArgsID), nullInt(kw.KwargsID), kw.Description, kw.JobID,
	).Scan(&kw.ID)
	if err != nil {
		if s.d.IsForeignKeyViolation(err) {
			return taskq.ErrJobNotFound
		}
		return s.wrap("add state kwarg", err)
	}
	return nil
}

// ListStateKWArgs returns the definitions of one job.
func (s *Store) ListStateKWArgs(ctx context.Context, jobID int64) ([]*statekw.StateKWArg, error) {
	query := s.rebind("SELECT " + stateKWColumns + " FROM state_kwargs WHERE job_id = ? ORDER BY state_kwargs_id")
	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, s.wrap("list state kwargs", err)
	}
	defer rows.Close()

	var out []*statekw.StateKWArg
	for rows.Next() {
		var (
			kw             statekw.StateKWArg
			args, kwargsID sql.NullInt64
		)
		if err := rows.Scan(&kw.ID, &kw.Name, &kw.Entrypoint, &args, &kwargsID, &kw.Description, &kw.JobID); err != nil {
			return nil, s.wrap("scan state kwarg", err)
		}
		kw.ArgsID = ptrInt(args)
		kw.KwargsID = ptrInt(kwargsID)
		out = append(out, &kw)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list state kwargs", err)
	}
	return out, nil
}

// DeleteStateKWArg removes a definition.
func (s *Store) DeleteStateKWArg(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM state_kwargs WHERE state_kwargs_id = ?"), id)
	if err != nil {
		return s.wrap("delete state kwarg", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskq.ErrStateKWNotFound
	}
	return nil
}

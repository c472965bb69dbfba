package sqlstore

import (
	"context"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
)

// CreateObject stores o and sets its ID.
func (s *Store) CreateObject(ctx context.Context, o *object.Object) error {
	if err := s.insertObject(ctx, s.db, o); err != nil {
		return s.wrap("create object", err)
	}
	return nil
}

func (s *Store) insertObject(ctx context.Context, q querier, o *object.Object) error {
	query := s.rebind("INSERT INTO objects (serializer, deserializer, blob) VALUES (?, ?, ?) RETURNING object_id")
	return q.QueryRowContext(ctx, query, o.Serializer, o.Deserializer, o.Blob).Scan(&o.ID)
}

// GetObject loads an object by ID.
func (s *Store) GetObject(ctx context.Context, objectID int64) (*object.Object, error) {
	query := s.rebind("SELECT " + objectColumns + " FROM objects WHERE object_id = ?")
	o := &object.Object{}
	err := s.db.QueryRowContext(ctx, query, objectID).Scan(&o.ID, &o.Serializer, &o.Deserializer, &o.Blob)
	if err != nil {
		if isNoRows(err) {
			return nil, taskq.ErrObjectNotFound
		}
		return nil, s.wrap("get object", err)
	}
	return o, nil
}

// DeleteObject removes an object. References to it are nulled.
func (s *Store) DeleteObject(ctx context.Context, objectID int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM objects WHERE object_id = ?"), objectID)
	if err != nil {
		return s.wrap("delete object", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskq.ErrObjectNotFound
	}
	return nil
}

package statekw

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/task"
)

type key struct {
	jobID int64
	name  string
}

// cell holds one initialised value. Initialisation is serialised per cell;
// a failed attempt leaves the cell empty so the next demand retries.
type cell struct {
	mu    sync.Mutex
	done  bool
	value any
}

// Cache resolves state kwargs for tasks, initialising each (job, name) at
// most once per process.
type Cache struct {
	store    Store
	objects  object.Store
	registry *task.Registry
	logger   *slog.Logger

	mu    sync.Mutex
	cells map[key]*cell
}

// NewCache creates a Cache backed by the given stores and registry.
func NewCache(store Store, objects object.Store, registry *task.Registry, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:    store,
		objects:  objects,
		registry: registry,
		logger:   logger,
		cells:    make(map[key]*cell),
	}
}

// Resolve returns the values of names for jobID, initialising any that
// are not cached yet. An empty names slice returns nil without touching
// the store.
func (c *Cache) Resolve(ctx context.Context, jobID int64, names []string) (map[string]any, error) {
	if len(names) == 0 {
		return nil, nil //nolint:nilnil // no state requested
	}

	values := make(map[string]any, len(names))
	var defs map[string]*StateKWArg
	for _, name := range names {
		cl := c.cell(jobID, name)
		cl.mu.Lock()
		if !cl.done {
			if defs == nil {
				var err error
				if defs, err = c.definitions(ctx, jobID); err != nil {
					cl.mu.Unlock()
					return nil, err
				}
			}
			v, err := c.initialise(ctx, jobID, name, defs[name])
			if err != nil {
				cl.mu.Unlock()
				return nil, err
			}
			cl.value, cl.done = v, true
		}
		values[name] = cl.value
		cl.mu.Unlock()
	}
	return values, nil
}

// Forget drops every cached value of a job.
func (c *Cache) Forget(jobID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.cells {
		if k.jobID == jobID {
			delete(c.cells, k)
		}
	}
}

func (c *Cache) cell(jobID int64, name string) *cell {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{jobID: jobID, name: name}
	cl, ok := c.cells[k]
	if !ok {
		cl = &cell{}
		c.cells[k] = cl
	}
	return cl
}

func (c *Cache) definitions(ctx context.Context, jobID int64) (map[string]*StateKWArg, error) {
	rows, err := c.store.ListStateKWArgs(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("statekw: list job %d: %w", jobID, err)
	}
	defs := make(map[string]*StateKWArg, len(rows))
	for _, r := range rows {
		defs[r.Name] = r
	}
	return defs, nil
}

func (c *Cache) initialise(ctx context.Context, jobID int64, name string, def *StateKWArg) (any, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: %q (job %d)", taskq.ErrStateKWUndefined, name, jobID)
	}
	init, err := c.registry.Initializer(def.Entrypoint)
	if err != nil {
		return nil, err
	}

	call := &task.Call{}
	if def.ArgsID != nil {
		if call.Args, err = c.objects.GetObject(ctx, *def.ArgsID); err != nil {
			return nil, fmt.Errorf("statekw: %q args: %w", name, err)
		}
	}
	if def.KwargsID != nil {
		if call.Kwargs, err = c.objects.GetObject(ctx, *def.KwargsID); err != nil {
			return nil, fmt.Errorf("statekw: %q kwargs: %w", name, err)
		}
	}

	v, err := init(ctx, call)
	if err != nil {
		return nil, fmt.Errorf("statekw: initialise %q: %w", name, err)
	}
	c.logger.Info("state kwarg initialised",
		slog.Int64("job_id", jobID),
		slog.String("name", name),
		slog.String("entrypoint", def.Entrypoint),
	)
	return v, nil
}

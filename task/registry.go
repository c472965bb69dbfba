package task

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
)

// Call carries the stored inputs of one entrypoint invocation.
type Call struct {
	// Task is the leased task. It is nil for state kwarg initializers.
	Task   *Task
	Args   *object.Object
	Kwargs *object.Object
}

// Decode decodes the args object and then the kwargs object into v.
func (c *Call) Decode(v any) error {
	if err := c.Args.Decode(v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	if err := c.Kwargs.Decode(v); err != nil {
		return fmt.Errorf("decode kwargs: %w", err)
	}
	return nil
}

// HandlerFunc is a type-erased entrypoint. A nil result means nothing is
// stored.
type HandlerFunc func(ctx context.Context, call *Call) (any, error)

// Entrypoint is a registered handler with its declared options.
type Entrypoint struct {
	Name    string
	Handler HandlerFunc
	Opts    Options
}

// Registry maps entrypoint names to handlers, and state kwarg initializer
// names to initializer functions. It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	entrypoints  map[string]*Entrypoint
	initializers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entrypoints:  make(map[string]*Entrypoint),
		initializers: make(map[string]HandlerFunc),
	}
}

// Register adds a type-erased entrypoint, replacing any previous one with
// the same name.
func (r *Registry) Register(e *Entrypoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entrypoints[e.Name] = e
}

// RegisterDefinition registers a typed definition. The handler is wrapped
// in a closure that decodes the call into T before calling it.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(&Entrypoint{
		Name: def.Name,
		Opts: def.Opts,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			var args T
			if err := call.Decode(&args); err != nil {
				return nil, fmt.Errorf("entrypoint %q: %w", def.Name, err)
			}
			return nil, def.Handler(ctx, args)
		},
	})
}

// RegisterResultDefinition registers a typed definition whose return value
// is stored as the task result.
func RegisterResultDefinition[T, R any](r *Registry, def *ResultDefinition[T, R]) {
	r.Register(&Entrypoint{
		Name: def.Name,
		Opts: def.Opts,
		Handler: func(ctx context.Context, call *Call) (any, error) {
			var args T
			if err := call.Decode(&args); err != nil {
				return nil, fmt.Errorf("entrypoint %q: %w", def.Name, err)
			}
			return def.Handler(ctx, args)
		},
	})
}

// RegisterInitializer registers a state kwarg initializer. The value it
// returns is shared by every task of the job that declares the kwarg.
func RegisterInitializer[T any](r *Registry, name string, init func(ctx context.Context, args T) (any, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initializers[name] = func(ctx context.Context, call *Call) (any, error) {
		var args T
		if err := call.Decode(&args); err != nil {
			return nil, fmt.Errorf("initializer %q: %w", name, err)
		}
		return init(ctx, args)
	}
}

// Get returns the entrypoint registered under name.
func (r *Registry) Get(name string) (*Entrypoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entrypoints[name]
	return e, ok
}

// Lookup is like Get but returns taskq.ErrUnknownEntrypoint for unknown
// names.
func (r *Registry) Lookup(name string) (*Entrypoint, error) {
	e, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", taskq.ErrUnknownEntrypoint, name)
	}
	return e, nil
}

// Initializer returns the state kwarg initializer registered under name.
func (r *Registry) Initializer(name string) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	init, ok := r.initializers[name]
	if !ok {
		return nil, fmt.Errorf("%w: initializer %q", taskq.ErrUnknownEntrypoint, name)
	}
	return init, nil
}

// Names returns all registered entrypoint names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entrypoints))
	for name := range r.entrypoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

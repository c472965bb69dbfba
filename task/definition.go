package task

import "context"

// Options configures an entrypoint definition.
type Options struct {
	// StateKWArgs names the job state kwargs the handler reads with State.
	// They are initialised before the handler runs.
	StateKWArgs []string

	// ResultCodec is the codec used to store a handler's return value.
	// Empty means the default codec.
	ResultCodec string
}

// DefinitionOption configures Options.
type DefinitionOption func(*Options)

// WithStateKWArgs declares the state kwargs the handler depends on.
func WithStateKWArgs(names ...string) DefinitionOption {
	return func(o *Options) {
		o.StateKWArgs = append(o.StateKWArgs, names...)
	}
}

// WithResultCodec sets the codec used to store the handler's return value.
func WithResultCodec(codec string) DefinitionOption {
	return func(o *Options) {
		o.ResultCodec = codec
	}
}

// Definition is a typed entrypoint with a handler function.
// T is the argument type decoded from the task's args and kwargs objects.
type Definition[T any] struct {
	// Name is the registry key tasks refer to in their entrypoint field.
	Name string

	// Handler processes the decoded arguments.
	Handler func(ctx context.Context, args T) error

	Opts Options
}

// NewDefinition creates a typed entrypoint definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, args T) error, opts ...DefinitionOption) *Definition[T] {
	def := &Definition[T]{Name: name, Handler: handler}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// ResultDefinition is a typed entrypoint whose return value is stored as
// the task's result object.
type ResultDefinition[T, R any] struct {
	Name    string
	Handler func(ctx context.Context, args T) (R, error)
	Opts    Options
}

// NewResultDefinition creates a typed entrypoint definition that returns a
// value.
func NewResultDefinition[T, R any](name string, handler func(ctx context.Context, args T) (R, error), opts ...DefinitionOption) *ResultDefinition[T, R] {
	def := &ResultDefinition[T, R]{Name: name, Handler: handler}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// Package object defines serialized payloads stored out of line from the
// tasks that reference them: task arguments, keyword arguments and return
// values. Each row records the codec that produced its bytes, so stored
// payloads stay self-describing even when different producers pick
// different encodings.
package object

import (
	"context"
	"fmt"
)

// Object is a serialized payload row.
type Object struct {
	ID           int64  `json:"object_id"`
	Serializer   string `json:"serializer"`
	Deserializer string `json:"deserializer"`
	Blob         []byte `json:"blob"`
}

// New encodes v with the named codec and returns an unsaved Object.
func New(codecName string, v any) (*Object, error) {
	c, err := Lookup(codecName)
	if err != nil {
		return nil, err
	}
	blob, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("object: encode with %s: %w", c.Name(), err)
	}
	return &Object{Serializer: c.Name(), Deserializer: c.Name(), Blob: blob}, nil
}

// MustNew is like New but panics on error. Intended for tests and fixed
// literals.
func MustNew(codecName string, v any) *Object {
	o, err := New(codecName, v)
	if err != nil {
		panic(err)
	}
	return o
}

// Decode unmarshals the blob into v using the recorded deserializer.
// An empty blob leaves v untouched.
func (o *Object) Decode(v any) error {
	if o == nil || len(o.Blob) == 0 {
		return nil
	}
	c, err := Lookup(o.Deserializer)
	if err != nil {
		return err
	}
	if err := c.Unmarshal(o.Blob, v); err != nil {
		return fmt.Errorf("object: decode %d with %s: %w", o.ID, c.Name(), err)
	}
	return nil
}

// Store defines the persistence contract for objects.
type Store interface {
	// CreateObject inserts o and assigns its ID.
	CreateObject(ctx context.Context, o *Object) error

	// GetObject retrieves an object by ID.
	GetObject(ctx context.Context, objectID int64) (*Object, error)

	// DeleteObject removes an object by ID.
	DeleteObject(ctx context.Context, objectID int64) error
}

// Package correlation carries request-tracing tokens through a logical flow.
//
// The current id lives on a context.Context, so setting it for one flow never
// leaks into unrelated goroutines working on other flows.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

// ID is an opaque tracing token. It is never used for identity or ownership.
type ID string

// New returns a fresh random ID.
func New() ID { return ID(uuid.NewString()) }

func (id ID) String() string { return string(id) }
func (id ID) IsZero() bool   { return id == "" }

type ctxKey struct{}

// With returns a copy of ctx carrying id. A zero id leaves ctx untouched.
func With(ctx context.Context, id ID) context.Context {
	if id.IsZero() {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id attached to ctx, if any.
func FromContext(ctx context.Context) (ID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(ID)
	return id, ok && !id.IsZero()
}

// Ensure returns ctx unchanged when it already carries an id, otherwise it
// attaches a new one.
func Ensure(ctx context.Context) (context.Context, ID) {
	if id, ok := FromContext(ctx); ok {
		return ctx, id
	}
	id := New()
	return With(ctx, id), id
}

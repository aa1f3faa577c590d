// Package container is a small dependency injection container that also owns
// the lifecycle of the services it builds.
//
// Registrations are typed through Key values. A factory declares the keys it
// depends on; they are resolved before the factory runs. Every key is built at
// most once, even under concurrent resolution.
package container

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/koscakluka/luna/core/service"
)

// Factory builds the value for a key from its resolved dependencies.
type Factory[T any] func(ctx context.Context, deps Deps) (T, error)

type registration struct {
	build     func(ctx context.Context, deps Deps) (any, error)
	dependsOn []string
}

type Container struct {
	name  string
	state service.State

	mu         sync.RWMutex
	factories  map[string]registration
	singletons map[string]any
	instances  map[string]any
	services   map[string]service.Service
	order      []string

	building singleflight.Group
}

type Option func(*Container)

func WithName(name string) Option {
	return func(c *Container) { c.name = name }
}

func New(opts ...Option) *Container {
	c := &Container{
		name:       "container",
		factories:  map[string]registration{},
		singletons: map[string]any{},
		instances:  map[string]any{},
		services:   map[string]service.Service{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Container) Name() string           { return c.name }
func (c *Container) Status() service.Status { return c.state.Status() }

// RegisterFactory registers a lazy factory for key. Registering the same key
// again replaces the factory; instances already built are kept.
func RegisterFactory[T any](c *Container, key Key[T], factory Factory[T], dependsOn ...Dependency) {
	names := make([]string, 0, len(dependsOn))
	for _, dep := range dependsOn {
		names = append(names, dep.dependencyName())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[key.name]; exists {
		logger.Warn("overwriting factory registration", "key", key.name)
	}
	c.factories[key.name] = registration{
		build: func(ctx context.Context, deps Deps) (any, error) {
			return factory(ctx, deps)
		},
		dependsOn: names,
	}
}

// RegisterSingleton registers a ready-made value. Singletons take precedence
// over factories for the same key.
func RegisterSingleton[T any](c *Container, key Key[T], value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singletons[key.name] = value
	if svc, ok := any(value).(service.Service); ok {
		c.registerServiceLocked(svc)
	}
}

// Get resolves key, building it and its dependencies on first use.
// Concurrent callers for the same key share one construction. That
// construction runs detached from the callers' cancellation, so one caller
// giving up does not fail the others.
func Get[T any](ctx context.Context, c *Container, key Key[T]) (T, error) {
	var zero T
	value, err := c.get(ctx, key.name)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, &ResolutionError{Key: key.name, Reason: fmt.Sprintf("registered value has type %T", value)}
	}
	return typed, nil
}

// Has reports whether key has a singleton or a factory.
func (c *Container) Has(key Dependency) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name := key.dependencyName()
	_, singleton := c.singletons[name]
	_, factory := c.factories[name]
	return singleton || factory
}

func (c *Container) get(ctx context.Context, name string) (any, error) {
	c.mu.RLock()
	if value, ok := c.singletons[name]; ok {
		c.mu.RUnlock()
		return value, nil
	}
	if value, ok := c.instances[name]; ok {
		c.mu.RUnlock()
		return value, nil
	}
	reg, ok := c.factories[name]
	if !ok {
		c.mu.RUnlock()
		return nil, &ResolutionError{Key: name}
	}
	cycle := c.findCycleLocked(name)
	c.mu.RUnlock()
	if cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	value, err, _ := c.building.Do(name, func() (any, error) {
		c.mu.RLock()
		value, ok := c.instances[name]
		c.mu.RUnlock()
		if ok {
			return value, nil
		}

		value, err := c.construct(context.WithoutCancel(ctx), name, reg)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.instances[name] = value
		if svc, ok := value.(service.Service); ok {
			c.registerServiceLocked(svc)
		}
		c.mu.Unlock()
		return value, nil
	})
	return value, err
}

func (c *Container) construct(ctx context.Context, name string, reg registration) (value any, err error) {
	ctx, span := tracer.Start(ctx, "container.construct", trace.WithAttributes(attribute.String("container.key", name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	deps := Deps{values: make(map[string]any, len(reg.dependsOn))}
	for _, dep := range reg.dependsOn {
		resolved, err := c.get(ctx, dep)
		if err != nil {
			var missing *ResolutionError
			if errors.As(err, &missing) && missing.Key == dep {
				logger.WarnContext(ctx, "could not resolve dependency, omitting it", "key", name, "dependency", dep)
				continue
			}
			return nil, err
		}
		deps.values[dep] = resolved
	}

	value, err = func() (value any, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("factory panicked: %v", recovered)
			}
		}()
		return reg.build(ctx, deps)
	}()
	if err != nil {
		logger.ErrorContext(ctx, "failed to construct instance", "key", name, "error", err)
		return nil, &ConstructionError{Key: name, Err: err}
	}
	logger.DebugContext(ctx, "constructed instance", "key", name)
	return value, nil
}

// findCycleLocked walks declared factory dependencies from start and returns
// the first cycle it finds. Singletons and missing keys end a path.
func (c *Container) findCycleLocked(start string) []string {
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := map[string]int{}
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		if _, ok := c.singletons[name]; ok {
			return nil
		}
		if _, ok := c.instances[name]; ok {
			return nil
		}
		reg, ok := c.factories[name]
		if !ok {
			return nil
		}
		switch marks[name] {
		case visiting:
			i := slices.Index(path, name)
			return append(slices.Clone(path[i:]), name)
		case visited:
			return nil
		}
		marks[name] = visiting
		path = append(path, name)
		for _, dep := range reg.dependsOn {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		marks[name] = visited
		return nil
	}
	return visit(start)
}

// Clear drops every registration, instance and service without stopping
// anything.
func (c *Container) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.factories)
	clear(c.singletons)
	clear(c.instances)
	clear(c.services)
	c.order = nil
}

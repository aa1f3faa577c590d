package container

// Dependency is any key a factory can declare it needs.
type Dependency interface {
	dependencyName() string
}

// Key identifies a registration and carries the type it resolves to. Keys
// are compared by name, so two keys with the same name refer to the same
// registration.
type Key[T any] struct {
	name string
}

func NewKey[T any](name string) Key[T] { return Key[T]{name: name} }

func (k Key[T]) Name() string           { return k.name }
func (k Key[T]) String() string         { return k.name }
func (k Key[T]) dependencyName() string { return k.name }

// Deps holds the resolved dependencies handed to a factory. Dependencies that
// could not be resolved are absent.
type Deps struct {
	values map[string]any
}

// Resolve looks up a declared dependency.
func Resolve[T any](deps Deps, key Key[T]) (T, bool) {
	value, ok := deps.values[key.name]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := value.(T)
	return typed, ok
}

// MustResolve is Resolve for dependencies a factory cannot work without.
func MustResolve[T any](deps Deps, key Key[T]) (T, error) {
	value, ok := Resolve(deps, key)
	if !ok {
		return value, &ResolutionError{Key: key.name, Reason: "required dependency unavailable"}
	}
	return value, nil
}

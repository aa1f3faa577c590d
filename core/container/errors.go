package container

import (
	"fmt"
	"strings"
)

// ResolutionError reports a key with neither a singleton nor a factory.
type ResolutionError struct {
	Key    string
	Reason string
}

func (e *ResolutionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot resolve %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("no factory or singleton registered for %q", e.Key)
}

// ConstructionError wraps a factory failure.
type ConstructionError struct {
	Key string
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct %q: %v", e.Key, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle among registered factories.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// StartError reports the service that aborted StartAllServices.
type StartError struct {
	Service string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start service %q: %v", e.Service, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

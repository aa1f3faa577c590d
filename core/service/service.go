// Package service defines the lifecycle contract shared by every long-lived
// component managed by the container.
package service

import (
	"context"
	"sync/atomic"
)

type Status int32

const (
	StatusInitializing Status = iota
	StatusHealthy
	StatusDegraded
	StatusFailed
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Service is a component with an explicit lifecycle.
//
// Start is called at most once per lifecycle and should leave the service
// Healthy or Degraded. Stop must be safe to call after a partial or failed
// Start. HealthCheck must not change state.
type Service interface {
	Name() string
	Status() Status
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
}

// State is an embeddable, concurrency-safe status holder. Its zero value
// reports StatusInitializing.
type State struct {
	status atomic.Int32
}

func (s *State) Status() Status { return Status(s.status.Load()) }

func (s *State) SetStatus(status Status) { s.status.Store(int32(status)) }

// Transition moves from one status to another and reports whether it did.
func (s *State) Transition(from, to Status) bool {
	return s.status.CompareAndSwap(int32(from), int32(to))
}

func (s *State) IsHealthy() bool { return s.Status() == StatusHealthy }

// IsRunning reports whether the service is usable, possibly with reduced
// capabilities.
func (s *State) IsRunning() bool {
	status := s.Status()
	return status == StatusHealthy || status == StatusDegraded
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, bool) {
	for status := StatusInitializing; status <= StatusShutdown; status++ {
		if status.String() == s {
			return status, true
		}
	}
	return StatusInitializing, false
}

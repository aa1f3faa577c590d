package container

import (
	"context"
	"fmt"
	"slices"

	"github.com/koscakluka/luna/core/service"
)

// RegisterService adds svc to the lifecycle registry. Registering a name
// again replaces the service but keeps its original start position.
func (c *Container) RegisterService(svc service.Service) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerServiceLocked(svc)
}

func (c *Container) registerServiceLocked(svc service.Service) {
	name := svc.Name()
	if _, exists := c.services[name]; !exists {
		c.order = append(c.order, name)
	}
	c.services[name] = svc
	logger.Debug("registered service", "service", name)
}

// Services returns registered services in start order.
func (c *Container) Services() []service.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	services := make([]service.Service, 0, len(c.order))
	for _, name := range c.order {
		services = append(services, c.services[name])
	}
	return services
}

// Service returns the registered service with the given name.
func (c *Container) Service(name string) (service.Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[name]
	return svc, ok
}

// StartAllServices starts services in registration order and stops at the
// first failure. Services started before the failure are left running.
func (c *Container) StartAllServices(ctx context.Context) error {
	c.state.SetStatus(service.StatusInitializing)

	for _, svc := range c.Services() {
		if err := ctx.Err(); err != nil {
			c.state.SetStatus(service.StatusFailed)
			return &StartError{Service: svc.Name(), Err: err}
		}

		logger.InfoContext(ctx, "starting service", "service", svc.Name())
		if err := startService(ctx, svc); err != nil {
			logger.ErrorContext(ctx, "failed to start service", "service", svc.Name(), "error", err)
			c.state.SetStatus(service.StatusFailed)
			return &StartError{Service: svc.Name(), Err: err}
		}
		logger.InfoContext(ctx, "service started", "service", svc.Name(), "status", svc.Status())
	}

	c.state.SetStatus(service.StatusHealthy)
	return nil
}

func startService(ctx context.Context, svc service.Service) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("start panicked: %v", recovered)
		}
	}()
	return svc.Start(ctx)
}

// StopAllServices stops services in reverse registration order. Failures are
// logged and do not prevent the remaining services from stopping.
func (c *Container) StopAllServices(ctx context.Context) {
	services := c.Services()
	slices.Reverse(services)

	for _, svc := range services {
		logger.InfoContext(ctx, "stopping service", "service", svc.Name())
		if err := stopService(ctx, svc); err != nil {
			logger.ErrorContext(ctx, "failed to stop service", "service", svc.Name(), "error", err)
		}
	}
	c.state.SetStatus(service.StatusShutdown)
}

func stopService(ctx context.Context, svc service.Service) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("stop panicked: %v", recovered)
		}
	}()
	return svc.Stop(ctx)
}

// HealthCheck reports every registered service's health. A check that panics
// counts as unhealthy.
func (c *Container) HealthCheck(ctx context.Context) map[string]bool {
	services := c.Services()
	results := make(map[string]bool, len(services))
	for _, svc := range services {
		results[svc.Name()] = checkService(ctx, svc)
	}
	return results
}

func checkService(ctx context.Context, svc service.Service) (healthy bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "health check panicked", "service", svc.Name(), "panic", recovered)
			healthy = false
		}
	}()
	return svc.HealthCheck(ctx)
}

// Lifecycle starts every service, runs fn and then stops every service, even
// when start or fn fail. Teardown ignores ctx cancellation.
func (c *Container) Lifecycle(ctx context.Context, fn func(ctx context.Context) error) error {
	defer c.StopAllServices(context.WithoutCancel(ctx))

	if err := c.StartAllServices(ctx); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

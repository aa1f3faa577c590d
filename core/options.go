package orchestration

import (
	"io"
	"time"

	"github.com/koscakluka/luna/core/bus"
	"github.com/koscakluka/luna/core/container"
)

type ApplicationOption func(*Application)

// WithContainer uses c instead of a fresh container.
func WithContainer(c *container.Container) ApplicationOption {
	return func(a *Application) { a.container = c }
}

// WithBus uses b instead of a bus built from the configuration.
func WithBus(b *bus.Bus) ApplicationOption {
	return func(a *Application) { a.bus = b }
}

// WithPresenter replaces the terminal UI or line printer chosen from the
// configuration.
func WithPresenter(p Presenter) ApplicationOption {
	return func(a *Application) { a.presenter = p }
}

// WithInput sets where typed input is read from when voice input is not
// available. A nil reader disables the text input loop.
func WithInput(r io.Reader) ApplicationOption {
	return func(a *Application) {
		a.input = r
		a.inputSet = true
	}
}

// WithHealthInterval sets how often service health is polled. Zero disables
// polling.
func WithHealthInterval(d time.Duration) ApplicationOption {
	return func(a *Application) { a.healthInterval = d }
}

// WithServiceFactory replaces the factory registered for key.
func WithServiceFactory[T any](key container.Key[T], factory container.Factory[T], dependsOn ...container.Dependency) ApplicationOption {
	return func(a *Application) {
		a.overrides = append(a.overrides, func(c *container.Container) {
			container.RegisterFactory(c, key, factory, dependsOn...)
		})
	}
}

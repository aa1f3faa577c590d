package bus

import "time"

const (
	DefaultName            = "event_bus"
	DefaultMaxInFlight     = 256
	DefaultShutdownTimeout = 5 * time.Second
)

type Option func(*Bus)

func WithName(name string) Option {
	return func(b *Bus) { b.name = name }
}

// WithMaxInFlight bounds the number of handlers running at the same time.
// Handlers over the bound wait for a free slot; Publish never blocks on it.
func WithMaxInFlight(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxInFlight = int64(n)
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for cancelled handlers.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.shutdownTimeout = d
		}
	}
}

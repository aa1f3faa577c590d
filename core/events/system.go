package events

const (
	// KindSystemShutdown asks the application to stop.
	KindSystemShutdown Kind = "system.shutdown"
	// KindServiceStatus reports a service status change.
	KindServiceStatus Kind = "system.service_status"
)

func NewSystemShutdown(reason string, opts ...Option) Event {
	return New(KindSystemShutdown, Payload{"reason": reason}, opts...)
}

func NewServiceStatus(service, status string, opts ...Option) Event {
	return New(KindServiceStatus, Payload{"service": service, "status": status}, opts...)
}

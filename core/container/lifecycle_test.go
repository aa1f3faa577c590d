package container

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/koscakluka/luna/core/service"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeService struct {
	service.State
	name     string
	log      *callLog
	startErr error
	stopErr  error
	healthy  func() bool
}

func newFakeService(name string, log *callLog) *fakeService {
	if log == nil {
		log = &callLog{}
	}
	return &fakeService{name: name, log: log}
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(context.Context) error {
	s.log.add("start:" + s.name)
	if s.startErr != nil {
		s.SetStatus(service.StatusFailed)
		return s.startErr
	}
	s.SetStatus(service.StatusHealthy)
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	s.log.add("stop:" + s.name)
	s.SetStatus(service.StatusShutdown)
	return s.stopErr
}

func (s *fakeService) HealthCheck(context.Context) bool {
	if s.healthy != nil {
		return s.healthy()
	}
	return s.IsHealthy()
}

func TestStartAllServicesIsFailFast(t *testing.T) {
	log := &callLog{}
	c := New()
	a := newFakeService("A", log)
	b := newFakeService("B", log)
	b.startErr = errors.New("boom")
	cSvc := newFakeService("C", log)
	c.RegisterService(a)
	c.RegisterService(b)
	c.RegisterService(cSvc)

	err := c.StartAllServices(context.Background())

	var startErr *StartError
	if !errors.As(err, &startErr) || startErr.Service != "B" {
		t.Fatalf("expected start error for B, got %v", err)
	}
	if got, expected := log.snapshot(), []string{"start:A", "start:B"}; !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
	if c.Status() != service.StatusFailed {
		t.Fatalf("expected container to be failed, got %s", c.Status())
	}
	if a.Status() != service.StatusHealthy {
		t.Fatalf("expected A to be left running, got %s", a.Status())
	}
}

func TestStopAllServicesRunsInReverseAndIsBestEffort(t *testing.T) {
	log := &callLog{}
	c := New()
	a := newFakeService("A", log)
	b := newFakeService("B", log)
	b.stopErr = errors.New("stuck")
	cSvc := newFakeService("C", log)
	c.RegisterService(a)
	c.RegisterService(b)
	c.RegisterService(cSvc)

	if err := c.StartAllServices(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	c.StopAllServices(context.Background())

	expected := []string{"start:A", "start:B", "start:C", "stop:C", "stop:B", "stop:A"}
	if got := log.snapshot(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
	if c.Status() != service.StatusShutdown {
		t.Fatalf("expected container shutdown, got %s", c.Status())
	}
}

func TestReRegisteringServiceKeepsOrder(t *testing.T) {
	log := &callLog{}
	c := New()
	c.RegisterService(newFakeService("A", log))
	c.RegisterService(newFakeService("B", log))
	replacement := newFakeService("A", log)
	c.RegisterService(replacement)

	services := c.Services()
	if len(services) != 2 || services[0] != replacement || services[1].Name() != "B" {
		t.Fatalf("expected replacement to keep the first slot, got %v", services)
	}
}

func TestFactoryBuiltServicesAreRegistered(t *testing.T) {
	c := New()
	key := NewKey[*fakeService]("svc")
	RegisterFactory(c, key, func(context.Context, Deps) (*fakeService, error) {
		return newFakeService("built", nil), nil
	})

	if _, err := Get(context.Background(), c, key); err != nil {
		t.Fatalf("expected get to succeed, got %v", err)
	}
	if _, ok := c.Service("built"); !ok {
		t.Fatalf("expected factory-built service to be registered")
	}
}

func TestHealthCheckTreatsPanicAsUnhealthy(t *testing.T) {
	c := New()
	ok := newFakeService("ok", nil)
	panicking := newFakeService("panicking", nil)
	panicking.healthy = func() bool { panic("broken probe") }
	c.RegisterService(ok)
	c.RegisterService(panicking)
	_ = c.StartAllServices(context.Background())

	health := c.HealthCheck(context.Background())

	if !health["ok"] {
		t.Fatalf("expected ok service to be healthy")
	}
	if health["panicking"] {
		t.Fatalf("expected panicking check to count as unhealthy")
	}
}

func TestLifecycleStopsAfterFunctionError(t *testing.T) {
	log := &callLog{}
	c := New()
	c.RegisterService(newFakeService("A", log))

	cause := errors.New("run failed")
	err := c.Lifecycle(context.Background(), func(context.Context) error {
		log.add("run")
		return cause
	})

	if !errors.Is(err, cause) {
		t.Fatalf("expected lifecycle to return run error, got %v", err)
	}
	expected := []string{"start:A", "run", "stop:A"}
	if got := log.snapshot(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
}

func TestLifecycleStopsAfterStartFailure(t *testing.T) {
	log := &callLog{}
	c := New()
	c.RegisterService(newFakeService("A", log))
	failing := newFakeService("B", log)
	failing.startErr = errors.New("no")
	c.RegisterService(failing)

	err := c.Lifecycle(context.Background(), func(context.Context) error {
		t.Fatalf("expected run function to be skipped")
		return nil
	})
	if err == nil {
		t.Fatalf("expected start failure to surface")
	}
	expected := []string{"start:A", "start:B", "stop:B", "stop:A"}
	if got := log.snapshot(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
}

func TestLifecycleStopsWithCancelledContext(t *testing.T) {
	log := &callLog{}
	c := New()
	c.RegisterService(newFakeService("A", log))

	ctx, cancel := context.WithCancel(context.Background())
	_ = c.Lifecycle(ctx, func(context.Context) error {
		cancel()
		return nil
	})

	expected := []string{"start:A", "stop:A"}
	if got := log.snapshot(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected calls %v, got %v", expected, got)
	}
}

package container

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testLogger struct{ name string }

type testWorker struct {
	logger *testLogger
}

var (
	loggerKey = NewKey[*testLogger]("logger")
	workerKey = NewKey[*testWorker]("worker")
)

func TestGetBuildsDependenciesOnce(t *testing.T) {
	c := New()

	loggerBuilds := atomic.Int32{}
	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		loggerBuilds.Add(1)
		return &testLogger{name: "main"}, nil
	})
	RegisterFactory(c, workerKey, func(_ context.Context, deps Deps) (*testWorker, error) {
		logger, err := MustResolve(deps, loggerKey)
		if err != nil {
			return nil, err
		}
		return &testWorker{logger: logger}, nil
	}, loggerKey)

	worker, err := Get(context.Background(), c, workerKey)
	if err != nil {
		t.Fatalf("expected worker to resolve, got %v", err)
	}
	logger, err := Get(context.Background(), c, loggerKey)
	if err != nil {
		t.Fatalf("expected logger to resolve, got %v", err)
	}

	if worker.logger != logger {
		t.Fatalf("expected worker to receive the memoised logger instance")
	}
	if got := loggerBuilds.Load(); got != 1 {
		t.Fatalf("expected logger factory to run once, ran %d times", got)
	}

	again, _ := Get(context.Background(), c, workerKey)
	if again != worker {
		t.Fatalf("expected repeated get to return the same worker")
	}
}

func TestConcurrentGetConstructsOnce(t *testing.T) {
	c := New()

	builds := atomic.Int32{}
	release := make(chan struct{})
	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		builds.Add(1)
		<-release
		return &testLogger{}, nil
	})

	const callers = 16
	results := make([]*testLogger, callers)
	wg := sync.WaitGroup{}
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := Get(context.Background(), c, loggerKey)
			if err != nil {
				t.Errorf("expected get to succeed, got %v", err)
			}
			results[i] = value
		}()
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := builds.Load(); got != 1 {
		t.Fatalf("expected exactly one construction, got %d", got)
	}
	for i, value := range results {
		if value != results[0] {
			t.Fatalf("caller %d observed a different instance", i)
		}
	}
}

func TestCancelledCallerDoesNotFailSharedConstruction(t *testing.T) {
	c := New()

	started := make(chan struct{})
	release := make(chan struct{})
	RegisterFactory(c, loggerKey, func(ctx context.Context, _ Deps) (*testLogger, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &testLogger{name: "shared"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := Get(ctx, c, loggerKey)
		first <- err
	}()
	<-started

	second := make(chan error, 1)
	go func() {
		_, err := Get(context.Background(), c, loggerKey)
		second <- err
	}()

	cancel()
	close(release)

	for name, result := range map[string]chan error{"first": first, "second": second} {
		select {
		case err := <-result:
			if err != nil {
				t.Fatalf("expected %s caller to get the logger, got %v", name, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s caller did not return", name)
		}
	}
}

func TestSingletonTakesPrecedence(t *testing.T) {
	c := New()
	singleton := &testLogger{name: "singleton"}

	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		return &testLogger{name: "factory"}, nil
	})
	RegisterSingleton(c, loggerKey, singleton)

	got, err := Get(context.Background(), c, loggerKey)
	if err != nil {
		t.Fatalf("expected singleton to resolve, got %v", err)
	}
	if got != singleton {
		t.Fatalf("expected singleton, got %q", got.name)
	}
}

func TestGetUnknownKeyReturnsResolutionError(t *testing.T) {
	c := New()

	_, err := Get(context.Background(), c, loggerKey)
	var resolutionErr *ResolutionError
	if !errors.As(err, &resolutionErr) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if resolutionErr.Key != "logger" {
		t.Fatalf("expected key logger, got %q", resolutionErr.Key)
	}
}

func TestGetWithMismatchedTypeReturnsResolutionError(t *testing.T) {
	c := New()
	RegisterSingleton(c, NewKey[string]("logger"), "not a logger")

	if _, err := Get(context.Background(), c, loggerKey); err == nil {
		t.Fatalf("expected type mismatch to fail")
	}
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	c := New()
	cause := errors.New("disk on fire")
	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		return nil, cause
	})

	_, err := Get(context.Background(), c, loggerKey)
	var constructionErr *ConstructionError
	if !errors.As(err, &constructionErr) {
		t.Fatalf("expected construction error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected construction error to wrap cause")
	}
}

func TestFactoryPanicIsConstructionError(t *testing.T) {
	c := New()
	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		panic("nope")
	})

	_, err := Get(context.Background(), c, loggerKey)
	var constructionErr *ConstructionError
	if !errors.As(err, &constructionErr) {
		t.Fatalf("expected construction error, got %v", err)
	}
}

func TestMissingDependencyIsOmitted(t *testing.T) {
	c := New()
	optional := NewKey[*testLogger]("optional")

	RegisterFactory(c, workerKey, func(_ context.Context, deps Deps) (*testWorker, error) {
		logger, _ := Resolve(deps, optional)
		return &testWorker{logger: logger}, nil
	}, optional)

	worker, err := Get(context.Background(), c, workerKey)
	if err != nil {
		t.Fatalf("expected worker without optional dependency, got %v", err)
	}
	if worker.logger != nil {
		t.Fatalf("expected optional dependency to be absent")
	}
}

func TestDependencyCycleIsReported(t *testing.T) {
	c := New()
	a := NewKey[int]("a")
	b := NewKey[int]("b")

	RegisterFactory(c, a, func(context.Context, Deps) (int, error) { return 1, nil }, b)
	RegisterFactory(c, b, func(context.Context, Deps) (int, error) { return 2, nil }, a)

	done := make(chan error, 1)
	go func() {
		_, err := Get(context.Background(), c, a)
		done <- err
	}()

	select {
	case err := <-done:
		var cycleErr *CycleError
		if !errors.As(err, &cycleErr) {
			t.Fatalf("expected cycle error, got %v", err)
		}
		if len(cycleErr.Path) != 3 || cycleErr.Path[0] != "a" || cycleErr.Path[2] != "a" {
			t.Fatalf("expected path a -> b -> a, got %v", cycleErr.Path)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected cycle to be detected instead of deadlocking")
	}
}

func TestOverwritingFactoryKeepsBuiltInstance(t *testing.T) {
	c := New()
	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		return &testLogger{name: "first"}, nil
	})
	first, _ := Get(context.Background(), c, loggerKey)

	RegisterFactory(c, loggerKey, func(context.Context, Deps) (*testLogger, error) {
		return &testLogger{name: "second"}, nil
	})
	again, _ := Get(context.Background(), c, loggerKey)

	if again != first {
		t.Fatalf("expected cached instance to survive re-registration")
	}
}

func TestClearDropsEverything(t *testing.T) {
	c := New()
	RegisterSingleton(c, loggerKey, &testLogger{})
	c.RegisterService(newFakeService("svc", nil))

	c.Clear()

	if c.Has(loggerKey) {
		t.Fatalf("expected registrations to be cleared")
	}
	if len(c.Services()) != 0 {
		t.Fatalf("expected services to be cleared")
	}
}

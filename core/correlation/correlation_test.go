package correlation

import (
	"context"
	"sync"
	"testing"
)

func TestNewReturnsDistinctIDs(t *testing.T) {
	first, second := New(), New()
	if first.IsZero() || second.IsZero() {
		t.Fatalf("expected non-empty ids, got %q and %q", first, second)
	}
	if first == second {
		t.Fatalf("expected distinct ids, both were %q", first)
	}
}

func TestFromContextWithoutID(t *testing.T) {
	if id, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected no id on background context, got %q", id)
	}
}

func TestWithZeroIDLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	if got := With(ctx, ""); got != ctx {
		t.Fatalf("expected the same context for a zero id")
	}
}

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := With(context.Background(), ID("flow-1"))

	ensured, id := Ensure(ctx)
	if id != "flow-1" {
		t.Fatalf("expected existing id to be kept, got %q", id)
	}
	if ensured != ctx {
		t.Fatalf("expected context to be reused when an id is present")
	}
}

func TestConcurrentFlowsDoNotShareIDs(t *testing.T) {
	const flows = 32

	wg := sync.WaitGroup{}
	errs := make(chan string, flows)
	for range flows {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, id := Ensure(context.Background())
			if got, ok := FromContext(ctx); !ok || got != id {
				errs <- string(got)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("flow observed a foreign correlation id %q", got)
	}
}

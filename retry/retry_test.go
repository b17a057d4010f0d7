package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// fakeClock makes retry delays instantaneous for deterministic, fast tests.
type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Time{} }
func (fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func TestDelayRespectsMinimumAndMax(t *testing.T) {
	policy := models.DefaultPolicies[models.CategoryNetwork]
	for attempt := uint32(1); attempt <= 6; attempt++ {
		d := Delay(policy, attempt)
		if d < models.MinRetryDelay {
			t.Errorf("attempt %d: delay %v below floor %v", attempt, d, models.MinRetryDelay)
		}
		if d > policy.MaxDelay {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, d, policy.MaxDelay)
		}
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cfg := models.CircuitBreakerConfig{Threshold: 3, Cooldown: time.Second, ResetTimeout: time.Minute}
	b := models.NewCircuitBreaker(models.CategoryNetwork, cfg)
	now := time.Now()

	for i := 0; i < 2; i++ {
		if opened := b.RecordFailure(now); opened {
			t.Fatalf("breaker opened too early at failure %d", i+1)
		}
	}
	if opened := b.RecordFailure(now); !opened {
		t.Fatal("expected breaker to open at threshold")
	}
	if b.Allow(now) {
		t.Error("expected breaker to reject while within cooldown")
	}
	if !b.Allow(now.Add(2 * time.Second)) {
		t.Error("expected breaker to half-open after cooldown")
	}
}

func TestManagerRetriesUntilSuccess(t *testing.T) {
	cfg := config.Load().Retry
	m := New(cfg, fakeClock{}, nil)

	var attempts int32
	done := make(chan struct{})
	m.RegisterExecutor("noop", func(ctx context.Context, op models.Operation) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("network: connection reset")
		}
		close(done)
		return nil
	})

	if err := m.Submit(context.Background(), "task-1", models.Operation{Name: "noop"}, models.CategoryNetwork); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not succeed in time")
	}
}

func TestManagerRejectsNonRetryableCategory(t *testing.T) {
	cfg := config.Load().Retry
	m := New(cfg, fakeClock{}, nil)

	var ran int32
	m.RegisterExecutor("noop", func(ctx context.Context, op models.Operation) error {
		atomic.AddInt32(&ran, 1)
		return errors.New("permission denied")
	})

	if err := m.Submit(context.Background(), "task-perm", models.Operation{Name: "noop"}, models.CategoryPermission); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("expected a non-retryable category to never execute")
	}
}

func TestManagerRejectsDuplicateTaskID(t *testing.T) {
	cfg := config.Load().Retry
	m := New(cfg, fakeClock{}, nil)
	m.RegisterExecutor("noop", func(ctx context.Context, op models.Operation) error { return nil })

	_ = m.Submit(context.Background(), "dup", models.Operation{Name: "noop"}, models.CategoryNetwork)
	if err := m.Submit(context.Background(), "dup", models.Operation{Name: "noop"}, models.CategoryNetwork); err == nil {
		t.Error("expected duplicate task_id to be rejected")
	}
}

func TestManagerEmitsRetryFailureOnExhaustion(t *testing.T) {
	cfg := config.Load().Retry
	m := New(cfg, fakeClock{}, nil)

	var attempts int32
	m.RegisterExecutor("noop", func(ctx context.Context, op models.Operation) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("network: connection reset")
	})

	var mu sync.Mutex
	var events []AttemptEvent
	terminal := make(chan struct{})
	m.OnEvent = func(e AttemptEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		if e.Terminal {
			close(terminal)
		}
	}

	if err := m.Submit(context.Background(), "task-exhaust", models.Operation{Name: "noop"}, models.CategoryNetwork); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not exhaust retries in time")
	}
	// Give any would-be further events a moment to (not) arrive.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	maxAttempts := models.DefaultPolicies[models.CategoryNetwork].MaxAttempts
	if got := int(atomic.LoadInt32(&attempts)); got != maxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", maxAttempts, got)
	}

	terminalCount := 0
	for _, e := range events {
		if e.Terminal {
			terminalCount++
			if e.Reason != "Max retry attempts exceeded" {
				t.Errorf("unexpected terminal reason: %q", e.Reason)
			}
			if int(e.Attempt) != maxAttempts {
				t.Errorf("expected the terminal event to report %d attempts, got %d", maxAttempts, e.Attempt)
			}
		}
	}
	if terminalCount != 1 {
		t.Errorf("expected exactly one terminal RETRY_FAILURE event, got %d", terminalCount)
	}
	if events[len(events)-1].Terminal != true {
		t.Error("expected the terminal event to be the last event emitted, no further events after exhaustion")
	}
}

var _ port.Clock = fakeClock{}

// Package retry implements RetryManager (§4.9): per-category exponential
// backoff with full jitter, per-category circuit breakers, and a
// submit/cancel/pause/resume control surface. Grounded on the teacher's
// webhook.DeliverAsync idiom (goroutine-per-task retry loop with
// structured logging at each attempt) generalized from a fixed delay
// table to the category-policy model, and on
// engine/adaptive_pool.go's semaphore-bounded concurrency pattern for
// max_concurrent_retries.
package retry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/port"
)

// Executor runs a named Operation. Operation.Name is resolved through a
// registry so RetryTask stays a plain persistable value, never a closure.
type Executor func(ctx context.Context, op models.Operation) error

// AttemptEvent is broadcast once per retry attempt (RETRY_ATTEMPT), once per
// terminal exhaustion (RETRY_FAILURE), and once per breaker transition
// (CIRCUIT_BREAKER_OPENED/RESET). Exactly one of Success, Terminal, or
// BreakerTransition is meaningful on any given event.
type AttemptEvent struct {
	TaskID   string
	Attempt  uint32
	Category models.ErrorCategory
	Err      error
	Success  bool

	// Terminal is true once a task has exhausted its retries or was never
	// retryable to begin with; no further events follow for that task.
	Terminal bool
	Reason   string

	// BreakerTransition is "opened" or "reset" for a circuit-breaker state
	// change, empty otherwise.
	BreakerTransition string
}

// Manager runs retry tasks to completion or exhaustion, respecting
// per-category policies, circuit breakers, pause state, and a
// max_concurrent_retries semaphore.
type Manager struct {
	cfg     config.RetryConfig
	clock   port.Clock
	persist port.PersistSink

	mu        sync.Mutex
	tasks     map[string]*models.RetryTask
	breakers  map[models.ErrorCategory]*models.CircuitBreaker
	paused    map[models.ErrorCategory]bool
	executors map[string]Executor
	sem       chan struct{}

	OnEvent func(AttemptEvent)
}

// New returns a Manager. persist may be nil to skip state persistence.
func New(cfg config.RetryConfig, clock port.Clock, persist port.PersistSink) *Manager {
	if cfg.MaxConcurrentRetries <= 0 {
		cfg.MaxConcurrentRetries = 10
	}
	return &Manager{
		cfg:       cfg,
		clock:     clock,
		persist:   persist,
		tasks:     make(map[string]*models.RetryTask),
		breakers:  make(map[models.ErrorCategory]*models.CircuitBreaker),
		paused:    make(map[models.ErrorCategory]bool),
		executors: make(map[string]Executor),
		sem:       make(chan struct{}, cfg.MaxConcurrentRetries),
	}
}

// RegisterExecutor binds an Operation name to the function that performs
// it, so tasks persisted and reloaded across restarts can resume without
// carrying a closure.
func (m *Manager) RegisterExecutor(name string, fn Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors[name] = fn
}

func (m *Manager) breakerFor(category models.ErrorCategory) *models.CircuitBreaker {
	b, ok := m.breakers[category]
	if !ok {
		cfg := m.cfg.Breaker
		b = models.NewCircuitBreaker(category, cfg)
		m.breakers[category] = b
	}
	return b
}

func (m *Manager) policyFor(category models.ErrorCategory) models.RetryPolicy {
	if p, ok := m.cfg.Policies[category]; ok {
		return p
	}
	return m.cfg.Policies[models.CategoryDefault]
}

// Submit places a task on the retry queue and starts its attempt loop in
// the background. Rejects a duplicate task_id or a full queue.
func (m *Manager) Submit(ctx context.Context, taskID string, op models.Operation, category models.ErrorCategory) error {
	m.mu.Lock()
	if _, exists := m.tasks[taskID]; exists {
		m.mu.Unlock()
		return models.NewEngineError("RETRY_DUPLICATE_TASK", models.CategoryValidation, "task_id already submitted: "+taskID, nil)
	}
	if m.cfg.MaxQueueSize > 0 && len(m.tasks) >= m.cfg.MaxQueueSize {
		m.mu.Unlock()
		return models.NewEngineError("RETRY_QUEUE_FULL", models.CategoryValidation, "retry queue at capacity", nil)
	}
	policy := m.policyFor(category)
	task := &models.RetryTask{
		TaskID:        taskID,
		Operation:     op,
		Policy:        policy,
		ErrorCategory: category,
		SubmittedAt:   m.clock.Now(),
	}
	m.tasks[taskID] = task
	m.mu.Unlock()

	m.persistSnapshot(ctx)
	go m.run(ctx, task)
	return nil
}

// Cancel idempotently marks a pending task cancelled. Returns false if no
// such task exists.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	task.Cancelled = true
	return true
}

// Pause stops new attempts for category until Resume is called; in-flight
// attempts still run to completion.
func (m *Manager) Pause(category models.ErrorCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[category] = true
}

// Resume re-allows attempts for category.
func (m *Manager) Resume(category models.ErrorCategory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paused, category)
}

// PauseAll stops new attempts across every category.
func (m *Manager) PauseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for category := range m.cfg.Policies {
		m.paused[category] = true
	}
}

// ResumeAll clears every category's pause flag.
func (m *Manager) ResumeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = make(map[models.ErrorCategory]bool)
}

func (m *Manager) isPaused(category models.ErrorCategory) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused[category]
}

// run is the per-task attempt loop: one RetryTask is driven serially, never
// overlapping its own attempts, bounded by the concurrency semaphore.
func (m *Manager) run(ctx context.Context, task *models.RetryTask) {
	defer m.remove(task.TaskID)

	for {
		m.mu.Lock()
		if task.Cancelled {
			m.mu.Unlock()
			return
		}
		if task.Attempt >= uint32(task.Policy.MaxAttempts) || !task.Policy.Retryable {
			reason := "Max retry attempts exceeded"
			if !task.Policy.Retryable {
				reason = "error category is not retryable"
			}
			completed := task.Attempt
			delete(m.tasks, task.TaskID)
			m.mu.Unlock()
			slog.Warn("retry exhausted", "task_id", task.TaskID, "attempts", completed)
			m.emit(AttemptEvent{TaskID: task.TaskID, Attempt: completed, Category: task.ErrorCategory, Terminal: true, Reason: reason})
			return
		}
		task.Attempt++
		attempt := task.Attempt
		breaker := m.breakerFor(task.ErrorCategory)
		m.mu.Unlock()

		if m.isPaused(task.ErrorCategory) {
			if err := m.clock.Sleep(ctx, models.MinRetryDelay); err != nil {
				return
			}
			m.mu.Lock()
			task.Attempt--
			m.mu.Unlock()
			continue
		}

		if attempt > 1 {
			delay := Delay(task.Policy, attempt-1)
			if err := m.clock.Sleep(ctx, delay); err != nil {
				return
			}
		}

		if !breaker.Allow(m.clock.Now()) {
			slog.Debug("circuit breaker open, deferring task", "task_id", task.TaskID, "category", task.ErrorCategory)
			if err := m.clock.Sleep(ctx, task.Policy.BaseDelay); err != nil {
				return
			}
			continue
		}

		m.sem <- struct{}{}
		err := m.execute(ctx, task)
		<-m.sem

		if err == nil {
			wasHalfOpen := breaker.State == models.BreakerHalfOpen
			breaker.RecordSuccess()
			m.emit(AttemptEvent{TaskID: task.TaskID, Attempt: attempt, Category: task.ErrorCategory, Success: true})
			if wasHalfOpen {
				slog.Info("circuit breaker reset", "category", task.ErrorCategory)
				m.emit(AttemptEvent{Category: task.ErrorCategory, BreakerTransition: "reset"})
			}
			return
		}

		opened := breaker.RecordFailure(m.clock.Now())
		m.mu.Lock()
		task.LastError = toEngineError(err, task.ErrorCategory)
		m.mu.Unlock()
		m.emit(AttemptEvent{TaskID: task.TaskID, Attempt: attempt, Category: task.ErrorCategory, Err: err})
		if opened {
			slog.Warn("circuit breaker opened", "category", task.ErrorCategory)
			m.emit(AttemptEvent{Category: task.ErrorCategory, BreakerTransition: "opened"})
		}
		m.persistSnapshot(ctx)
	}
}

func (m *Manager) execute(ctx context.Context, task *models.RetryTask) error {
	m.mu.Lock()
	fn, ok := m.executors[task.Operation.Name]
	m.mu.Unlock()
	if !ok {
		return models.NewEngineError("RETRY_NO_EXECUTOR", models.CategoryValidation, "no executor registered for operation: "+task.Operation.Name, nil)
	}
	return fn(ctx, task.Operation)
}

func (m *Manager) emit(e AttemptEvent) {
	if m.OnEvent != nil {
		m.OnEvent(e)
	}
}

func (m *Manager) remove(taskID string) {
	m.mu.Lock()
	delete(m.tasks, taskID)
	m.mu.Unlock()
}

func toEngineError(err error, category models.ErrorCategory) *models.EngineError {
	var ee *models.EngineError
	if e, ok := err.(*models.EngineError); ok {
		ee = e
	} else {
		ee = models.NewEngineError("RETRY_ATTEMPT_FAILED", category, err.Error(), err)
	}
	return ee
}

// persistSnapshot writes the current task set to PersistSink, coalescing
// all pending mutations into a single write per call site rather than one
// write per field change.
func (m *Manager) persistSnapshot(ctx context.Context) {
	if m.persist == nil {
		return
	}
	m.mu.Lock()
	snapshot := make(map[string]*models.RetryTask, len(m.tasks))
	for k, v := range m.tasks {
		snapshot[k] = v
	}
	m.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("retry: failed to marshal state snapshot", "error", err)
		return
	}
	if err := m.persist.Set(ctx, "retry:tasks", data); err != nil {
		slog.Error("retry: failed to persist state snapshot", "error", err)
	}
}

// Tasks returns a snapshot of in-flight tasks, for RETRY_SUBMIT/CANCEL
// observers and diagnostics.
func (m *Manager) Tasks() []models.RetryTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RetryTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}

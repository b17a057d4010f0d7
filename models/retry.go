package models

import "time"

// RetryPolicy controls backoff for one error category.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Jitter            bool
	BackoffMultiplier float64
	Retryable         bool
}

// DefaultPolicies are the per-category policies from §4.9, keyed by
// ErrorCategory. Callers may override any entry via RetryManager config.
var DefaultPolicies = map[ErrorCategory]RetryPolicy{
	CategoryNetwork:    {MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second, Jitter: true, BackoffMultiplier: 2.0, Retryable: true},
	CategoryTimeout:    {MaxAttempts: 4, BaseDelay: 3 * time.Second, MaxDelay: 45 * time.Second, Jitter: true, BackoffMultiplier: 1.8, Retryable: true},
	CategoryServer:     {MaxAttempts: 4, BaseDelay: 5 * time.Second, MaxDelay: 120 * time.Second, Jitter: true, BackoffMultiplier: 2.5, Retryable: true},
	CategoryRateLimit:  {MaxAttempts: 6, BaseDelay: 10 * time.Second, MaxDelay: 300 * time.Second, Jitter: true, BackoffMultiplier: 3.0, Retryable: true},
	CategoryCors:       {MaxAttempts: 2, BaseDelay: 1 * time.Second, MaxDelay: 5 * time.Second, Jitter: false, BackoffMultiplier: 1.5, Retryable: true},
	CategoryExtension:  {MaxAttempts: 2, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second, Jitter: false, BackoffMultiplier: 2.0, Retryable: true},
	CategoryPermission:  {MaxAttempts: 0, Retryable: false},
	CategoryNotFound:    {MaxAttempts: 0, Retryable: false},
	CategoryMemory:      {MaxAttempts: 0, Retryable: false},
	CategoryValidation:  {MaxAttempts: 0, Retryable: false},
	CategoryDefault:    {MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second, Jitter: true, BackoffMultiplier: 2.0, Retryable: true},
}

// MinRetryDelay is the floor every computed delay is clamped to.
const MinRetryDelay = 100 * time.Millisecond

// Operation is a re-runnable action submitted to the RetryManager. It is a
// value (a name + args resolved through a registry at run time), never a
// closure over mutable state, so it can be persisted and re-attached across
// restarts per §4.9's state-persistence contract.
type Operation struct {
	Name string
	Args map[string]string
}

// RetryTask is one in-flight retry registration.
//
// Invariants: Attempt <= Policy.MaxAttempts; a terminal task is removed
// from the queue before any callback fires.
type RetryTask struct {
	TaskID        string
	Operation     Operation
	Policy        RetryPolicy
	Attempt       uint32
	LastError     *EngineError
	NextRetryAt   time.Time
	ErrorCategory ErrorCategory
	Cancelled     bool
	SubmittedAt   time.Time
}

// BreakerState is the circuit breaker's current state.
type BreakerState string

const (
	BreakerClosed   BreakerState = "Closed"
	BreakerOpen     BreakerState = "Open"
	BreakerHalfOpen BreakerState = "HalfOpen"
)

// CircuitBreakerConfig tunes thresholds for one category's breaker.
type CircuitBreakerConfig struct {
	Threshold    int           // consecutive failures before opening
	Cooldown     time.Duration // Open -> HalfOpen delay
	ResetTimeout time.Duration // force-reset an Open breaker after this long
}

// DefaultBreakerConfig is used unless overridden.
var DefaultBreakerConfig = CircuitBreakerConfig{
	Threshold:    5,
	Cooldown:     60 * time.Second,
	ResetTimeout: 5 * time.Minute,
}

// CircuitBreaker gates retries for one error category.
//
// Invariants: transitions Closed->Open at ConsecutiveFailures >= Threshold;
// Open->HalfOpen only after Cooldown elapsed; any success in HalfOpen ->
// Closed and zeros ConsecutiveFailures.
type CircuitBreaker struct {
	Category            ErrorCategory
	State                BreakerState
	ConsecutiveFailures int
	Successes           int
	OpenedAt             time.Time
	Config               CircuitBreakerConfig
}

// NewCircuitBreaker returns a Closed breaker for the given category.
func NewCircuitBreaker(category ErrorCategory, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{Category: category, State: BreakerClosed, Config: cfg}
}

// RecordSuccess applies a success outcome, per the state-machine invariant.
func (b *CircuitBreaker) RecordSuccess() {
	b.Successes++
	b.ConsecutiveFailures = 0
	if b.State == BreakerHalfOpen {
		b.State = BreakerClosed
	}
}

// RecordFailure applies a failure outcome and returns true if this
// transitioned the breaker to Open.
func (b *CircuitBreaker) RecordFailure(now time.Time) bool {
	b.ConsecutiveFailures++
	if b.State == BreakerHalfOpen {
		b.State = BreakerOpen
		b.OpenedAt = now
		return true
	}
	if b.State == BreakerClosed && b.ConsecutiveFailures >= b.Config.Threshold {
		b.State = BreakerOpen
		b.OpenedAt = now
		return true
	}
	return false
}

// Allow reports whether a task of this breaker's category may run now,
// advancing Open->HalfOpen or force-resetting after ResetTimeout as a side
// effect.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	switch b.State {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if now.Sub(b.OpenedAt) >= b.Config.ResetTimeout {
			b.State = BreakerClosed
			b.ConsecutiveFailures = 0
			return true
		}
		if now.Sub(b.OpenedAt) >= b.Config.Cooldown {
			b.State = BreakerHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

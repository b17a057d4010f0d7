// Package orchestrator implements the Router/Orchestrator (C9): a message
// bus that dispatches named inbound actions to handlers and fans outbound
// broadcasts out to subscribers, enforcing a message_timeout per request
// and exactly one response per request. Grounded on the teacher's
// engine/dispatcher.go race/cancel idiom, generalized from "race N engines,
// first success wins" to "dispatch one action to one handler, bounded by a
// timeout".
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/models"
)

const defaultMessageTimeout = 30 * time.Second

// Inbound action names, per §6's control surface.
const (
	ActionScanStart              = "SCAN_START"
	ActionScanStop               = "SCAN_STOP"
	ActionPaginationStart        = "PAGINATION_START"
	ActionPaginationStop         = "PAGINATION_STOP"
	ActionRetrySubmit            = "RETRY_SUBMIT"
	ActionRetryCancel            = "RETRY_CANCEL"
	ActionPaginationDetect       = "PAGINATION_DETECT"
	ActionPaginationNavigateNext = "PAGINATION_NAVIGATE_NEXT"
	ActionPaginationReset        = "PAGINATION_RESET"
	ActionPaginationGetState     = "PAGINATION_GET_STATE"
	ActionExportData             = "EXPORT_DATA"
)

// Outbound broadcast names.
const (
	EventScanStarted           = "SCAN_STARTED"
	EventScanComplete          = "SCAN_COMPLETE"
	EventScanError             = "SCAN_ERROR"
	EventDownloadProgress      = "DOWNLOAD_PROGRESS"
	EventPaginationProgress    = "PAGINATION_PROGRESS"
	EventPaginationStateUpdate = "PAGINATION_STATE_UPDATE"
	EventRetryAttempt          = "RETRY_ATTEMPT"
	EventRetryFailure          = "RETRY_FAILURE"
	EventCircuitBreakerOpened  = "CIRCUIT_BREAKER_OPENED"
	EventCircuitBreakerReset   = "CIRCUIT_BREAKER_RESET"
)

// Handler processes one inbound action and returns its single response.
type Handler func(ctx context.Context, payload any) (any, error)

// Broadcast is one outbound event delivered to every matching subscriber.
type Broadcast struct {
	Event   string
	Payload any
}

// Envelope is the outbound wire shape for every Dispatch call: exactly one
// of Data or Error is meaningful, RequestID echoes the caller's correlation
// ID so an async transport (websocket, MCP) can match a reply to its
// request, and Timestamp records when the response was produced (matching
// webhook.Payload's int64 unix-seconds convention).
type Envelope struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"request_id"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// subscriber is one Subscribe registration: a named channel filtered to a
// set of event types, or every event when filter is empty or contains "*".
type subscriber struct {
	name   string
	filter map[string]struct{}
	ch     chan Broadcast
}

func (s *subscriber) matches(event string) bool {
	if len(s.filter) == 0 {
		return true
	}
	if _, ok := s.filter["*"]; ok {
		return true
	}
	_, ok := s.filter[event]
	return ok
}

// Router is the engine's message bus.
type Router struct {
	cfg config.RouterConfig

	mu          sync.RWMutex
	handlers    map[string]Handler
	subscribers map[int]*subscriber
	nextSubID   int
}

// New returns an empty Router; call Handle to register each action before
// Dispatch is called.
func New(cfg config.RouterConfig) *Router {
	return &Router{
		cfg:         cfg,
		handlers:    make(map[string]Handler),
		subscribers: make(map[int]*subscriber),
	}
}

// Handle registers the handler for action, replacing any prior registration.
func (r *Router) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

// Dispatch routes payload to action's handler, bounded by message_timeout,
// and returns the single outbound Envelope for this request_id. A handler
// that answers after the timeout has already lost the race and its result
// is discarded. requestID echoes the caller's inbound {action, request_id,
// payload} message; an empty requestID is assigned a fresh one, so callers
// that don't need correlation (internal Go call sites, tests) can pass "".
func (r *Router) Dispatch(ctx context.Context, requestID, action string, payload any) Envelope {
	if requestID == "" {
		requestID = uuid.NewString()
	}

	r.mu.RLock()
	h, ok := r.handlers[action]
	r.mu.RUnlock()
	if !ok {
		return r.errorEnvelope(requestID, models.NewEngineError("ROUTER_UNKNOWN_ACTION", models.CategoryValidation, fmt.Sprintf("no handler registered for action %q", action), nil))
	}

	timeout := r.cfg.MessageTimeout
	if timeout <= 0 {
		timeout = defaultMessageTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		resp any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := h(cctx, payload)
		done <- outcome{resp, err} // buffered: never blocks if the timeout already fired
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return r.errorEnvelope(requestID, o.err)
		}
		return Envelope{OK: true, RequestID: requestID, Data: o.resp, Timestamp: time.Now().Unix()}
	case <-cctx.Done():
		return r.errorEnvelope(requestID, models.NewEngineError("ROUTER_TIMEOUT", models.CategoryTimeout, fmt.Sprintf("action %q exceeded message_timeout", action), cctx.Err()))
	}
}

func (r *Router) errorEnvelope(requestID string, err error) Envelope {
	return Envelope{OK: false, RequestID: requestID, Error: err.Error(), Timestamp: time.Now().Unix()}
}

// Subscribe registers name as a subscriber filtered to events: a broadcast
// is delivered to it only when its Event is in events or events contains
// "*"; a nil or empty events matches every event, per §4.10's "a set of
// event types (or *)" subscription model. Returns a channel of matching
// Broadcasts plus an unsubscribe function. The channel is buffered; a slow
// subscriber drops events rather than stalling Broadcast.
func (r *Router) Subscribe(name string, events []string, buffer int) (<-chan Broadcast, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Broadcast, buffer)
	filter := make(map[string]struct{}, len(events))
	for _, e := range events {
		filter[e] = struct{}{}
	}

	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = &subscriber{name: name, filter: filter, ch: ch}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Broadcast delivers an outbound event to every subscriber whose filter
// matches it, dropping it for any subscriber whose buffer is full instead
// of blocking.
func (r *Router) Broadcast(event string, payload any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b := Broadcast{Event: event, Payload: payload}
	for _, sub := range r.subscribers {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.ch <- b:
		default:
			slog.Warn("orchestrator: dropping broadcast for slow subscriber", "event", event, "subscriber", sub.name)
		}
	}
}

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/gallerydiscover/config"
)

func TestDispatchRoutesToHandler(t *testing.T) {
	cfg := config.Load().Router
	r := New(cfg)
	r.Handle(ActionScanStart, func(ctx context.Context, payload any) (any, error) {
		return "started", nil
	})

	env := r.Dispatch(context.Background(), "", ActionScanStart, nil)
	if !env.OK {
		t.Fatalf("Dispatch: %v", env.Error)
	}
	if env.Data != "started" {
		t.Errorf("unexpected response: %v", env.Data)
	}
}

func TestDispatchEchoesOrGeneratesRequestID(t *testing.T) {
	r := New(config.Load().Router)
	r.Handle(ActionScanStart, func(ctx context.Context, payload any) (any, error) {
		return "started", nil
	})

	env := r.Dispatch(context.Background(), "caller-supplied-id", ActionScanStart, nil)
	if env.RequestID != "caller-supplied-id" {
		t.Errorf("expected RequestID to echo the caller's id, got %q", env.RequestID)
	}

	env2 := r.Dispatch(context.Background(), "", ActionScanStart, nil)
	if env2.RequestID == "" {
		t.Error("expected an empty request_id to be assigned a generated one")
	}
}

func TestDispatchUnknownActionErrors(t *testing.T) {
	r := New(config.Load().Router)
	if env := r.Dispatch(context.Background(), "", "NOT_REGISTERED", nil); env.OK {
		t.Error("expected an error for an unregistered action")
	}
}

func TestDispatchTimesOut(t *testing.T) {
	cfg := config.Load().Router
	cfg.MessageTimeout = 10 * time.Millisecond
	r := New(cfg)
	r.Handle(ActionScanStart, func(ctx context.Context, payload any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if env := r.Dispatch(context.Background(), "", ActionScanStart, nil); env.OK {
		t.Error("expected a timeout error")
	}
}

func TestBroadcastDeliversToSubscribers(t *testing.T) {
	r := New(config.Load().Router)
	ch, cancel := r.Subscribe("test", nil, 4)
	defer cancel()

	r.Broadcast(EventScanStarted, "payload")

	select {
	case b := <-ch:
		if b.Event != EventScanStarted {
			t.Errorf("unexpected event: %s", b.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast to be delivered")
	}
}

func TestSubscribeFiltersByEventType(t *testing.T) {
	r := New(config.Load().Router)
	ch, cancel := r.Subscribe("test", []string{EventScanStarted}, 4)
	defer cancel()

	r.Broadcast(EventScanError, "ignored")
	r.Broadcast(EventScanStarted, "wanted")

	select {
	case b := <-ch:
		if b.Event != EventScanStarted {
			t.Errorf("expected only %s to pass the filter, got %s", EventScanStarted, b.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the filtered broadcast to be delivered")
	}

	select {
	case b := <-ch:
		t.Errorf("expected no further broadcasts past the filtered one, got %s", b.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

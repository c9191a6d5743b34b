package bus

import (
	"errors"
	"testing"
	"time"
)

func TestEmitSubscribe(t *testing.T) {
	c := New(nil)
	ch, unsub := c.Subscribe("session:", 10)
	defer unsub()

	c.Emit(Event{Kind: "session:status_changed", Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != "session:status_changed" {
			t.Errorf("got kind %q, want session:status_changed", evt.Kind)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not stamped on emit")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	c := New(nil)
	ch, unsub := c.Subscribe("sync:", 10)
	defer unsub()

	c.Emit(Event{Kind: "session:status_changed"})
	c.Emit(Event{Kind: "sync:progress"})

	select {
	case evt := <-ch:
		if evt.Kind != "sync:progress" {
			t.Errorf("got kind %q, want sync:progress", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	c := New(nil)
	ch, unsub := c.Subscribe("session:", 10)
	unsub()

	c.Emit(Event{Kind: "session:status_changed"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	c := New(nil)
	ch, unsub := c.Subscribe("test:", 1)
	defer unsub()

	c.Emit(Event{Kind: "test:one"})
	// This should be dropped (non-blocking).
	c.Emit(Event{Kind: "test:two"})

	evt := <-ch
	if evt.Kind != "test:one" {
		t.Errorf("got %q, want test:one", evt.Kind)
	}
}

func TestCommandDelivery(t *testing.T) {
	c := New(nil)
	ch, unreg := c.OnCommand("auth:code", 10)
	defer unreg()

	c.Send(Command{Kind: "auth:code", Payload: "12345"})
	c.Send(Command{Kind: "auth:password", Payload: "nope"})

	select {
	case cmd := <-ch:
		if cmd.Payload != "12345" {
			t.Errorf("payload = %v, want 12345", cmd.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for command")
	}

	select {
	case cmd := <-ch:
		t.Errorf("received command of wrong kind: %v", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFirstSubscribeHook(t *testing.T) {
	c := New(nil)
	fired := 0
	c.OnFirstSubscribe("sync:", func() { fired++ })

	if fired != 0 {
		t.Fatal("hook fired before first subscribe")
	}

	_, unsub1 := c.Subscribe("sync:", 1)
	defer unsub1()
	_, unsub2 := c.Subscribe("sync:", 1)
	defer unsub2()

	if fired != 1 {
		t.Errorf("hook fired %d times, want 1", fired)
	}

	// Late registration for an already-seen namespace runs immediately.
	c.OnFirstSubscribe("sync:", func() { fired++ })
	if fired != 2 {
		t.Errorf("late hook did not run immediately, fired=%d", fired)
	}
}

func TestFirstCommandHook(t *testing.T) {
	c := New(nil)
	fired := 0
	c.OnFirstCommand("sync:start", func() { fired++ })

	c.Send(Command{Kind: "sync:start"})
	c.Send(Command{Kind: "sync:start"})

	if fired != 1 {
		t.Errorf("hook fired %d times, want 1", fired)
	}
}

func TestWithError(t *testing.T) {
	c := New(nil)
	ch, unsub := c.Subscribe("core:", 10)
	defer unsub()

	in := errors.New("boom")
	out := c.WithError(in, "fetch history")
	if out == nil || !errors.Is(out, in) {
		t.Fatalf("WithError did not wrap the original error: %v", out)
	}

	select {
	case evt := <-ch:
		p, ok := evt.Payload.(ErrorPayload)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if p.Context != "fetch history" || p.Message != "boom" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for core:error event")
	}

	if c.WithError(nil, "noop") != nil {
		t.Error("nil error should pass through as nil")
	}
}

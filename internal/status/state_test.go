package status

import (
	"testing"
	"time"

	"github.com/pcruz7/tgarc/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
}

func TestValidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(AuthRequired); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(Ready); err != nil {
		t.Fatal(err)
	}
	if m.Current() != Ready {
		t.Errorf("state = %s, want READY", m.Current())
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("BOOTING -> READY should be rejected")
	}
	if m.Current() != Booting {
		t.Errorf("state mutated on invalid transition: %s", m.Current())
	}
}

func TestTransitionPublishesEvent(t *testing.T) {
	core := bus.New(nil)
	m := NewMachine(core)

	ch, unsub := core.Subscribe("session:", 10)
	defer unsub()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status_changed event")
	}
}

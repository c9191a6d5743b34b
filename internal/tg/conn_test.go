package tg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pcruz7/tgarc/internal/bus"
	"github.com/pcruz7/tgarc/internal/retry"
	"github.com/pcruz7/tgarc/internal/session"
	"github.com/pcruz7/tgarc/internal/status"
	"go.uber.org/zap"
)

func testConn(t *testing.T, client RemoteClient) (*Conn, *bus.Core, *session.Store) {
	t.Helper()
	core := bus.New(nil)
	sessions := session.NewStoreAt(t.TempDir())
	machine := status.NewMachine(core)
	conn := NewConn("main", client, sessions, core, machine, zap.NewNop())
	return conn, core, sessions
}

func TestLoginAlreadyAuthorized(t *testing.T) {
	client := newFakeClient()
	conn, core, sessions := testConn(t, client)

	ch, unsub := core.Subscribe("auth:", 10)
	defer unsub()

	if err := sessions.Save("main", "old-token"); err != nil {
		t.Fatal(err)
	}
	if err := conn.Login(context.Background()); err != nil {
		t.Fatal(err)
	}

	if client.restored != "old-token" {
		t.Errorf("restored token = %q, want old-token", client.restored)
	}
	tok, _ := sessions.Load("main")
	if tok != "exported-token" {
		t.Errorf("persisted token = %q, want exported-token", tok)
	}

	select {
	case evt := <-ch:
		if evt.Kind != "auth:connected" {
			t.Errorf("event = %q, want auth:connected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for auth:connected")
	}
}

func TestLoginInteractiveChallenge(t *testing.T) {
	client := newFakeClient()
	client.authorized = false
	client.code = "12345"
	client.needPassword = true
	client.password = "hunter2"
	conn, core, sessions := testConn(t, client)

	events, unsub := core.Subscribe("auth:", 10)
	defer unsub()

	// Answer the challenges as an external caller would.
	go func() {
		for evt := range events {
			switch evt.Kind {
			case "auth:code-needed":
				core.Send(bus.Command{Kind: "auth:code", Payload: "12345"})
			case "auth:password-needed":
				core.Send(bus.Command{Kind: "auth:password", Payload: "hunter2"})
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Login(ctx); err != nil {
		t.Fatal(err)
	}

	tok, _ := sessions.Load("main")
	if tok != "exported-token" {
		t.Errorf("token not persisted after challenge: %q", tok)
	}
}

func TestLoginBadCodeSurfacesAuthError(t *testing.T) {
	client := newFakeClient()
	client.authorized = false
	client.code = "12345"
	conn, core, sessions := testConn(t, client)

	events, unsub := core.Subscribe("auth:code-needed", 10)
	defer unsub()
	go func() {
		<-events
		core.Send(bus.Command{Kind: "auth:code", Payload: "99999"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := conn.Login(ctx)
	if err == nil {
		t.Fatal("expected login failure")
	}
	if retry.Classify(err) != retry.Auth {
		t.Errorf("bad code classified %v, want auth", retry.Classify(err))
	}
	// No partial state persisted.
	if tok, _ := sessions.Load("main"); tok != "" {
		t.Errorf("token persisted after failed challenge: %q", tok)
	}
}

func TestLoginChallengeCancelled(t *testing.T) {
	client := newFakeClient()
	client.authorized = false
	conn, _, _ := testConn(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Login(ctx) }()

	// Nobody answers the code challenge; the caller gives up.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("login did not return after cancel")
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	client := newFakeClient()
	conn, _, sessions := testConn(t, client)

	if err := conn.Login(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := conn.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	if tok, _ := sessions.Load("main"); tok != "" {
		t.Errorf("token survived logout: %q", tok)
	}
	if client.connected {
		t.Error("transport still connected after logout")
	}
}

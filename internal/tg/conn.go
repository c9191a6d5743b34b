package tg

import (
	"context"
	"fmt"
	"time"

	"github.com/pcruz7/tgarc/internal/bus"
	"github.com/pcruz7/tgarc/internal/retry"
	"github.com/pcruz7/tgarc/internal/session"
	"github.com/pcruz7/tgarc/internal/status"
	"go.uber.org/zap"
)

// Conn establishes and owns the transport session for one account. The
// interactive login challenge is driven over the bus: the connection emits
// auth:code-needed / auth:password-needed events and suspends until the
// matching auth:code / auth:password command arrives. No timeout is imposed
// here; callers bound the wait through ctx.
type Conn struct {
	account  string
	client   RemoteClient
	sessions *session.Store
	core     *bus.Core
	machine  *status.Machine
	logger   *zap.Logger
}

// NewConn creates a connection for the account.
func NewConn(account string, client RemoteClient, sessions *session.Store, core *bus.Core, machine *status.Machine, logger *zap.Logger) *Conn {
	return &Conn{
		account:  account,
		client:   client,
		sessions: sessions,
		core:     core,
		machine:  machine,
		logger:   logger,
	}
}

// Login restores any persisted session, opens the transport, and drives the
// interactive challenge when the platform is not yet authorized. The new
// session token is persisted only after the whole flow succeeds; a failed
// challenge leaves no partial state behind.
func (c *Conn) Login(ctx context.Context) error {
	token, err := c.sessions.Load(c.account)
	if err != nil {
		return c.core.WithError(err, "load session")
	}
	if token != "" {
		if err := c.client.RestoreSession(token); err != nil {
			// A corrupt token is not fatal; the challenge will run.
			c.logger.Warn("failed to restore session token", zap.Error(err))
		}
	}

	_ = c.machine.Transition(status.Connecting)

	_, err = retry.Do(ctx, c.logger, "connect",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.client.Connect(ctx)
		}, retry.DefaultOptions())
	if err != nil {
		_ = c.machine.Transition(status.Error)
		return c.core.WithError(err, "connect transport")
	}

	authorized, err := c.client.IsAuthorized(ctx)
	if err != nil {
		_ = c.machine.Transition(status.Error)
		return c.core.WithError(err, "check authorization")
	}

	if !authorized {
		_ = c.machine.Transition(status.AuthRequired)
		err := c.client.SignIn(ctx, c.challenge("auth:code"), c.challenge("auth:password"))
		if err != nil {
			// Credential failures surface immediately and are never
			// retried; they are auth events, not generic failures.
			if retry.Classify(err) == retry.Auth {
				c.logger.Warn("sign-in rejected", zap.String("class", "auth"), zap.Error(err))
				c.core.Emit(bus.Event{Kind: "auth:failed", Timestamp: time.Now(), Payload: err.Error()})
				return fmt.Errorf("sign in: %w", err)
			}
			return c.core.WithError(err, "sign in")
		}
		_ = c.machine.Transition(status.Connecting)
	}

	newToken, err := c.client.ExportSession(ctx)
	if err != nil {
		return c.core.WithError(err, "export session")
	}
	if err := c.sessions.Save(c.account, newToken); err != nil {
		return c.core.WithError(err, "persist session")
	}

	_ = c.machine.Transition(status.Ready)
	c.core.Emit(bus.Event{Kind: "auth:connected", Timestamp: time.Now(), Payload: c.account})
	c.logger.Info("connected", zap.String("account", c.account))
	return nil
}

// challenge builds a provider that emits <kind>-needed and suspends until
// the matching command arrives on the bus. The command channel is
// registered before emitting so a prompt answer cannot be lost.
func (c *Conn) challenge(kind string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		ch, unreg := c.core.OnCommand(kind, 1)
		defer unreg()

		c.core.Emit(bus.Event{Kind: kind + "-needed", Timestamp: time.Now(), Payload: c.account})

		select {
		case cmd := <-ch:
			value, ok := cmd.Payload.(string)
			if !ok {
				return "", fmt.Errorf("%s: payload must be a string, got %T", kind, cmd.Payload)
			}
			return value, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Logout closes the transport and deletes the local session token. This is
// the only path that invalidates a session early.
func (c *Conn) Logout(_ context.Context) error {
	if err := c.client.Disconnect(); err != nil {
		c.logger.Warn("disconnect failed", zap.Error(err))
	}
	if err := c.sessions.Delete(c.account); err != nil {
		return c.core.WithError(err, "delete session")
	}
	_ = c.machine.Transition(status.AuthRequired)
	c.core.Emit(bus.Event{Kind: "auth:logged_out", Timestamp: time.Now(), Payload: c.account})
	return nil
}

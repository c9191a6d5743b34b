package bus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Core is the process-wide event core: an in-process publish/subscribe bus
// with two disjoint vocabularies. Events flow out of the core (Emit/Subscribe),
// commands flow into it (Send/OnCommand). Registering interest in a kind for
// the first time can fire a lazy hook, so expensive dependent services are
// only wired up once somebody actually cares.
type Core struct {
	mu     sync.RWMutex
	logger *zap.Logger

	subs    map[int]*subscription
	cmdSubs map[int]*cmdSubscription
	next    int

	subHooks  map[string][]func()
	cmdHooks  map[string][]func()
	seenSubs  map[string]bool
	seenCmds  map[string]bool
}

type subscription struct {
	namespace string
	ch        chan Event
}

type cmdSubscription struct {
	kind string
	ch   chan Command
}

// New creates a new event core. The logger may be nil.
func New(logger *zap.Logger) *Core {
	return &Core{
		logger:   logger,
		subs:     make(map[int]*subscription),
		cmdSubs:  make(map[int]*cmdSubscription),
		subHooks: make(map[string][]func()),
		cmdHooks: make(map[string][]func()),
		seenSubs: make(map[string]bool),
		seenCmds: make(map[string]bool),
	}
}

// Emit sends a from-core event to all subscribers whose namespace is a
// prefix of evt.Kind.
func (c *Core) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Drop event if subscriber is full (non-blocking).
			}
		}
	}
}

// Subscribe returns a channel that receives events matching the given
// namespace prefix. bufSize controls the channel buffer. Returns the channel
// and an unsubscribe function. The first subscription for a namespace fires
// any hooks registered via OnFirstSubscribe.
func (c *Core) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = &subscription{namespace: namespace, ch: ch}
	hooks := c.markSeenLocked(c.seenSubs, c.subHooks, namespace)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	return ch, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Send delivers a to-core command to all registered handlers for its kind.
// The first command of a kind fires any hooks registered via OnFirstCommand.
func (c *Core) Send(cmd Command) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	c.mu.Lock()
	hooks := c.markSeenLocked(c.seenCmds, c.cmdHooks, cmd.Kind)
	targets := make([]chan Command, 0, len(c.cmdSubs))
	for _, sub := range c.cmdSubs {
		if sub.kind == cmd.Kind {
			targets = append(targets, sub.ch)
		}
	}
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	for _, ch := range targets {
		select {
		case ch <- cmd:
		default:
			// Drop command if handler is full (non-blocking).
		}
	}
}

// OnCommand returns a channel that receives commands of exactly the given
// kind, plus an unregister function.
func (c *Core) OnCommand(kind string, bufSize int) (<-chan Command, func()) {
	ch := make(chan Command, bufSize)
	c.mu.Lock()
	id := c.next
	c.next++
	c.cmdSubs[id] = &cmdSubscription{kind: kind, ch: ch}
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.cmdSubs, id)
		c.mu.Unlock()
	}
}

// OnFirstSubscribe registers fn to run the first time anybody subscribes to
// the given namespace. If a matching subscription already exists, fn runs
// immediately.
func (c *Core) OnFirstSubscribe(namespace string, fn func()) {
	c.mu.Lock()
	if c.seenSubs[namespace] {
		c.mu.Unlock()
		fn()
		return
	}
	c.subHooks[namespace] = append(c.subHooks[namespace], fn)
	c.mu.Unlock()
}

// OnFirstCommand registers fn to run the first time a command of the given
// kind is sent. If one was already sent, fn runs immediately.
func (c *Core) OnFirstCommand(kind string, fn func()) {
	c.mu.Lock()
	if c.seenCmds[kind] {
		c.mu.Unlock()
		fn()
		return
	}
	c.cmdHooks[kind] = append(c.cmdHooks[kind], fn)
	c.mu.Unlock()
}

// markSeenLocked marks key as seen and returns hooks pending for it.
// Caller must hold c.mu.
func (c *Core) markSeenLocked(seen map[string]bool, hooks map[string][]func(), key string) []func() {
	if seen[key] {
		return nil
	}
	seen[key] = true
	pending := hooks[key]
	delete(hooks, key)
	return pending
}

// WithError is the single error funnel: it logs the error with its context,
// emits a core:error event, and returns a normalized error for the caller to
// throw or store. No error path should bypass it on the way out of the core.
func (c *Core) WithError(err error, context string, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	if c.logger != nil {
		c.logger.Error(context, append(fields, zap.Error(err))...)
	}
	c.Emit(Event{
		Kind:      "core:error",
		Timestamp: time.Now(),
		Payload:   ErrorPayload{Context: context, Message: err.Error()},
	})
	return fmt.Errorf("%s: %w", context, err)
}

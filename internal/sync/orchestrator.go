package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pcruz7/tgarc/internal/bus"
	"github.com/pcruz7/tgarc/internal/scheduler"
	"github.com/pcruz7/tgarc/internal/store"
	"go.uber.org/zap"
)

// Request asks for a multi-chat sync of one kind. Priorities are optional;
// a chat without an entry gets priority 0. Higher priorities run first.
type Request struct {
	ChatIDs    []int64
	Kind       string
	Priorities map[int64]int
	Options    Options
}

// CancelRequest is the payload of sync:cancel commands.
type CancelRequest struct {
	ChatID int64
	Kind   string
}

// ChatStatus is the per-chat slice of a progress report. Processed counts
// archived messages; Total is -1 while the platform has not disclosed one.
type ChatStatus struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

// Progress is the payload of sync:progress events. Chats always carries the
// full per-chat map, so consumers never need to merge deltas.
type Progress struct {
	Kind    string               `json:"kind"`
	Total   int                  `json:"total"`
	Done    int                  `json:"done"`
	Percent int                  `json:"percent"`
	Chats   map[int64]ChatStatus `json:"chats"`
}

// StatusReader reads back persisted task state.
type StatusReader interface {
	GetSyncStatus(chatID int64, kind string) (*store.SyncStatus, error)
}

type kindRuntime struct {
	sched *scheduler.Scheduler
	exec  Executor
}

// Orchestrator drives multi-chat sync requests. Tasks are submitted to the
// kind's scheduler one at a time, highest priority first, each awaited
// before the next goes in; the scheduler still owns concurrency and
// dedup. Progress, completion, and failure are published on the bus.
type Orchestrator struct {
	core     *bus.Core
	logger   *zap.Logger
	statuses StatusReader
	kinds    map[string]kindRuntime
}

func NewOrchestrator(core *bus.Core, statuses StatusReader, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		core:     core,
		logger:   logger,
		statuses: statuses,
		kinds:    make(map[string]kindRuntime),
	}
}

// RegisterKind wires a scheduler/executor pair for a task kind.
func (o *Orchestrator) RegisterKind(kind string, sched *scheduler.Scheduler, exec Executor) {
	o.kinds[kind] = kindRuntime{sched: sched, exec: exec}
}

// StartMultiSync runs the request to completion. The returned error joins
// all per-chat failures; a partial failure still syncs the other chats.
func (o *Orchestrator) StartMultiSync(ctx context.Context, req Request) error {
	rt, ok := o.kinds[req.Kind]
	if !ok {
		return o.core.WithError(fmt.Errorf("unknown sync kind %q", req.Kind), "start multi sync")
	}
	if len(req.ChatIDs) == 0 {
		return o.core.WithError(errors.New("no chats requested"), "start multi sync")
	}

	type job struct {
		chatID   int64
		priority int
	}
	jobs := make([]job, 0, len(req.ChatIDs))
	run := &multiRun{chats: make(map[int64]ChatStatus, len(req.ChatIDs))}
	for _, id := range req.ChatIDs {
		jobs = append(jobs, job{chatID: id, priority: req.Priorities[id]})
		run.chats[id] = ChatStatus{Status: scheduler.StatusQueued, Total: -1}
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].priority > jobs[j].priority })

	total := len(jobs)
	done := 0
	o.emitProgress(req.Kind, total, done, run)

	var failures []error
	for _, j := range jobs {
		chatID := j.chatID
		run.set(chatID, func(st *ChatStatus) { st.Status = scheduler.StatusRunning })
		o.emitProgress(req.Kind, total, done, run)

		waiter, err := rt.sched.Schedule(ctx, scheduler.Task{
			ChatID:   chatID,
			Priority: j.priority,
			Run: func(ctx context.Context) error {
				return rt.exec.Execute(ctx, chatID, req.Options, func(processed, chatTotal int) {
					run.set(chatID, func(st *ChatStatus) {
						st.Processed = processed
						st.Total = chatTotal
					})
					o.emitProgress(req.Kind, total, done, run)
				})
			},
		})
		if err == nil {
			err = <-waiter
		}

		switch {
		case err == nil:
			run.set(chatID, func(st *ChatStatus) { st.Status = scheduler.StatusCompleted })
		case errors.Is(err, context.Canceled):
			msg := err.Error()
			run.set(chatID, func(st *ChatStatus) {
				st.Status = scheduler.StatusCancelled
				st.Error = msg
			})
			failures = append(failures, fmt.Errorf("chat %d: %w", chatID, err))
		default:
			msg := err.Error()
			run.set(chatID, func(st *ChatStatus) {
				st.Status = scheduler.StatusFailed
				st.Error = msg
			})
			failures = append(failures, fmt.Errorf("chat %d: %w", chatID, err))
			o.logger.Warn("chat sync failed",
				zap.String("kind", req.Kind),
				zap.Int64("chat_id", chatID),
				zap.Error(err))
		}
		done++
		o.emitProgress(req.Kind, total, done, run)
	}

	if len(failures) > 0 {
		err := errors.Join(failures...)
		o.core.Emit(bus.Event{Kind: "sync:failed", Payload: Progress{
			Kind: req.Kind, Total: total, Done: done,
			Percent: percent(done, total), Chats: run.snapshot(),
		}})
		return err
	}
	o.core.Emit(bus.Event{Kind: "sync:completed", Payload: Progress{
		Kind: req.Kind, Total: total, Done: done, Percent: 100, Chats: run.snapshot(),
	}})
	return nil
}

// CancelSync withdraws a chat's task of the given kind.
func (o *Orchestrator) CancelSync(chatID int64, kind string) bool {
	rt, ok := o.kinds[kind]
	if !ok {
		return false
	}
	return rt.sched.Cancel(chatID)
}

// GetSyncStatus returns the persisted state for a chat and kind, nil when
// the chat was never synced.
func (o *Orchestrator) GetSyncStatus(chatID int64, kind string) (*store.SyncStatus, error) {
	return o.statuses.GetSyncStatus(chatID, kind)
}

// multiRun is the mutable state of one StartMultiSync call. Executors
// report progress from scheduler goroutines, so access is mutex-guarded.
type multiRun struct {
	mu    sync.Mutex
	chats map[int64]ChatStatus
}

func (r *multiRun) set(chatID int64, mutate func(*ChatStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.chats[chatID]
	mutate(&st)
	r.chats[chatID] = st
}

// snapshot copies the full per-chat map, so every emission is
// self-contained and consumers never merge deltas.
func (r *multiRun) snapshot() map[int64]ChatStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]ChatStatus, len(r.chats))
	for id, st := range r.chats {
		out[id] = st
	}
	return out
}

func (o *Orchestrator) emitProgress(kind string, total, done int, run *multiRun) {
	o.core.Emit(bus.Event{Kind: "sync:progress", Payload: Progress{
		Kind:    kind,
		Total:   total,
		Done:    done,
		Percent: percent(done, total),
		Chats:   run.snapshot(),
	}})
}

// percent maps completion onto 5..100: the initial report already shows 5
// so consumers can render a started bar, and only full completion shows 100.
func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return 5 + done*95/total
}

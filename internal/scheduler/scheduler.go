package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Task states persisted to storage and reported to callers.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Default concurrency caps per task kind. Metadata syncs are cheap header
// fetches; message syncs hold history cursors and takeout sessions.
const (
	DefaultMetadataConcurrency = 5
	DefaultMessageConcurrency  = 3
)

// ErrDuplicateChat is returned when a chat already has an active or queued
// task of this scheduler's kind.
var ErrDuplicateChat = errors.New("chat already scheduled")

// StatusRecorder persists task state transitions.
type StatusRecorder interface {
	RecordSyncStatus(chatID int64, kind, status, errMsg string) error
}

// Task is one unit of per-chat sync work. Priority orders the queue,
// higher first; equal priorities run in submission order.
type Task struct {
	ChatID   int64
	Priority int
	Run      func(ctx context.Context) error
}

type queuedTask struct {
	task Task
	ctx  context.Context
	seq  uint64
	done chan error

	// cancelled marks a task withdrawn while waiting; it is skipped at
	// drain. Guarded by the scheduler mutex.
	cancelled bool
}

// Scheduler runs tasks of one kind with bounded concurrency. At most max
// tasks run at once; the rest wait in a priority queue. One chat never has
// two live tasks of the same kind.
type Scheduler struct {
	kind     string
	max      int
	recorder StatusRecorder
	logger   *zap.Logger

	mu     sync.Mutex
	active map[int64]context.CancelFunc
	queue  *Heap[*queuedTask]
	seq    uint64
}

// New creates a scheduler for one task kind. max <= 0 falls back to the
// kind's default cap.
func New(kind string, max int, recorder StatusRecorder, logger *zap.Logger) *Scheduler {
	if max <= 0 {
		if kind == "metadata" {
			max = DefaultMetadataConcurrency
		} else {
			max = DefaultMessageConcurrency
		}
	}
	return &Scheduler{
		kind:     kind,
		max:      max,
		recorder: recorder,
		logger:   logger,
		active:   make(map[int64]context.CancelFunc),
		queue: NewHeap(func(a, b *queuedTask) bool {
			if a.task.Priority != b.task.Priority {
				return a.task.Priority > b.task.Priority
			}
			return a.seq < b.seq
		}),
	}
}

// Schedule submits a task. It starts immediately when a slot is free,
// otherwise it waits in the queue. The returned channel delivers the task's
// terminal error (nil on success) exactly once. A chat with an active or
// queued task of this kind is rejected.
func (s *Scheduler) Schedule(ctx context.Context, task Task) (<-chan error, error) {
	if task.Run == nil {
		return nil, fmt.Errorf("task for chat %d has no run function", task.ChatID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.active[task.ChatID]; running || s.queuedLocked(task.ChatID) {
		s.logger.Warn("rejecting duplicate sync task",
			zap.String("kind", s.kind),
			zap.Int64("chat_id", task.ChatID))
		return nil, fmt.Errorf("%w: chat %d kind %s", ErrDuplicateChat, task.ChatID, s.kind)
	}

	s.persist(task.ChatID, StatusQueued, "")
	q := &queuedTask{task: task, ctx: ctx, seq: s.seq, done: make(chan error, 1)}
	s.seq++

	if len(s.active) < s.max {
		s.startLocked(q)
	} else {
		s.queue.Push(q)
	}
	return q.done, nil
}

// Cancel stops a chat's task. Running tasks have their context cancelled;
// queued tasks are marked and skipped when the queue drains. Returns false
// when the chat has no task here.
func (s *Scheduler) Cancel(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.active[chatID]; ok {
		cancel()
		return true
	}
	found := false
	s.queue.Contains(func(q *queuedTask) bool {
		if q.task.ChatID == chatID && !q.cancelled {
			q.cancelled = true
			found = true
			return true
		}
		return false
	})
	return found
}

// ActiveCount returns the number of running tasks.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// QueuedCount returns the number of waiting tasks, including ones already
// marked cancelled.
func (s *Scheduler) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) queuedLocked(chatID int64) bool {
	return s.queue.Contains(func(q *queuedTask) bool {
		return q.task.ChatID == chatID && !q.cancelled
	})
}

// startLocked moves a task to the active set and launches it. Caller holds
// the mutex.
func (s *Scheduler) startLocked(q *queuedTask) {
	ctx, cancel := context.WithCancel(q.ctx)
	s.active[q.task.ChatID] = cancel
	s.persist(q.task.ChatID, StatusRunning, "")
	go s.run(ctx, cancel, q)
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, q *queuedTask) {
	err := q.task.Run(ctx)

	status := StatusCompleted
	errMsg := ""
	switch {
	case ctx.Err() != nil:
		status = StatusCancelled
		if err == nil {
			err = ctx.Err()
		}
		errMsg = err.Error()
	case err != nil:
		status = StatusFailed
		errMsg = err.Error()
	}
	s.persist(q.task.ChatID, status, errMsg)

	q.done <- err
	close(q.done)

	s.mu.Lock()
	cancel()
	delete(s.active, q.task.ChatID)
	s.drainLocked()
	s.mu.Unlock()
}

// drainLocked starts queued tasks while slots are free, dropping tasks that
// were cancelled while waiting. Caller holds the mutex.
func (s *Scheduler) drainLocked() {
	for len(s.active) < s.max {
		next, ok := s.queue.Pop()
		if !ok {
			return
		}
		if next.cancelled {
			s.persist(next.task.ChatID, StatusCancelled, context.Canceled.Error())
			next.done <- context.Canceled
			close(next.done)
			continue
		}
		s.startLocked(next)
	}
}

func (s *Scheduler) persist(chatID int64, status, errMsg string) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordSyncStatus(chatID, s.kind, status, errMsg); err != nil {
		s.logger.Warn("failed to persist sync status",
			zap.String("kind", s.kind),
			zap.Int64("chat_id", chatID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// Package scheduler queues and runs per-chat sync tasks with bounded
// concurrency and priority ordering.
package scheduler

import "container/heap"

// Heap is a priority heap over T with a caller-supplied ordering. less
// reporting true means a sorts before b and pops first.
type Heap[T any] struct {
	inner *sliceHeap[T]
}

// NewHeap creates an empty heap ordered by less.
func NewHeap[T any](less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{inner: &sliceHeap[T]{less: less}}
}

func (h *Heap[T]) Len() int { return len(h.inner.items) }

func (h *Heap[T]) Push(item T) { heap.Push(h.inner, item) }

// Pop removes and returns the top item. ok is false on an empty heap.
func (h *Heap[T]) Pop() (T, bool) {
	var zero T
	if len(h.inner.items) == 0 {
		return zero, false
	}
	return heap.Pop(h.inner).(T), true
}

// Peek returns the top item without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	var zero T
	if len(h.inner.items) == 0 {
		return zero, false
	}
	return h.inner.items[0], true
}

// Contains reports whether any queued item satisfies pred. Linear scan;
// queues here are small.
func (h *Heap[T]) Contains(pred func(T) bool) bool {
	for _, item := range h.inner.items {
		if pred(item) {
			return true
		}
	}
	return false
}

// sliceHeap adapts a generic slice to container/heap.
type sliceHeap[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (s *sliceHeap[T]) Len() int           { return len(s.items) }
func (s *sliceHeap[T]) Less(i, j int) bool { return s.less(s.items[i], s.items[j]) }
func (s *sliceHeap[T]) Swap(i, j int)      { s.items[i], s.items[j] = s.items[j], s.items[i] }

func (s *sliceHeap[T]) Push(x any) { s.items = append(s.items, x.(T)) }

func (s *sliceHeap[T]) Pop() any {
	n := len(s.items)
	item := s.items[n-1]
	var zero T
	s.items[n-1] = zero
	s.items = s.items[:n-1]
	return item
}

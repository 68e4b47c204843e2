// Package history keeps bounded undo/redo stacks of snapshots.
//
// A Manager does not own the present value. Callers pass the present in
// and receive the value that should become present, which lets the owner
// apply it under its own lock together with persistence and notification.
package history

import "github.com/Etesie/fauna-typed/pkg/constants"

// Manager is a linear undo/redo history. It is not safe for concurrent
// use; the owning cache serializes access.
type Manager[T any] struct {
	past   []T
	future []T
	limit  int
}

// New returns a Manager keeping at most limit snapshots per stack. A
// non-positive limit selects constants.DefaultHistoryLimit.
func New[T any](limit int) *Manager[T] {
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	return &Manager[T]{limit: limit}
}

// Push records present before a mutation is applied and clears the redo
// stack. The oldest snapshot is evicted once the limit is exceeded.
func (m *Manager[T]) Push(present T) {
	m.past = pushBounded(m.past, present, m.limit)
	clear(m.future)
	m.future = m.future[:0]
}

// Undo returns the snapshot to restore and stores present for redo. ok is
// false, and nothing changes, when there is nothing to undo.
func (m *Manager[T]) Undo(present T) (prev T, ok bool) {
	if len(m.past) == 0 {
		return prev, false
	}
	prev, m.past = pop(m.past)
	m.future = pushBounded(m.future, present, m.limit)
	return prev, true
}

// Redo is the inverse of Undo.
func (m *Manager[T]) Redo(present T) (next T, ok bool) {
	if len(m.future) == 0 {
		return next, false
	}
	next, m.future = pop(m.future)
	m.past = pushBounded(m.past, present, m.limit)
	return next, true
}

func (m *Manager[T]) CanUndo() bool { return len(m.past) > 0 }

func (m *Manager[T]) CanRedo() bool { return len(m.future) > 0 }

// Len returns the sizes of the undo and redo stacks.
func (m *Manager[T]) Len() (past, future int) {
	return len(m.past), len(m.future)
}

func (m *Manager[T]) Limit() int { return m.limit }

// Clear drops both stacks.
func (m *Manager[T]) Clear() {
	m.past = nil
	m.future = nil
}

func pushBounded[T any](stack []T, v T, limit int) []T {
	stack = append(stack, v)
	if over := len(stack) - limit; over > 0 {
		var zero T
		for i := 0; i < over; i++ {
			stack[i] = zero
		}
		stack = append(stack[:0], stack[over:]...)
	}
	return stack
}

func pop[T any](stack []T) (T, []T) {
	var zero T
	last := len(stack) - 1
	v := stack[last]
	stack[last] = zero
	return v, stack[:last]
}

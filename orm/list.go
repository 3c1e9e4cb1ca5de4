package orm

import "context"

// List is the handle spec §4.3 calls the "list wrapper": a view over a
// batch of materialized instances that the caller releases once, rather
// than each instance individually. Go's garbage collector, not List
// itself, owns the backing memory (see arena.Arena's own doc comment for
// the same reasoning) — Release exists so the API shape matches the
// engine-wide "acquire a result set, use it, release it" discipline even
// though nothing here actually frees anything early.
type List[T any, PT interface {
	*T
	Model
}] struct {
	items    []PT
	released bool
}

// NewList wraps items as a List. Used by AllList and by terminals that
// materialize a full instance slice.
func NewList[T any, PT interface {
	*T
	Model
}](items []PT) *List[T, PT] {
	return &List[T, PT]{items: items}
}

// Items returns every instance in the list.
func (l *List[T, PT]) Items() []PT { return l.items }

// First returns the first instance, or (nil, false) if the list is empty.
func (l *List[T, PT]) First() (PT, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	return l.items[0], true
}

// Last returns the last instance, or (nil, false) if the list is empty.
func (l *List[T, PT]) Last() (PT, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	return l.items[len(l.items)-1], true
}

// Count reports how many instances the list holds.
func (l *List[T, PT]) Count() int { return len(l.items) }

// Release marks the list consumed. Further use after Release is a caller
// bug, not a runtime hazard — Go's GC retains every instance until nothing
// references it regardless of Release having run.
func (l *List[T, PT]) Release() {
	l.released = true
}

// Released reports whether Release has been called, for tests that want
// to assert the release-on-scope-exit discipline is actually followed.
func (l *List[T, PT]) Released() bool { return l.released }

// AllList runs the accumulated query and wraps the result in a List.
func (q *Query[T, PT]) AllList(ctx context.Context) (*List[T, PT], error) {
	items, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	return NewList[T, PT](items), nil
}

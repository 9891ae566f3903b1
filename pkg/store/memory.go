package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Collection backend. Documents keep insertion order
// so query results are stable across calls.
type Memory[T any] struct {
	name string

	mu    sync.RWMutex
	docs  map[string]object
	order []string

	subMu   sync.Mutex
	subs    map[int]*memSub
	nextSub int
}

type memSub struct {
	filter Filter
	ch     chan []object
	done   chan struct{}
	once   sync.Once
}

// NewMemory creates an empty in-memory collection.
func NewMemory[T any](name string) *Memory[T] {
	return &Memory[T]{
		name: name,
		docs: make(map[string]object),
		subs: make(map[int]*memSub),
	}
}

var _ Collection[any] = (*Memory[any])(nil)

func (m *Memory[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	obj, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%s", ErrNotFound, m.name, id)
	}
	return decode[T](obj)
}

func (m *Memory[T]) Query(_ context.Context, filter Filter) ([]T, error) {
	m.mu.RLock()
	objs := m.snapshotLocked(filter)
	m.mu.RUnlock()

	out := make([]T, 0, len(objs))
	for _, obj := range objs {
		doc, err := decode[T](obj)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (m *Memory[T]) Create(_ context.Context, doc T) (T, error) {
	var zero T
	obj, id, err := prepare(doc)
	if err != nil {
		return zero, err
	}

	m.mu.Lock()
	if _, taken := m.docs[id]; taken {
		m.mu.Unlock()
		return zero, fmt.Errorf("%w: %s/%s", ErrExists, m.name, id)
	}
	m.docs[id] = obj
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.notify()
	return decode[T](obj)
}

func (m *Memory[T]) Update(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	obj, ok := m.docs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", ErrNotFound, m.name, id)
	}
	m.docs[id] = merge(obj, fields)
	m.mu.Unlock()

	m.notify()
	return nil
}

// Subscribe delivers the current snapshot immediately, then again after every
// change to the collection. Callbacks run on a dedicated goroutine;
// intermediate snapshots may be coalesced, the latest always wins.
func (m *Memory[T]) Subscribe(filter Filter, snapshot func([]T)) (CancelFunc, error) {
	sub := &memSub{
		filter: filter,
		ch:     make(chan []object, 1),
		done:   make(chan struct{}),
	}

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = sub
	m.subMu.Unlock()

	m.mu.RLock()
	initial := m.snapshotLocked(filter)
	m.mu.RUnlock()
	sub.push(initial)

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case objs := <-sub.ch:
				select {
				case <-sub.done:
					return
				default:
				}
				docs := make([]T, 0, len(objs))
				for _, obj := range objs {
					doc, err := decode[T](obj)
					if err != nil {
						continue
					}
					docs = append(docs, doc)
				}
				snapshot(docs)
			}
		}
	}()

	cancel := func() {
		sub.once.Do(func() { close(sub.done) })
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
	return cancel, nil
}

// snapshotLocked returns matching documents in insertion order. Caller holds
// at least a read lock.
func (m *Memory[T]) snapshotLocked(filter Filter) []object {
	var out []object
	for _, id := range m.order {
		if obj, ok := m.docs[id]; ok && filter.matches(obj) {
			out = append(out, obj)
		}
	}
	return out
}

func (m *Memory[T]) notify() {
	m.subMu.Lock()
	subs := make([]*memSub, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subMu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range subs {
		s.push(m.snapshotLocked(s.filter))
	}
}

// push replaces any pending snapshot with the newer one.
func (s *memSub) push(objs []object) {
	for {
		select {
		case s.ch <- objs:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

package store

import (
	"sync"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

// DefaultCapacity is the number of events retained when none is configured.
const DefaultCapacity = 100

// Store is a fixed-capacity ring of the most recent events.
// Safe for concurrent use; readers get copies.
type Store struct {
	mu    sync.RWMutex
	buf   []event.ConsoleEvent
	head  int // index of the oldest element
	size  int
	total uint64 // events ever appended, survives Clear
}

// New allocates a Store holding at most capacity events.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]event.ConsoleEvent, capacity)}
}

// Append stores ev and reports whether the oldest event was evicted to make room.
func (s *Store) Append(ev event.ConsoleEvent) (evicted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if s.size < len(s.buf) {
		s.buf[(s.head+s.size)%len(s.buf)] = ev
		s.size++
		return false
	}
	s.buf[s.head] = ev
	s.head = (s.head + 1) % len(s.buf)
	return true
}

// Recent returns up to limit events, newest first. limit <= 0 means all.
func (s *Store) Recent(limit int) []event.ConsoleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]event.ConsoleEvent, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.head+s.size-1-i)%len(s.buf)]
	}
	return out
}

// Chronological returns every stored event, oldest first.
func (s *Store) Chronological() []event.ConsoleEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.ConsoleEvent, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Clear drops every stored event. Clearing an empty store is a no-op.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.buf)
	s.head = 0
	s.size = 0
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Cap() int { return len(s.buf) }

// Total is the number of events appended since start.
func (s *Store) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

package guard

import (
	"context"
	"sync"
	"time"
)

// WindowState is what a store reports after a record attempt.
type WindowState struct {
	Allowed bool
	// Count is the number of live entries after the attempt.
	Count int
	// Oldest is the earliest live entry, used to derive Retry-After.
	Oldest time.Time
}

// WindowStore persists per-key timestamp logs. Record must be atomic per key: prune, count,
// and append happen as one step.
type WindowStore interface {
	Record(ctx context.Context, key string, now time.Time, limit Limit) (WindowState, error)
	Prune(ctx context.Context, now time.Time) (int, error)
}

type window struct {
	stamps []time.Time
	span   time.Duration
}

// MemoryWindowStore keeps windows in process memory behind a single mutex.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

var _ WindowStore = (*MemoryWindowStore)(nil)

// NewMemoryWindowStore constructs an empty store.
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*window)}
}

// Record implements WindowStore.
func (s *MemoryWindowStore) Record(_ context.Context, key string, now time.Time, limit Limit) (WindowState, error) {
	limit = limit.normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.span = limit.Window
	w.stamps = pruneWindow(w.stamps, now, limit.Window)

	if len(w.stamps) >= limit.MaxEvents {
		return WindowState{Allowed: false, Count: len(w.stamps), Oldest: w.stamps[0]}, nil
	}
	w.stamps = append(w.stamps, now)
	return WindowState{Allowed: true, Count: len(w.stamps), Oldest: w.stamps[0]}, nil
}

// Prune implements WindowStore.
func (s *MemoryWindowStore) Prune(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		w.stamps = pruneWindow(w.stamps, now, w.span)
		if len(w.stamps) == 0 {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Entries returns a copy of the timestamps currently held for key, without pruning.
func (s *MemoryWindowStore) Entries(key string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return nil
	}
	out := make([]time.Time, len(w.stamps))
	copy(out, w.stamps)
	return out
}

// Len reports how many keys hold a window.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// pruneWindow keeps entries t with now-t < span. The input slice is reused.
func pruneWindow(stamps []time.Time, now time.Time, span time.Duration) []time.Time {
	kept := stamps[:0]
	for _, t := range stamps {
		if now.Sub(t) < span {
			kept = append(kept, t)
		}
	}
	return kept
}

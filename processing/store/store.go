// Package store holds the latest published detection snapshot.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"objwatch/internal/models"
)

// Store replaces its snapshot as a whole; readers never observe a mix of
// two publishes.
type Store struct {
	latest atomic.Pointer[models.Snapshot]
	seq    atomic.Uint64

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func New() *Store {
	s := &Store{subs: make(map[chan struct{}]struct{})}
	s.latest.Store(&models.Snapshot{})
	return s
}

// Set publishes a new snapshot. The detection slice is copied.
func (s *Store) Set(dets []models.Detection, stats models.Statistics, presence models.Presence) models.Snapshot {
	copied := make([]models.Detection, len(dets))
	copy(copied, dets)

	snap := &models.Snapshot{
		Seq:        s.seq.Add(1),
		UpdatedAt:  time.Now(),
		Detections: copied,
		Stats:      stats,
		Presence:   presence,
	}
	s.latest.Store(snap)
	s.notify()

	return *snap
}

// Latest returns the current snapshot. The returned slice must not be modified.
func (s *Store) Latest() models.Snapshot {
	return *s.latest.Load()
}

// Subscribe returns a channel signalled after every Set. Signals coalesce when
// the reader is slow; call Latest to read the data.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

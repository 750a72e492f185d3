package state

import (
	"sync"
)

// Snapshot is an immutable copy of the state at a given version.
type Snapshot struct {
	Version uint64 `json:"version"`
	State   State  `json:"state"`
}

// Store serialises dispatches for one session and fans changes out to subscribers.
type Store struct {
	mu      sync.RWMutex
	state   State
	version uint64

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	return &Store{
		state: initial.Clone(),
		subs:  make(map[int]chan Snapshot),
	}
}

// NewStoreAt restores a store at a known version.
func NewStoreAt(initial State, version uint64) *Store {
	s := NewStore(initial)
	s.version = version
	return s
}

// Dispatch applies a and returns the resulting snapshot.
func (s *Store) Dispatch(a Action) Snapshot {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	s.version++
	snap := Snapshot{Version: s.version, State: s.state.Clone()}
	s.mu.Unlock()

	s.publish(snap)
	return snap
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Version: s.version, State: s.state.Clone()}
}

// Subscribe registers a change feed. Slow subscribers only see the latest snapshot.
// The returned func unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *Store) publish(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// replace the undelivered snapshot with the newer one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

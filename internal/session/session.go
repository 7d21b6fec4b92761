// Package session owns the mutable state of one measurement run: the
// sequence counters and the FrameRecord store, behind a single lock.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/log"
	"firestige.xyz/framelat/internal/record"
)

// State is created at session start and discarded at session end.
type State struct {
	ID       uuid.UUID
	Endpoint core.Endpoint
	Started  time.Time

	mu       sync.Mutex
	counters Counters
	store    *record.Store
	logger   log.Logger
}

// New creates the state for one endpoint's run.
func New(endpoint core.Endpoint) *State {
	id := uuid.New()
	return &State{
		ID:       id,
		Endpoint: endpoint,
		Started:  time.Now(),
		store:    record.NewStore(),
		logger: log.GetLogger().WithFields(map[string]interface{}{
			"session":  id.String(),
			"endpoint": string(endpoint),
		}),
	}
}

// Do runs fn with the session lock held. fn must not block.
func (s *State) Do(fn func(c *Counters, st *record.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.counters, s.store)
}

// Snapshot copies every record in creation order.
func (s *State) Snapshot() []record.FrameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

// Get copies the record at seq.
func (s *State) Get(seq uint64) (record.FrameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(seq)
}

// Logger returns a logger tagged with the session id and endpoint.
func (s *State) Logger() log.Logger {
	return s.logger
}

package record

import (
	"fmt"

	"firestige.xyz/framelat/internal/core"
)

// Store indexes FrameRecords by sequence and remembers creation order.
//
// Store does no locking of its own: every call must be made while holding
// the owning session's lock, so a window scan never observes a half-applied
// create.
type Store struct {
	records map[uint64]*FrameRecord
	order   []uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[uint64]*FrameRecord),
		order:   make([]uint64, 0, 1024),
	}
}

// Create inserts a new record for seq and lets init fill its first fields.
// Creating the same sequence twice is an instrumentation bug and returns
// core.ErrDuplicateSequence.
func (s *Store) Create(seq uint64, init func(r *FrameRecord)) error {
	if _, exists := s.records[seq]; exists {
		return fmt.Errorf("create sequence %d: %w", seq, core.ErrDuplicateSequence)
	}
	r := &FrameRecord{Sequence: seq}
	if init != nil {
		init(r)
	}
	s.records[seq] = r
	s.order = append(s.order, seq)
	return nil
}

// Get returns a copy of the record at seq.
func (s *Store) Get(seq uint64) (FrameRecord, error) {
	r, ok := s.records[seq]
	if !ok {
		return FrameRecord{}, fmt.Errorf("get sequence %d: %w", seq, core.ErrRecordNotFound)
	}
	return *r, nil
}

// Update applies fn to the record at seq in place.
func (s *Store) Update(seq uint64, fn func(r *FrameRecord) error) error {
	r, ok := s.records[seq]
	if !ok {
		return fmt.Errorf("update sequence %d: %w", seq, core.ErrRecordNotFound)
	}
	return fn(r)
}

// ScanDescending visits the records with sequence in [from-depth, from],
// newest first, and applies fn to the first one accepted by match.
// Missing sequences inside the window are skipped. It returns the sequence
// of the record fn was applied to.
func (s *Store) ScanDescending(from uint64, depth int, match func(r *FrameRecord) bool, fn func(r *FrameRecord)) (uint64, bool) {
	if depth < 0 {
		depth = 0
	}
	var low uint64
	if from > uint64(depth) {
		low = from - uint64(depth)
	}
	for seq := from; ; seq-- {
		if r, ok := s.records[seq]; ok && match(r) {
			fn(r)
			return seq, true
		}
		if seq == low {
			return 0, false
		}
	}
}

// Snapshot copies all records in creation order.
func (s *Store) Snapshot() []FrameRecord {
	out := make([]FrameRecord, 0, len(s.order))
	for _, seq := range s.order {
		out = append(out, *s.records[seq])
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.order)
}

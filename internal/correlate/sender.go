// Package correlate binds acknowledgments to frame records.
//
// On the sender an inbound ack is matched by sequence first and by encoded
// size inside a bounded lookback window when the sequence cannot be
// trusted. On the receiver the Acker decides which record the next ack
// describes.
package correlate

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"firestige.xyz/framelat/internal/ackchan"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/metrics"
	"firestige.xyz/framelat/internal/record"
	"firestige.xyz/framelat/internal/session"
)

// DefaultLookbackWindow is how many records below the reported sequence the
// size-match fallback inspects.
const DefaultLookbackWindow = 15

// Outcome is the result of binding one ack.
type Outcome int

const (
	OutcomeDirect    Outcome = iota // sequence matched the expected value
	OutcomeFallback                 // bound by encoded size inside the window
	OutcomeDuplicate                // direct match on an already acknowledged record
	OutcomeDropped                  // no record in the window matched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDirect:
		return "direct"
	case OutcomeFallback:
		return "fallback"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Counts are cumulative outcomes.
type Counts struct {
	Direct    uint64 `yaml:"direct"`
	Fallback  uint64 `yaml:"fallback"`
	Duplicate uint64 `yaml:"duplicate"`
	Dropped   uint64 `yaml:"dropped"`
}

// Sender binds inbound acks to sender FrameRecords.
type Sender struct {
	state  *session.State
	window int

	// expected is the sequence the next ack should carry if delivery is 1:1.
	// Guarded by the session lock.
	expected uint64

	direct    atomic.Uint64
	fallback  atomic.Uint64
	duplicate atomic.Uint64
	dropped   atomic.Uint64
}

// NewSender creates the sender correlator. A negative window is treated as
// zero, which limits the fallback to the reported sequence itself.
func NewSender(state *session.State, window int) *Sender {
	if window < 0 {
		window = 0
	}
	return &Sender{state: state, window: window}
}

// Bind applies ack, received at the local time at. It returns the sequence
// of the record the ack was bound to when the outcome is direct or
// fallback. The only error is a direct match on a record that does not
// exist, which is fatal.
func (s *Sender) Bind(ack ackchan.Ack, at time.Time) (uint64, Outcome, error) {
	var (
		seq     uint64
		outcome Outcome
	)
	err := s.state.Do(func(_ *session.Counters, st *record.Store) error {
		expected := s.expected
		s.expected = ack.Sequence + 1

		if ack.Sequence == expected {
			seq = ack.Sequence
			err := st.Update(seq, func(r *record.FrameRecord) error {
				if r.AckTS.IsSet() {
					outcome = OutcomeDuplicate
					return nil
				}
				apply(r, ack, at)
				outcome = OutcomeDirect
				return nil
			})
			if errors.Is(err, core.ErrRecordNotFound) {
				return core.Fatal(fmt.Errorf("ack for sequence %d that was never sent: %w", seq, err))
			}
			return err
		}

		s.state.Logger().WithFields(map[string]interface{}{
			"expected": expected,
			"reported": ack.Sequence,
			"size":     ack.EncodedSize,
		}).Debug("ack sequence mismatch, falling back to size match")

		var ok bool
		seq, ok = st.ScanDescending(ack.Sequence, s.window,
			func(r *record.FrameRecord) bool {
				size, set := r.EncodedSize.Get()
				return set && size == ack.EncodedSize && !r.AckTS.IsSet()
			},
			func(r *record.FrameRecord) { apply(r, ack, at) },
		)
		if ok {
			outcome = OutcomeFallback
		} else {
			outcome = OutcomeDropped
		}
		return nil
	})
	if err != nil {
		return 0, OutcomeDropped, err
	}

	s.count(outcome)
	switch outcome {
	case OutcomeDuplicate:
		s.state.Logger().Debugf("duplicate ack for sequence %d", seq)
	case OutcomeDropped:
		s.state.Logger().Warnf("no record within %d of sequence %d has encoded size %d, ack dropped",
			s.window, ack.Sequence, ack.EncodedSize)
	}
	return seq, outcome, nil
}

// Counts returns the cumulative outcomes.
func (s *Sender) Counts() Counts {
	return Counts{
		Direct:    s.direct.Load(),
		Fallback:  s.fallback.Load(),
		Duplicate: s.duplicate.Load(),
		Dropped:   s.dropped.Load(),
	}
}

func (s *Sender) count(o Outcome) {
	metrics.CorrelationsTotal.WithLabelValues(o.String()).Inc()
	switch o {
	case OutcomeDirect:
		s.direct.Inc()
	case OutcomeFallback:
		s.fallback.Inc()
	case OutcomeDuplicate:
		s.duplicate.Inc()
	case OutcomeDropped:
		s.dropped.Inc()
	}
}

func apply(r *record.FrameRecord, ack ackchan.Ack, at time.Time) {
	r.AckTS.Fill(at)
	r.AckEncodedSize.Fill(ack.EncodedSize)
	r.ServerDecodeLatencyMs.Fill(ack.DecodeLatencyMs)
	r.ServerProcessingLatencyMs.Fill(ack.ProcessingLatencyMs)
}

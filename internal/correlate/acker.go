package correlate

import (
	"errors"
	"time"

	"firestige.xyz/framelat/internal/ackchan"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/latency"
	"firestige.xyz/framelat/internal/record"
	"firestige.xyz/framelat/internal/session"
)

// Acker builds the receiver's acks. Each ready event acknowledges the
// record at the current decoded sequence, never an independent counter,
// so an ack always names a record that was actually decoded.
type Acker struct {
	state *session.State
	now   func() time.Time

	// guarded by the session lock
	acked     bool
	lastAcked uint64
}

// NewAcker creates the receiver acker.
func NewAcker(state *session.State) *Acker {
	return &Acker{state: state, now: time.Now}
}

// Ready produces the ack for the latest decoded record and stamps its
// dispatch time. It reports false when that record was already
// acknowledged or has not finished decoding.
func (a *Acker) Ready() (ackchan.Ack, bool, error) {
	var (
		ack ackchan.Ack
		ok  bool
	)
	err := a.state.Do(func(c *session.Counters, st *record.Store) error {
		seq, decoded := c.Decoded.Last()
		if !decoded || (a.acked && seq <= a.lastAcked) {
			return nil
		}
		return st.Update(seq, func(r *record.FrameRecord) error {
			decode, err := latency.Decode(*r)
			if err != nil {
				return nil
			}
			end, _ := r.DecodeEndTS.Get()
			at := a.now()
			processing := latency.Millis(end, at)

			r.AckSentTS.Fill(at)
			r.ServerDecodeLatencyMs.Fill(decode)
			r.ServerProcessingLatencyMs.Fill(processing)
			size, _ := r.EncodedSize.Get()

			ack = ackchan.Ack{
				Sequence:            seq,
				DecodeLatencyMs:     decode,
				ProcessingLatencyMs: processing,
				EncodedSize:         size,
			}
			a.acked, a.lastAcked, ok = true, seq, true
			return nil
		})
	})
	if errors.Is(err, core.ErrRecordNotFound) {
		return ackchan.Ack{}, false, nil
	}
	if err != nil {
		return ackchan.Ack{}, false, err
	}
	return ack, ok, nil
}

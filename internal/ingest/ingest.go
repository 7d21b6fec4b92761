// Package ingest turns pipeline stage events into FrameRecord updates.
//
// Sender ingests pre-encode/post-encode, Receiver ingests decode-sink,
// decode-source and render. Both are called synchronously on the
// pipeline's own threads, so they only take the session lock briefly and
// never wait on anything else.
package ingest

import (
	"errors"
	"fmt"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/metrics"
	"firestige.xyz/framelat/internal/record"
	"firestige.xyz/framelat/internal/session"
)

// Sender records capture and encode boundaries.
type Sender struct {
	state *session.State
}

// NewSender creates the sender-side ingestor.
func NewSender(state *session.State) *Sender {
	return &Sender{state: state}
}

// OnStageEvent applies one event. A post-encode event without a matching
// pre-encode record means the probes fire for different frame counts; that
// fault is returned wrapped with core.Fatal.
func (i *Sender) OnStageEvent(ev core.StageEvent) error {
	endpoint := string(core.EndpointSender)
	metrics.StageEventsTotal.WithLabelValues(endpoint, string(ev.Stage)).Inc()

	var err error
	switch ev.Stage {
	case core.StagePreEncode:
		err = i.state.Do(func(c *session.Counters, st *record.Store) error {
			return st.Create(c.Raw.Next(), func(r *record.FrameRecord) {
				r.RawSize.Fill(ev.Size)
				r.CaptureTS.Fill(ev.Timestamp)
			})
		})

	case core.StagePostEncode:
		err = i.state.Do(func(c *session.Counters, st *record.Store) error {
			seq := c.Encoded.Next()
			return st.Update(seq, func(r *record.FrameRecord) error {
				r.EncodedSize.Fill(ev.Size)
				r.EncodedTS.Fill(ev.Timestamp)
				metrics.EncodedFrameBytes.WithLabelValues(endpoint).Observe(float64(ev.Size))
				return nil
			})
		})
		if errors.Is(err, core.ErrRecordNotFound) {
			err = core.Fatal(fmt.Errorf("post-encode without pre-encode: %w", err))
		}

	default:
		err = fmt.Errorf("%w: %q on sender", core.ErrUnknownStage, ev.Stage)
	}

	if err != nil {
		metrics.StageErrorsTotal.WithLabelValues(endpoint, string(ev.Stage), errorType(err)).Inc()
	}
	return err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, core.ErrDuplicateSequence):
		return "duplicate"
	case errors.Is(err, core.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, core.ErrUnknownStage):
		return "unknown_stage"
	default:
		return "other"
	}
}

package ingest

import (
	"errors"
	"fmt"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/metrics"
	"firestige.xyz/framelat/internal/record"
	"firestige.xyz/framelat/internal/session"
)

// Receiver records decoder boundaries and signals when a frame is ready to
// be acknowledged.
type Receiver struct {
	state    *session.State
	ackStage core.Stage
	onReady  func()
}

// NewReceiver creates the receiver-side ingestor. onReady runs outside the
// session lock each time the ack stage completes a frame.
func NewReceiver(state *session.State, ackStage core.Stage, onReady func()) *Receiver {
	if ackStage == "" {
		ackStage = core.StageDecodeSource
	}
	return &Receiver{state: state, ackStage: ackStage, onReady: onReady}
}

// OnStageEvent applies one event.
//
// Under jitter the decoder may drop its backlog and only decode the latest
// received frame. Decode completion is therefore always attributed to the
// most recently received record: whenever the decoded sequence diverges
// from the received one it is re-pointed, and the skipped records stay
// permanently undecoded.
func (i *Receiver) OnStageEvent(ev core.StageEvent) error {
	endpoint := string(core.EndpointReceiver)
	metrics.StageEventsTotal.WithLabelValues(endpoint, string(ev.Stage)).Inc()

	var (
		err   error
		ready bool
	)
	switch ev.Stage {
	case core.StageDecodeSink:
		err = i.state.Do(func(c *session.Counters, st *record.Store) error {
			return st.Create(c.Received.Next(), func(r *record.FrameRecord) {
				r.EncodedSize.Fill(ev.Size)
				r.DecodeStartTS.Fill(ev.Timestamp)
			})
		})

	case core.StageDecodeSource:
		err = i.state.Do(func(c *session.Counters, st *record.Store) error {
			seq := c.Decoded.Next()
			latest, ok := c.Received.Last()
			if !ok {
				return fmt.Errorf("decode-source before any decode-sink: %w", core.ErrRecordNotFound)
			}
			if seq != latest {
				i.state.Logger().WithFields(map[string]interface{}{
					"decoded":  seq,
					"received": latest,
				}).Debug("decoder skipped backlog, re-pointing decoded sequence")
				c.Decoded.Repoint(latest)
				seq = latest
			}
			return st.Update(seq, func(r *record.FrameRecord) error {
				// a second output for the same input is not a new frame
				if r.DecodeEndTS.Fill(ev.Timestamp) {
					ready = i.ackStage == core.StageDecodeSource
				}
				return nil
			})
		})
		if errors.Is(err, core.ErrRecordNotFound) {
			// expected while the decoder drains frames we never saw enter
			metrics.StageErrorsTotal.WithLabelValues(endpoint, string(ev.Stage), "not_found").Inc()
			i.state.Logger().WithError(err).Debug("decode-source without a record")
			err = nil
		}

	case core.StageRender:
		ready = i.ackStage == core.StageRender

	default:
		err = fmt.Errorf("%w: %q on receiver", core.ErrUnknownStage, ev.Stage)
	}

	if err != nil {
		metrics.StageErrorsTotal.WithLabelValues(endpoint, string(ev.Stage), errorType(err)).Inc()
		return err
	}
	if ready && i.onReady != nil {
		i.onReady()
	}
	return nil
}

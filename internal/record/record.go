// Package record holds the per-frame timing record and the sequence-keyed
// store each endpoint keeps for the duration of a run.
package record

import "time"

// FrameRecord is the observed timing of one frame on one endpoint.
//
// Sequence is assigned once at creation and never changes. Every other field
// starts unset and is filled at most once by the stage that owns it.
type FrameRecord struct {
	Sequence uint64

	// Sender: pre-encode.
	RawSize   Opt[int]
	CaptureTS Opt[time.Time]

	// Sender: post-encode. Receiver: byte size seen at decode-sink.
	EncodedSize Opt[int]
	EncodedTS   Opt[time.Time]

	// Sender: bound acknowledgment, payload copied verbatim.
	AckTS                     Opt[time.Time]
	AckEncodedSize            Opt[int]
	ServerDecodeLatencyMs     Opt[float64]
	ServerProcessingLatencyMs Opt[float64]

	// Receiver: decoder boundaries and the moment the ack was dispatched.
	DecodeStartTS Opt[time.Time]
	DecodeEndTS   Opt[time.Time]
	AckSentTS     Opt[time.Time]
}

// Complete reports whether both the encode side and the acknowledgment side
// are populated. Only complete records feed sender statistics.
func (r *FrameRecord) Complete() bool {
	return r.EncodedTS.IsSet() && r.AckTS.IsSet()
}

// Decoded reports whether a receiver record saw both decoder boundaries.
func (r *FrameRecord) Decoded() bool {
	return r.DecodeStartTS.IsSet() && r.DecodeEndTS.IsSet()
}

// Acknowledged reports whether an acknowledgment was bound (sender) or
// dispatched (receiver) for this record.
func (r *FrameRecord) Acknowledged() bool {
	return r.AckTS.IsSet() || r.AckSentTS.IsSet()
}

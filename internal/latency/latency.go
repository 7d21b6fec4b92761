// Package latency derives per-frame latencies from a FrameRecord.
//
// Every function is pure. Both operands of a difference are always taken
// from the same endpoint's clock, so no cross-host skew enters a result.
// All results are milliseconds.
package latency

import (
	"fmt"
	"time"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/record"
)

// Metric names, shared by the statistics report and the histograms.
const (
	MetricEncoding         = "encoding_latency"
	MetricNetworkRoundTrip = "network_round_trip"
	MetricFullRoundTrip    = "full_round_trip"
	MetricServerDecode     = "server_decode_latency"
	MetricServerProcessing = "server_processing_latency"
	MetricDecode           = "decode_latency"
	MetricProcessing       = "processing_latency"
)

// Millis returns to-from in milliseconds.
func Millis(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}

// Encoding is encoded_ts - capture_ts on the sender.
func Encoding(r record.FrameRecord) (float64, error) {
	return between(r, "capture_ts", r.CaptureTS, "encoded_ts", r.EncodedTS)
}

// NetworkRoundTrip is ack_ts - encoded_ts on the sender. The receiver's
// decode and processing time is included, not subtracted.
func NetworkRoundTrip(r record.FrameRecord) (float64, error) {
	return between(r, "encoded_ts", r.EncodedTS, "ack_ts", r.AckTS)
}

// FullRoundTrip is ack_ts - capture_ts on the sender.
func FullRoundTrip(r record.FrameRecord) (float64, error) {
	return between(r, "capture_ts", r.CaptureTS, "ack_ts", r.AckTS)
}

// ServerDecode is the decode latency the receiver reported in its ack.
func ServerDecode(r record.FrameRecord) (float64, error) {
	return reported(r, "server_decode_latency_ms", r.ServerDecodeLatencyMs)
}

// ServerProcessing is the processing latency the receiver reported in its ack.
func ServerProcessing(r record.FrameRecord) (float64, error) {
	return reported(r, "server_processing_latency_ms", r.ServerProcessingLatencyMs)
}

// Decode is decode_end_ts - decode_start_ts on the receiver.
func Decode(r record.FrameRecord) (float64, error) {
	return between(r, "decode_start_ts", r.DecodeStartTS, "decode_end_ts", r.DecodeEndTS)
}

// Processing is ack_sent_ts - decode_end_ts on the receiver.
func Processing(r record.FrameRecord) (float64, error) {
	return between(r, "decode_end_ts", r.DecodeEndTS, "ack_sent_ts", r.AckSentTS)
}

// Breakdown is every sender-side latency of one complete record.
type Breakdown struct {
	Encoding         float64
	NetworkRoundTrip float64
	FullRoundTrip    float64
	ServerDecode     float64
	ServerProcessing float64
}

// Compute derives the full sender breakdown, failing on the first unset field.
func Compute(r record.FrameRecord) (Breakdown, error) {
	var (
		b   Breakdown
		err error
	)
	if b.Encoding, err = Encoding(r); err != nil {
		return Breakdown{}, err
	}
	if b.NetworkRoundTrip, err = NetworkRoundTrip(r); err != nil {
		return Breakdown{}, err
	}
	if b.FullRoundTrip, err = FullRoundTrip(r); err != nil {
		return Breakdown{}, err
	}
	if b.ServerDecode, err = ServerDecode(r); err != nil {
		return Breakdown{}, err
	}
	if b.ServerProcessing, err = ServerProcessing(r); err != nil {
		return Breakdown{}, err
	}
	return b, nil
}

// Metrics returns the breakdown keyed by metric name.
func (b Breakdown) Metrics() map[string]float64 {
	return map[string]float64{
		MetricEncoding:         b.Encoding,
		MetricNetworkRoundTrip: b.NetworkRoundTrip,
		MetricFullRoundTrip:    b.FullRoundTrip,
		MetricServerDecode:     b.ServerDecode,
		MetricServerProcessing: b.ServerProcessing,
	}
}

func between(r record.FrameRecord, fromName string, from record.Opt[time.Time], toName string, to record.Opt[time.Time]) (float64, error) {
	a, ok := from.Get()
	if !ok {
		return 0, missing(r, fromName)
	}
	b, ok := to.Get()
	if !ok {
		return 0, missing(r, toName)
	}
	return Millis(a, b), nil
}

func reported(r record.FrameRecord, name string, v record.Opt[float64]) (float64, error) {
	ms, ok := v.Get()
	if !ok {
		return 0, missing(r, name)
	}
	return ms, nil
}

func missing(r record.FrameRecord, field string) error {
	return fmt.Errorf("%w: sequence %d has no %s", core.ErrIncompleteRecord, r.Sequence, field)
}

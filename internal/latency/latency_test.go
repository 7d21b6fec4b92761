package latency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/record"
)

func completeRecord(base time.Time) record.FrameRecord {
	return record.FrameRecord{
		Sequence:                  0,
		RawSize:                   record.Some(100000),
		CaptureTS:                 record.Some(base),
		EncodedSize:               record.Some(20000),
		EncodedTS:                 record.Some(base.Add(4 * time.Millisecond)),
		AckTS:                     record.Some(base.Add(19*time.Millisecond + 500*time.Microsecond)),
		AckEncodedSize:            record.Some(20000),
		ServerDecodeLatencyMs:     record.Some(5.0),
		ServerProcessingLatencyMs: record.Some(2.0),
	}
}

func TestMillis(t *testing.T) {
	base := time.Now()
	assert.Equal(t, 1.5, Millis(base, base.Add(1500*time.Microsecond)))
	assert.Equal(t, -2.0, Millis(base, base.Add(-2*time.Millisecond)))
}

func TestCompute(t *testing.T) {
	r := completeRecord(time.Now())
	b, err := Compute(r)
	require.NoError(t, err)

	assert.InDelta(t, 4.0, b.Encoding, 1e-9)
	assert.InDelta(t, 15.5, b.NetworkRoundTrip, 1e-9)
	assert.InDelta(t, 19.5, b.FullRoundTrip, 1e-9)
	assert.Equal(t, 5.0, b.ServerDecode)
	assert.Equal(t, 2.0, b.ServerProcessing)
	assert.Len(t, b.Metrics(), 5)
}

func TestFullRoundTripIsEncodingPlusNetwork(t *testing.T) {
	base := time.Now()
	for i := 0; i < 50; i++ {
		r := completeRecord(base)
		r.EncodedTS = record.Some(base.Add(time.Duration(i*137) * time.Microsecond))
		r.AckTS = record.Some(base.Add(time.Duration(i*971+3000) * time.Microsecond))

		enc, err := Encoding(r)
		require.NoError(t, err)
		nrt, err := NetworkRoundTrip(r)
		require.NoError(t, err)
		full, err := FullRoundTrip(r)
		require.NoError(t, err)
		assert.InDelta(t, full, enc+nrt, 1e-9)
	}
}

func TestIdempotent(t *testing.T) {
	r := completeRecord(time.Now())
	first, err := Compute(r)
	require.NoError(t, err)
	second, err := Compute(r)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIncompleteRecord(t *testing.T) {
	r := completeRecord(time.Now())
	r.AckTS = record.Opt[time.Time]{}

	_, err := NetworkRoundTrip(r)
	assert.ErrorIs(t, err, core.ErrIncompleteRecord)
	_, err = FullRoundTrip(r)
	assert.ErrorIs(t, err, core.ErrIncompleteRecord)
	_, err = Compute(r)
	assert.ErrorIs(t, err, core.ErrIncompleteRecord)

	enc, err := Encoding(r)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, enc, 1e-9)

	_, err = ServerDecode(record.FrameRecord{})
	assert.ErrorIs(t, err, core.ErrIncompleteRecord)
}

func TestReceiverLatencies(t *testing.T) {
	base := time.Now()
	r := record.FrameRecord{
		DecodeStartTS: record.Some(base),
		DecodeEndTS:   record.Some(base.Add(5 * time.Millisecond)),
		AckSentTS:     record.Some(base.Add(7 * time.Millisecond)),
	}
	d, err := Decode(r)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-9)

	p, err := Processing(r)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p, 1e-9)

	r.AckSentTS = record.Opt[time.Time]{}
	_, err = Processing(r)
	assert.ErrorIs(t, err, core.ErrIncompleteRecord)
}

package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/ingest"
	"firestige.xyz/framelat/internal/session"
)

type receiverHarness struct {
	state *session.State
	in    *ingest.Receiver
	acker *Acker
	clock time.Time
}

func newReceiverHarness(t *testing.T) *receiverHarness {
	t.Helper()
	h := &receiverHarness{state: session.New(core.EndpointReceiver), clock: time.Now()}
	h.in = ingest.NewReceiver(h.state, core.StageDecodeSource, nil)
	h.acker = NewAcker(h.state)
	h.acker.now = func() time.Time { return h.clock }
	return h
}

func (h *receiverHarness) event(t *testing.T, stage core.Stage, size int) {
	t.Helper()
	require.NoError(t, h.in.OnStageEvent(core.StageEvent{Stage: stage, Size: size, Timestamp: h.clock}))
}

func (h *receiverHarness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func TestAcker_AcksDecodedFrame(t *testing.T) {
	h := newReceiverHarness(t)

	h.event(t, core.StageDecodeSink, 20000)
	h.advance(5 * time.Millisecond)
	h.event(t, core.StageDecodeSource, 3110400)
	h.advance(2 * time.Millisecond)

	ack, ok, err := h.acker.Ready()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(0), ack.Sequence)
	assert.Equal(t, 20000, ack.EncodedSize)
	assert.InDelta(t, 5.0, ack.DecodeLatencyMs, 1e-9)
	assert.InDelta(t, 2.0, ack.ProcessingLatencyMs, 1e-9)

	r, err := h.state.Get(0)
	require.NoError(t, err)
	assert.True(t, r.Acknowledged())
}

func TestAcker_NeverAcksTwice(t *testing.T) {
	h := newReceiverHarness(t)
	h.event(t, core.StageDecodeSink, 20000)
	h.event(t, core.StageDecodeSource, 1)

	_, ok, err := h.acker.Ready()
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = h.acker.Ready()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcker_FollowsDecodedPointer(t *testing.T) {
	h := newReceiverHarness(t)

	// decoder collapses three received frames into one output
	h.event(t, core.StageDecodeSink, 100)
	h.event(t, core.StageDecodeSink, 200)
	h.event(t, core.StageDecodeSink, 300)
	h.event(t, core.StageDecodeSource, 1)

	ack, ok, err := h.acker.Ready()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), ack.Sequence)
	assert.Equal(t, 300, ack.EncodedSize)

	h.event(t, core.StageDecodeSink, 400)
	h.event(t, core.StageDecodeSource, 1)
	ack, ok, err = h.acker.Ready()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), ack.Sequence)
}

func TestAcker_NothingDecoded(t *testing.T) {
	h := newReceiverHarness(t)
	h.event(t, core.StageDecodeSink, 100)

	_, ok, err := h.acker.Ready()
	require.NoError(t, err)
	assert.False(t, ok)

	// decode output before any input leaves the pointer on a missing record
	h2 := newReceiverHarness(t)
	h2.event(t, core.StageDecodeSource, 1)
	_, ok, err = h2.acker.Ready()
	require.NoError(t, err)
	assert.False(t, ok)
}

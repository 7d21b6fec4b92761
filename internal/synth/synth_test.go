package synth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
)

type recorder struct {
	mu     sync.Mutex
	events []core.StageEvent
}

func (r *recorder) OnStageEvent(ev core.StageEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) sizes(stage core.Stage) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, ev := range r.events {
		if ev.Stage == stage {
			out = append(out, ev.Size)
		}
	}
	return out
}

func TestPacketize(t *testing.T) {
	pk := newPacketizer(1000, 42)
	packets, err := pk.packetize(make([]byte, 2500), 9000)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	sizes := []int{1000, 1000, 500}
	for i, raw := range packets {
		var p rtp.Packet
		require.NoError(t, p.Unmarshal(raw))
		assert.Equal(t, uint16(i), p.SequenceNumber)
		assert.Equal(t, uint32(9000), p.Timestamp)
		assert.Equal(t, uint32(42), p.SSRC)
		assert.Equal(t, uint8(payloadType), p.PayloadType)
		assert.Equal(t, i == 2, p.Marker)
		assert.Len(t, p.Payload, sizes[i])
	}
}

func TestRTPTimestamp(t *testing.T) {
	assert.Equal(t, uint32(0), rtpTimestamp(0, 30))
	assert.Equal(t, uint32(3000), rtpTimestamp(1, 30))
	assert.Equal(t, uint32(90000), rtpTimestamp(30, 30))
	// 2M frames at 30fps is 6e9 ticks, past 2^32
	assert.Equal(t, uint32(6000000000-1<<32), rtpTimestamp(2000000, 30))
}

func TestReassembler(t *testing.T) {
	pk := newPacketizer(1000, 1)
	var re reassembler

	push := func(frame []byte, ts uint32, skip int) (int, bool) {
		packets, err := pk.packetize(frame, ts)
		require.NoError(t, err)
		var (
			size int
			ok   bool
		)
		for i, p := range packets {
			if i == skip {
				continue
			}
			s, done, err := re.push(p)
			require.NoError(t, err)
			if done {
				size, ok = s, true
			}
		}
		return size, ok
	}

	size, ok := push(make([]byte, 2500), 0, -1)
	assert.True(t, ok)
	assert.Equal(t, 2500, size)

	// middle packet lost
	_, ok = push(make([]byte, 2500), 3000, 1)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), re.dropped)

	// first packet lost
	_, ok = push(make([]byte, 2500), 6000, 0)
	assert.False(t, ok)
	assert.Equal(t, uint64(2), re.dropped)

	size, ok = push(make([]byte, 700), 9000, -1)
	assert.True(t, ok)
	assert.Equal(t, 700, size)

	// marker lost: the frame is dropped when the next one starts
	_, ok = push(make([]byte, 2500), 12000, 2)
	assert.False(t, ok)
	_, ok = push(make([]byte, 800), 15000, -1)
	assert.False(t, ok, "gap from the lost marker breaks the next frame as well")
	assert.Equal(t, uint64(4), re.dropped)

	size, ok = push(make([]byte, 900), 18000, -1)
	assert.True(t, ok)
	assert.Equal(t, 900, size)

	_, _, err := re.push([]byte{1, 2})
	assert.Error(t, err)
}

func TestSenderToReceiver(t *testing.T) {
	recvEvents := &recorder{}
	receiver := NewReceiver(config.PipelineConfig{Media: "127.0.0.1:0", RawSize: 3110400})
	require.NoError(t, receiver.Start(context.Background(), recvEvents))
	defer receiver.Stop()

	sendEvents := &recorder{}
	sender := NewSender(config.PipelineConfig{
		Media:          receiver.Addr().String(),
		FrameRate:      200,
		FrameCount:     5,
		RawSize:        3110400,
		MinEncodedSize: 2000,
		MaxEncodedSize: 5000,
		MTU:            1200,
		EncodeDelay:    time.Millisecond,
	})
	require.NoError(t, sender.Start(context.Background(), sendEvents))

	select {
	case <-sender.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sender did not finish")
	}
	require.NoError(t, sender.Err())
	require.NoError(t, sender.Stop())
	assert.Equal(t, uint64(5), sender.Frames())

	assert.Len(t, sendEvents.sizes(core.StagePreEncode), 5)
	encoded := sendEvents.sizes(core.StagePostEncode)
	require.Len(t, encoded, 5)
	for _, size := range encoded {
		assert.GreaterOrEqual(t, size, 2000)
		assert.LessOrEqual(t, size, 5000)
	}

	assert.Eventually(t, func() bool {
		return len(recvEvents.sizes(core.StageDecodeSink)) == 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, encoded, recvEvents.sizes(core.StageDecodeSink))
	assert.Eventually(t, func() bool {
		return len(recvEvents.sizes(core.StageDecodeSource)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	frames, _, dropped := receiver.Counts()
	assert.Equal(t, uint64(5), frames)
	assert.Zero(t, dropped)
}

func TestSender_StopBeforeFrameCount(t *testing.T) {
	receiver := NewReceiver(config.PipelineConfig{Media: "127.0.0.1:0"})
	require.NoError(t, receiver.Start(context.Background(), &recorder{}))
	defer receiver.Stop()

	sender := NewSender(config.PipelineConfig{
		Media:          receiver.Addr().String(),
		FrameRate:      100,
		MinEncodedSize: 100,
		MaxEncodedSize: 100,
	})
	require.NoError(t, sender.Start(context.Background(), &recorder{}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, sender.Stop())

	select {
	case <-sender.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
	assert.NoError(t, sender.Err())
}

func TestSender_InvalidConfig(t *testing.T) {
	s := NewSender(config.PipelineConfig{Media: "127.0.0.1:1", FrameRate: 0})
	assert.Error(t, s.Start(context.Background(), &recorder{}))

	s = NewSender(config.PipelineConfig{Media: "127.0.0.1:1", FrameRate: 30, MinEncodedSize: 10, MaxEncodedSize: 5})
	assert.Error(t, s.Start(context.Background(), &recorder{}))
}

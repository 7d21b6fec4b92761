package synth

import (
	"fmt"

	"github.com/pion/rtp"
)

const (
	// payloadType is the dynamic RTP payload type used for the stream.
	payloadType = 96
	// clockRate is the RTP video clock.
	clockRate = 90000
)

// rtpTimestamp is the media clock of the n-th frame. It wraps modulo 2^32
// like any RTP timestamp.
func rtpTimestamp(n int, fps float64) uint32 {
	return uint32(uint64(float64(n) * clockRate / fps))
}

// packetizer splits encoded frames into RTP packets. The marker bit is set
// on the last packet of each frame and every packet of a frame shares its
// RTP timestamp.
type packetizer struct {
	mtu  int
	ssrc uint32
	seq  uint16
}

func newPacketizer(mtu int, ssrc uint32) *packetizer {
	if mtu <= 0 {
		mtu = 1200
	}
	return &packetizer{mtu: mtu, ssrc: ssrc}
}

// packetize returns the marshalled packets carrying frame.
func (p *packetizer) packetize(frame []byte, timestamp uint32) ([][]byte, error) {
	var out [][]byte
	for off := 0; off < len(frame); off += p.mtu {
		end := off + p.mtu
		if end > len(frame) {
			end = len(frame)
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         end == len(frame),
				PayloadType:    payloadType,
				SequenceNumber: p.seq,
				Timestamp:      timestamp,
				SSRC:           p.ssrc,
			},
			Payload: frame[off:end],
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return nil, fmt.Errorf("marshal rtp packet %d: %w", p.seq, err)
		}
		out = append(out, raw)
		p.seq++
	}
	return out, nil
}

// reassembler rebuilds frame sizes from RTP packets. A frame is emitted on
// its marker packet only if its packets arrived without a sequence gap,
// counting from the previous packet seen; a gap or a new timestamp before
// the marker drops the frame.
type reassembler struct {
	seen      bool
	active    bool
	broken    bool
	timestamp uint32
	nextSeq   uint16
	size      int

	dropped uint64
}

// push feeds one datagram. It returns the frame size when a frame completes.
func (r *reassembler) push(raw []byte) (int, bool, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return 0, false, fmt.Errorf("unmarshal rtp packet: %w", err)
	}

	gap := r.seen && pkt.SequenceNumber != r.nextSeq
	r.seen = true
	r.nextSeq = pkt.SequenceNumber + 1

	if !r.active || pkt.Timestamp != r.timestamp {
		if r.active {
			r.dropped++
		}
		r.active, r.broken = true, gap
		r.timestamp = pkt.Timestamp
		r.size = 0
	} else if gap {
		r.broken = true
	}
	r.size += len(pkt.Payload)

	if !pkt.Marker {
		return 0, false, nil
	}
	r.active = false
	if r.broken {
		r.dropped++
		return 0, false, nil
	}
	return r.size, true, nil
}

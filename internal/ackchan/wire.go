// Package ackchan is the datagram channel between the two endpoints: the
// init/ack session handshake followed by one acknowledgment per frame from
// the receiver back to the sender.
package ackchan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/framelat/internal/core"
)

// Handshake tokens, each sent as a single datagram.
const (
	TokenInit = "init"
	TokenAck  = "ack"
)

// fieldCount is the number of comma separated fields in an ack payload.
const fieldCount = 4

// Ack is one per-frame acknowledgment. Field order on the wire is fixed:
// sequence, decode latency, processing latency, encoded size.
type Ack struct {
	Sequence            uint64
	DecodeLatencyMs     float64
	ProcessingLatencyMs float64
	EncodedSize         int
}

// Inbound is an ack together with the moment it was read off the socket,
// taken from the local clock.
type Inbound struct {
	Ack Ack
	At  time.Time
}

// Encode renders a as "<int>,<float>,<float>,<int>".
func Encode(a Ack) []byte {
	b := make([]byte, 0, 64)
	b = strconv.AppendUint(b, a.Sequence, 10)
	b = append(b, ',')
	b = strconv.AppendFloat(b, a.DecodeLatencyMs, 'f', -1, 64)
	b = append(b, ',')
	b = strconv.AppendFloat(b, a.ProcessingLatencyMs, 'f', -1, 64)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(a.EncodedSize), 10)
	return b
}

// Decode parses an ack payload. Any error wraps core.ErrMalformedAck.
func Decode(p []byte) (Ack, error) {
	fields := strings.Split(strings.TrimSpace(string(p)), ",")
	if len(fields) != fieldCount {
		return Ack{}, fmt.Errorf("%w: want %d fields, got %d", core.ErrMalformedAck, fieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var (
		a   Ack
		err error
	)
	if a.Sequence, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
		return Ack{}, fmt.Errorf("%w: sequence %q", core.ErrMalformedAck, fields[0])
	}
	if a.DecodeLatencyMs, err = parseLatency(fields[1]); err != nil {
		return Ack{}, fmt.Errorf("%w: decode latency %q", core.ErrMalformedAck, fields[1])
	}
	if a.ProcessingLatencyMs, err = parseLatency(fields[2]); err != nil {
		return Ack{}, fmt.Errorf("%w: processing latency %q", core.ErrMalformedAck, fields[2])
	}
	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || size < 0 || size > math.MaxInt32 {
		return Ack{}, fmt.Errorf("%w: encoded size %q", core.ErrMalformedAck, fields[3])
	}
	a.EncodedSize = int(size)
	return a, nil
}

func parseLatency(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return f, nil
}

package ackchan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/net/ipv4"

	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/log"
	"firestige.xyz/framelat/internal/metrics"
)

// Config configures one endpoint's socket.
type Config struct {
	Endpoint   core.Endpoint
	Listen     string // local UDP address
	ReadBuffer int    // largest datagram accepted
	DSCP       int    // 0 = leave unmarked
}

// Stats are cumulative channel counters.
type Stats struct {
	Sent      uint64
	Received  uint64
	Malformed uint64
	Foreign   uint64
}

// Channel is one endpoint's UDP socket. The receiver learns its peer from
// the handshake datagram's source address; the sender from its own target.
type Channel struct {
	conn     *net.UDPConn
	endpoint string
	bufSize  int
	logger   log.Logger

	mu   sync.RWMutex
	peer *net.UDPAddr

	sent      atomic.Uint64
	received  atomic.Uint64
	malformed atomic.Uint64
	foreign   atomic.Uint64
	closed    atomic.Bool
}

// Listen opens the socket.
func Listen(cfg Config) (*Channel, error) {
	laddr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("resolve ack listen address %q: %w", cfg.Listen, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen ack channel on %s: %w", cfg.Listen, err)
	}

	size := cfg.ReadBuffer
	if size <= 0 {
		size = 4096
	}
	c := &Channel{
		conn:     conn,
		endpoint: string(cfg.Endpoint),
		bufSize:  size,
		logger: log.GetLogger().WithFields(map[string]interface{}{
			"component": "ackchan",
			"endpoint":  string(cfg.Endpoint),
		}),
	}

	if cfg.DSCP > 0 {
		// TOS carries DSCP in its upper six bits
		if err := ipv4.NewConn(conn).SetTOS(cfg.DSCP << 2); err != nil {
			c.logger.WithError(err).Warnf("failed to mark ack channel with dscp %d", cfg.DSCP)
		}
	}

	c.logger.Infof("ack channel listening on %s", conn.LocalAddr())
	return c, nil
}

// LocalAddr returns the bound socket address.
func (c *Channel) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// Peer returns the handshake peer, or nil before the handshake.
func (c *Channel) Peer() *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer
}

// HandshakeAsSender sends "init" to target and blocks until one reply
// arrives. A reply other than "ack" fails with core.ErrHandshakeFailed, as
// does a context that ends before any reply.
func (c *Channel) HandshakeAsSender(ctx context.Context, target string) error {
	raddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return fmt.Errorf("%w: resolve %q: %w", core.ErrHandshakeFailed, target, err)
	}
	if _, err := c.conn.WriteToUDP([]byte(TokenInit), raddr); err != nil {
		return fmt.Errorf("%w: send init to %s: %w", core.ErrHandshakeFailed, raddr, err)
	}
	c.logger.Debugf("init sent to %s", raddr)

	buf := make([]byte, c.bufSize)
	n, from, err := c.read(ctx, buf)
	if err != nil {
		return fmt.Errorf("%w: waiting for reply from %s: %w", core.ErrHandshakeFailed, raddr, err)
	}
	if reply := string(buf[:n]); reply != TokenAck {
		return fmt.Errorf("%w: %s replied %q", core.ErrHandshakeFailed, from, truncate(reply))
	}

	c.setPeer(from)
	c.logger.Infof("handshake with %s complete", from)
	return nil
}

// HandshakeAsReceiver blocks until the first datagram arrives. It must be
// "init"; anything else is core.ErrProtocolViolation. The sender's source
// address becomes the destination of every later ack.
func (c *Channel) HandshakeAsReceiver(ctx context.Context) (*net.UDPAddr, error) {
	buf := make([]byte, c.bufSize)
	n, from, err := c.read(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("waiting for init: %w", err)
	}
	if token := string(buf[:n]); token != TokenInit {
		return nil, fmt.Errorf("%w: first datagram from %s is %q, want %q",
			core.ErrProtocolViolation, from, truncate(token), TokenInit)
	}
	if _, err := c.conn.WriteToUDP([]byte(TokenAck), from); err != nil {
		return nil, fmt.Errorf("reply ack to %s: %w", from, err)
	}

	c.setPeer(from)
	c.logger.Infof("handshake with %s complete", from)
	return from, nil
}

// SendAck writes one ack to the peer. No retry.
func (c *Channel) SendAck(a Ack) error {
	peer := c.Peer()
	if peer == nil {
		return core.ErrNotConnected
	}
	if _, err := c.conn.WriteToUDP(Encode(a), peer); err != nil {
		metrics.AckMessagesTotal.WithLabelValues(c.endpoint, "send_error").Inc()
		if errors.Is(err, net.ErrClosed) {
			return core.ErrChannelClosed
		}
		return fmt.Errorf("send ack %d: %w", a.Sequence, err)
	}
	c.sent.Inc()
	metrics.AckMessagesTotal.WithLabelValues(c.endpoint, "sent").Inc()
	return nil
}

// ReceiveAck blocks for the next datagram and decodes it. A datagram from
// anyone but the handshake peer returns core.ErrForeignDatagram; a payload
// that does not decode returns an error wrapping core.ErrMalformedAck.
func (c *Channel) ReceiveAck(ctx context.Context) (Inbound, error) {
	buf := make([]byte, c.bufSize)
	return c.receive(ctx, buf)
}

func (c *Channel) receive(ctx context.Context, buf []byte) (Inbound, error) {
	n, from, err := c.read(ctx, buf)
	if err != nil {
		return Inbound{}, err
	}
	at := time.Now()

	if peer := c.Peer(); peer == nil || !sameAddr(peer, from) {
		c.foreign.Inc()
		metrics.AckMessagesTotal.WithLabelValues(c.endpoint, "foreign").Inc()
		return Inbound{}, fmt.Errorf("%w: %s", core.ErrForeignDatagram, from)
	}

	a, err := Decode(buf[:n])
	if err != nil {
		c.malformed.Inc()
		metrics.AckMessagesTotal.WithLabelValues(c.endpoint, "malformed").Inc()
		return Inbound{}, err
	}
	c.received.Inc()
	metrics.AckMessagesTotal.WithLabelValues(c.endpoint, "received").Inc()
	return Inbound{Ack: a, At: at}, nil
}

// ReceiveLoop forwards decoded acks to out until ctx ends or the channel is
// closed. Malformed payloads are logged and dropped. It returns nil on a
// normal stop.
func (c *Channel) ReceiveLoop(ctx context.Context, out chan<- Inbound) error {
	buf := make([]byte, c.bufSize)
	for {
		in, err := c.receive(ctx, buf)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrMalformedAck):
			c.logger.WithError(err).Warn("dropping malformed ack")
			continue
		case errors.Is(err, core.ErrForeignDatagram):
			c.logger.WithError(err).Warn("dropping datagram")
			continue
		case ctx.Err() != nil, errors.Is(err, core.ErrChannelClosed):
			return nil
		default:
			return err
		}

		select {
		case out <- in:
		case <-ctx.Done():
			return nil
		}
	}
}

// Stats returns the cumulative counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		Received:  c.received.Load(),
		Malformed: c.malformed.Load(),
		Foreign:   c.foreign.Load(),
	}
}

// Close closes the socket and unblocks any pending read.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *Channel) setPeer(addr *net.UDPAddr) {
	c.mu.Lock()
	c.peer = addr
	c.mu.Unlock()
}

// read is a ReadFromUDP that honours ctx cancellation and deadline.
func (c *Channel) read(ctx context.Context, buf []byte) (int, *net.UDPAddr, error) {
	deadline, hasDeadline := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, nil, c.mapErr(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, from, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		var ne net.Error
		if hasDeadline && errors.As(err, &ne) && ne.Timeout() {
			return 0, nil, context.DeadlineExceeded
		}
		return 0, nil, c.mapErr(err)
	}
	return n, from, nil
}

func (c *Channel) mapErr(err error) error {
	if errors.Is(err, net.ErrClosed) || c.closed.Load() {
		return core.ErrChannelClosed
	}
	return err
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

func truncate(s string) string {
	const limit = 32
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

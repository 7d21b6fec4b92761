package synth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/log"
)

// maxDatagram bounds a single RTP datagram.
const maxDatagram = 65535

// Receiver reassembles synthetic frames and simulates their decoding.
type Receiver struct {
	lifecycle

	cfg    config.PipelineConfig
	logger log.Logger
	conn   *net.UDPConn

	// pending coalesces frames waiting for the decoder
	pending chan struct{}

	frames  atomic.Uint64
	decoded atomic.Uint64
	dropped atomic.Uint64
}

// NewReceiver creates a synthetic receiver pipeline.
func NewReceiver(cfg config.PipelineConfig) *Receiver {
	return &Receiver{
		lifecycle: lifecycle{done: make(chan struct{})},
		cfg:       cfg,
		logger:    log.GetLogger().WithField("component", "synth-receiver"),
		pending:   make(chan struct{}, 1),
	}
}

// Start binds the media socket and begins receiving.
func (r *Receiver) Start(ctx context.Context, h core.StageHandler) error {
	laddr, err := net.ResolveUDPAddr("udp", r.cfg.Media)
	if err != nil {
		return fmt.Errorf("resolve media address %q: %w", r.cfg.Media, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("listen media on %s: %w", laddr, err)
	}
	r.conn = conn

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Go(func() { r.readLoop(ctx, h) })
	r.wg.Go(func() { r.decodeLoop(ctx, h) })
	r.logger.Infof("synthetic receiver listening on %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound media address, nil before Start.
func (r *Receiver) Addr() *net.UDPAddr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Stop closes the media socket and waits for both workers.
func (r *Receiver) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	var err error
	if r.conn != nil {
		err = r.conn.Close()
	}
	r.wg.Wait()
	r.finish(nil)
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Counts returns frames reassembled, frames decoded and frames dropped
// during reassembly.
func (r *Receiver) Counts() (frames, decoded, dropped uint64) {
	return r.frames.Load(), r.decoded.Load(), r.dropped.Load()
}

func (r *Receiver) readLoop(ctx context.Context, h core.StageHandler) {
	var re reassembler
	buf := make([]byte, maxDatagram)
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.finish(fmt.Errorf("media read: %w", err))
			return
		}

		size, ok, err := re.push(buf[:n])
		r.dropped.Store(re.dropped)
		if err != nil {
			r.logger.WithError(err).Debug("discarding datagram")
			continue
		}
		if !ok {
			continue
		}
		r.frames.Inc()
		h.OnStageEvent(core.StageEvent{Stage: core.StageDecodeSink, Size: size, Timestamp: time.Now()})

		select {
		case r.pending <- struct{}{}:
		default:
		}
	}
}

func (r *Receiver) decodeLoop(ctx context.Context, h core.StageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.pending:
		}
		if r.cfg.DecodeDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.DecodeDelay):
			}
		}
		r.decoded.Inc()
		h.OnStageEvent(core.StageEvent{Stage: core.StageDecodeSource, Size: r.cfg.RawSize, Timestamp: time.Now()})
		h.OnStageEvent(core.StageEvent{Stage: core.StageRender, Size: r.cfg.RawSize, Timestamp: time.Now()})
	}
}

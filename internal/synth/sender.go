package synth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"go.uber.org/atomic"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/log"
)

// Sender generates and transmits synthetic encoded frames.
type Sender struct {
	lifecycle

	cfg    config.PipelineConfig
	logger log.Logger
	rng    *rand.Rand
	conn   *net.UDPConn

	frames atomic.Uint64
}

// NewSender creates a synthetic sender pipeline.
func NewSender(cfg config.PipelineConfig) *Sender {
	return &Sender{
		lifecycle: lifecycle{done: make(chan struct{})},
		cfg:       cfg,
		logger:    log.GetLogger().WithField("component", "synth-sender"),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Start connects the media socket and begins producing frames.
func (s *Sender) Start(ctx context.Context, h core.StageHandler) error {
	if s.cfg.FrameRate <= 0 {
		return fmt.Errorf("synth sender: frame rate must be > 0")
	}
	if s.cfg.MinEncodedSize <= 0 || s.cfg.MaxEncodedSize < s.cfg.MinEncodedSize {
		return fmt.Errorf("synth sender: invalid encoded size range [%d,%d]", s.cfg.MinEncodedSize, s.cfg.MaxEncodedSize)
	}
	raddr, err := net.ResolveUDPAddr("udp", s.cfg.Media)
	if err != nil {
		return fmt.Errorf("resolve media address %q: %w", s.cfg.Media, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial media address %s: %w", raddr, err)
	}
	s.conn = conn

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Go(func() {
		s.finish(s.loop(ctx, h))
	})
	s.logger.Infof("synthetic sender started: %.2f fps to %s", s.cfg.FrameRate, raddr)
	return nil
}

// Stop ends frame production and closes the media socket.
func (s *Sender) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.finish(nil)
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Frames returns how many frames have been produced.
func (s *Sender) Frames() uint64 {
	return s.frames.Load()
}

func (s *Sender) loop(ctx context.Context, h core.StageHandler) error {
	interval := time.Duration(float64(time.Second) / s.cfg.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pk := newPacketizer(s.cfg.MTU, s.rng.Uint32())
	buf := make([]byte, s.cfg.MaxEncodedSize)

	for n := 0; s.cfg.FrameCount == 0 || n < s.cfg.FrameCount; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := s.frame(ctx, h, pk, buf, n); err != nil {
			return err
		}
	}
	s.logger.Infof("synthetic sender finished after %d frames", s.cfg.FrameCount)
	return nil
}

func (s *Sender) frame(ctx context.Context, h core.StageHandler, pk *packetizer, buf []byte, n int) error {
	h.OnStageEvent(core.StageEvent{Stage: core.StagePreEncode, Size: s.cfg.RawSize, Timestamp: time.Now()})

	if s.cfg.EncodeDelay > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.EncodeDelay):
		}
	}
	// noise-like content: consecutive frames rarely share a size
	size := s.cfg.MinEncodedSize + s.rng.IntN(s.cfg.MaxEncodedSize-s.cfg.MinEncodedSize+1)
	h.OnStageEvent(core.StageEvent{Stage: core.StagePostEncode, Size: size, Timestamp: time.Now()})
	s.frames.Inc()

	ts := rtpTimestamp(n, s.cfg.FrameRate)
	packets, err := pk.packetize(buf[:size], ts)
	if err != nil {
		return err
	}
	for _, p := range packets {
		if _, err := s.conn.Write(p); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			// media loss is tolerated; the frame simply never gets acked
			s.logger.WithError(err).Debug("media write failed")
			break
		}
	}
	return nil
}

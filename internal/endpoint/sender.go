package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/conc"

	"firestige.xyz/framelat/internal/ackchan"
	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/correlate"
	"firestige.xyz/framelat/internal/ingest"
	"firestige.xyz/framelat/internal/latency"
	"firestige.xyz/framelat/internal/metrics"
	"firestige.xyz/framelat/internal/session"
	"firestige.xyz/framelat/internal/stats"
)

// Sender is the encoding endpoint. It refuses to start its pipeline until
// the receiver has answered the handshake, since frames sent before that
// could never be acknowledged.
type Sender struct {
	cfg      *config.Config
	pipeline Pipeline
	out      io.Writer

	state      *session.State
	ingest     *ingest.Sender
	correlator *correlate.Sender
	fail       failure

	started chan struct{}
	report  *stats.Report
}

// NewSender wires a sender session around pipeline. The report is written
// to out at the end of Run; a nil out skips rendering.
func NewSender(cfg *config.Config, pipeline Pipeline, out io.Writer) *Sender {
	state := session.New(core.EndpointSender)
	return &Sender{
		cfg:        cfg,
		pipeline:   pipeline,
		out:        out,
		state:      state,
		ingest:     ingest.NewSender(state),
		correlator: correlate.NewSender(state, cfg.Correlator.LookbackWindow),
		started:    make(chan struct{}),
	}
}

// Session returns the session state.
func (s *Sender) Session() *session.State {
	return s.state
}

// Started is closed once the pipeline is playing.
func (s *Sender) Started() <-chan struct{} {
	return s.started
}

// Report returns the report of a finished run.
func (s *Sender) Report() *stats.Report {
	return s.report
}

// Run performs the handshake, runs the pipeline until it ends or ctx is
// cancelled, waits cfg.Sender.Drain for late acks and reports. It returns
// the first fatal error, or nil when the run ended normally.
func (s *Sender) Run(ctx context.Context) error {
	logger := s.state.Logger()
	setStatus(core.EndpointSender, metrics.SessionHandshaking)

	ch, err := ackchan.Listen(ackchan.Config{
		Endpoint:   core.EndpointSender,
		Listen:     s.cfg.Sender.AckListen,
		ReadBuffer: s.cfg.AckChannel.ReadBuffer,
		DSCP:       s.cfg.AckChannel.DSCP,
	})
	if err != nil {
		setStatus(core.EndpointSender, metrics.SessionFailed)
		return err
	}
	defer ch.Close()

	hctx, cancel := context.WithTimeout(ctx, s.cfg.Sender.HandshakeTimeout)
	err = ch.HandshakeAsSender(hctx, s.cfg.Sender.ReceiverAckAddr)
	cancel()
	if err != nil {
		setStatus(core.EndpointSender, metrics.SessionFailed)
		logger.WithError(err).Error("handshake failed, pipeline not started")
		return err
	}

	ctx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)
	s.fail.cancel = cancelCause

	acks := make(chan ackchan.Inbound, s.cfg.Correlator.AckQueueSize)
	loopCtx, stopLoops := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := ch.ReceiveLoop(loopCtx, acks); err != nil {
			logger.WithError(err).Error("ack receive loop stopped")
		}
	})
	wg.Go(func() {
		s.correlateLoop(loopCtx, acks)
	})

	handler := stageHandler(s.ingest, logger, s.fail.set)
	if err := s.pipeline.Start(ctx, handler); err != nil {
		stopLoops()
		ch.Close()
		wg.Wait()
		setStatus(core.EndpointSender, metrics.SessionFailed)
		return fmt.Errorf("start sender pipeline: %w", err)
	}
	close(s.started)
	setStatus(core.EndpointSender, metrics.SessionRunning)
	logger.Info("sender pipeline running")

	select {
	case <-ctx.Done():
	case <-s.pipeline.Done():
		if s.cfg.Sender.Drain > 0 {
			logger.Infof("pipeline ended, waiting %s for late acks", s.cfg.Sender.Drain)
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.Sender.Drain):
			}
		}
	}

	pipeErr := stopPipeline(s.pipeline, logger)
	stopLoops()
	ch.Close()
	wg.Wait()
	chStats := ch.Stats()
	logger.WithFields(map[string]interface{}{
		"received":  chStats.Received,
		"malformed": chStats.Malformed,
		"foreign":   chStats.Foreign,
	}).Info("ack channel closed")

	counts := s.correlator.Counts()
	rep, repErr := report(s.state, s.cfg.Report, s.out, func(r *stats.Report) {
		r.Correlation = &counts
	})
	s.report = rep

	if err := s.fail.get(); err != nil {
		setStatus(core.EndpointSender, metrics.SessionFailed)
		return err
	}
	setStatus(core.EndpointSender, metrics.SessionStopped)
	return errors.Join(pipeErr, repErr)
}

// correlateLoop binds acks until ctx ends, then binds whatever is already
// queued.
func (s *Sender) correlateLoop(ctx context.Context, acks <-chan ackchan.Inbound) {
	for {
		select {
		case in := <-acks:
			s.bind(in)
		case <-ctx.Done():
			for {
				select {
				case in := <-acks:
					s.bind(in)
				default:
					return
				}
			}
		}
	}
}

func (s *Sender) bind(in ackchan.Inbound) {
	seq, outcome, err := s.correlator.Bind(in.Ack, in.At)
	if err != nil {
		s.state.Logger().WithError(err).Error("fatal fault while binding ack, stopping session")
		s.fail.set(err)
		return
	}
	if outcome != correlate.OutcomeDirect && outcome != correlate.OutcomeFallback {
		return
	}
	r, err := s.state.Get(seq)
	if err != nil {
		return
	}
	b, err := latency.Compute(r)
	if err != nil {
		return
	}
	for name, v := range b.Metrics() {
		metrics.FrameLatencyMilliseconds.WithLabelValues(string(core.EndpointSender), name).Observe(v)
	}
}

package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

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

// Receiver is the decoding endpoint. It brings its pipeline up, waits for
// the sender's handshake, then acknowledges every frame its decoder
// completes.
type Receiver struct {
	cfg      *config.Config
	pipeline Pipeline
	out      io.Writer

	state *session.State
	acker *correlate.Acker
	fail  failure

	listening chan struct{}
	ackAddr   string
	queueFull atomic.Uint64
	report    *stats.Report
}

// NewReceiver wires a receiver session around pipeline.
func NewReceiver(cfg *config.Config, pipeline Pipeline, out io.Writer) *Receiver {
	state := session.New(core.EndpointReceiver)
	return &Receiver{
		cfg:       cfg,
		pipeline:  pipeline,
		out:       out,
		state:     state,
		acker:     correlate.NewAcker(state),
		listening: make(chan struct{}),
	}
}

// Session returns the session state.
func (r *Receiver) Session() *session.State {
	return r.state
}

// Listening is closed once the ack socket is bound and the receiver waits
// for the handshake.
func (r *Receiver) Listening() <-chan struct{} {
	return r.listening
}

// AckAddr returns the bound ack address once Listening is closed.
func (r *Receiver) AckAddr() string {
	return r.ackAddr
}

// Report returns the report of a finished run.
func (r *Receiver) Report() *stats.Report {
	return r.report
}

// Run starts the pipeline, waits for the handshake, acknowledges frames
// until the pipeline ends or ctx is cancelled and reports. The pipeline is
// up before the handshake is answered so that no early frame is lost.
// Cancellation before any sender shows up is a normal stop without a report.
func (r *Receiver) Run(ctx context.Context) error {
	logger := r.state.Logger()
	ackStage, err := core.ParseStage(r.cfg.Receiver.AckStage)
	if err != nil {
		return fmt.Errorf("receiver ack stage: %w", err)
	}
	setStatus(core.EndpointReceiver, metrics.SessionHandshaking)

	ch, err := ackchan.Listen(ackchan.Config{
		Endpoint:   core.EndpointReceiver,
		Listen:     r.cfg.Receiver.AckListen,
		ReadBuffer: r.cfg.AckChannel.ReadBuffer,
		DSCP:       r.cfg.AckChannel.DSCP,
	})
	if err != nil {
		setStatus(core.EndpointReceiver, metrics.SessionFailed)
		return err
	}
	defer ch.Close()
	r.ackAddr = ch.LocalAddr().String()
	close(r.listening)

	parent := ctx
	ctx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)
	r.fail.cancel = cancelCause

	acks := make(chan ackchan.Ack, r.cfg.Correlator.AckQueueSize)
	in := ingest.NewReceiver(r.state, ackStage, func() { r.ready(acks) })

	loopCtx, stopLoops := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		r.sendLoop(loopCtx, ch, acks)
	})
	shutdown := func() error {
		pipeErr := stopPipeline(r.pipeline, logger)
		stopLoops()
		wg.Wait()
		return pipeErr
	}

	if err := r.pipeline.Start(ctx, stageHandler(in, logger, r.fail.set)); err != nil {
		stopLoops()
		wg.Wait()
		setStatus(core.EndpointReceiver, metrics.SessionFailed)
		return fmt.Errorf("start receiver pipeline: %w", err)
	}
	logger.Debug("receiver pipeline ready")

	logger.Infof("waiting for sender handshake on %s", r.ackAddr)
	handshakeCtx, stopHandshake := context.WithCancel(ctx)
	go func() {
		select {
		case <-r.pipeline.Done():
			stopHandshake()
		case <-handshakeCtx.Done():
		}
	}()
	peer, err := ch.HandshakeAsReceiver(handshakeCtx)
	stopHandshake()
	if err != nil {
		var ended bool
		select {
		case <-r.pipeline.Done():
			ended = true
		default:
		}
		pipeErr := shutdown()
		switch {
		case r.fail.get() != nil:
			setStatus(core.EndpointReceiver, metrics.SessionFailed)
			return r.fail.get()
		case parent.Err() != nil:
			setStatus(core.EndpointReceiver, metrics.SessionStopped)
			return nil
		case ended:
			setStatus(core.EndpointReceiver, metrics.SessionFailed)
			return errors.Join(fmt.Errorf("receiver pipeline ended before the handshake: %w", err), pipeErr)
		}
		setStatus(core.EndpointReceiver, metrics.SessionFailed)
		logger.WithError(err).Error("handshake failed")
		return err
	}
	setStatus(core.EndpointReceiver, metrics.SessionRunning)
	logger.Infof("acknowledging frames to %s", peer)

	select {
	case <-ctx.Done():
	case <-r.pipeline.Done():
	}

	pipeErr := shutdown()
	if n := r.queueFull.Load(); n > 0 {
		logger.Warnf("%d acks dropped on a full send queue", n)
	}
	rep, repErr := report(r.state, r.cfg.Report, r.out, nil)
	r.report = rep

	if err := r.fail.get(); err != nil {
		setStatus(core.EndpointReceiver, metrics.SessionFailed)
		return err
	}
	setStatus(core.EndpointReceiver, metrics.SessionStopped)
	return errors.Join(pipeErr, repErr)
}

// ready runs on the pipeline thread: it builds the ack and queues it
// without blocking.
func (r *Receiver) ready(acks chan<- ackchan.Ack) {
	ack, ok, err := r.acker.Ready()
	if err != nil {
		r.state.Logger().WithError(err).Debug("no ack for ready frame")
		return
	}
	if !ok {
		return
	}
	select {
	case acks <- ack:
	default:
		r.queueFull.Inc()
		metrics.AckMessagesTotal.WithLabelValues(string(core.EndpointReceiver), "queue_full").Inc()
	}
}

func (r *Receiver) sendLoop(ctx context.Context, ch *ackchan.Channel, acks <-chan ackchan.Ack) {
	endpoint := string(core.EndpointReceiver)
	for {
		select {
		case <-ctx.Done():
			return
		case ack := <-acks:
			if err := ch.SendAck(ack); err != nil {
				r.state.Logger().WithError(err).Warnf("failed to send ack %d", ack.Sequence)
				continue
			}
			metrics.FrameLatencyMilliseconds.WithLabelValues(endpoint, latency.MetricDecode).Observe(ack.DecodeLatencyMs)
			metrics.FrameLatencyMilliseconds.WithLabelValues(endpoint, latency.MetricProcessing).Observe(ack.ProcessingLatencyMs)
		}
	}
}

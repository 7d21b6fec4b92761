// Package gstpipe drives a GStreamer pipeline and reports buffers crossing
// the encoder or decoder pads as stage events.
package gstpipe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/tinyzimmer/go-gst/gst"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/log"
)

// busPollInterval bounds how long the bus monitor waits per poll, which is
// also how quickly it notices cancellation.
const busPollInterval = 50 * time.Millisecond

// Pipeline is a parsed gst-launch pipeline with stage probes.
type Pipeline struct {
	name   string
	launch string
	probes []Probe
	logger log.Logger

	pipeline *gst.Pipeline
	cancel   context.CancelFunc
	wg       conc.WaitGroup

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// NewSender builds the encoder side: probes on the encoder's sink and src
// pads fire pre-encode and post-encode.
func NewSender(cfg config.PipelineConfig) (*Pipeline, error) {
	launch, err := senderLaunch(cfg)
	if err != nil {
		return nil, err
	}
	return newPipeline("sender", launch, senderProbes(cfg)), nil
}

// NewReceiver builds the decoder side: probes on the decoder's sink and src
// pads fire decode-sink and decode-source, and the video sink's pad fires
// render.
func NewReceiver(cfg config.PipelineConfig) (*Pipeline, error) {
	launch, err := receiverLaunch(cfg)
	if err != nil {
		return nil, err
	}
	return newPipeline("receiver", launch, receiverProbes(cfg)), nil
}

func newPipeline(name, launch string, probes []Probe) *Pipeline {
	return &Pipeline{
		name:   name,
		launch: launch,
		probes: probes,
		done:   make(chan struct{}),
		logger: log.GetLogger().WithFields(map[string]interface{}{
			"component": "gstpipe",
			"pipeline":  name,
		}),
	}
}

// Launch returns the pipeline description.
func (p *Pipeline) Launch() string {
	return p.launch
}

// Start parses the pipeline, installs the probes and sets it playing.
func (p *Pipeline) Start(ctx context.Context, h core.StageHandler) error {
	gst.Init(nil)

	p.logger.Debugf("creating pipeline: %s", p.launch)
	pipeline, err := gst.NewPipelineFromString(p.launch)
	if err != nil {
		return fmt.Errorf("failed to create %s pipeline: %w", p.name, err)
	}
	for _, pr := range p.probes {
		if err := installProbe(pipeline, pr, h); err != nil {
			pipeline.SetState(gst.StateNull)
			return err
		}
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to start %s pipeline: %w", p.name, err)
	}
	p.pipeline = pipeline

	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Go(func() {
		p.finish(p.monitor(ctx))
	})
	p.logger.Info("pipeline playing")
	return nil
}

// Stop tears the pipeline down.
func (p *Pipeline) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.finish(nil)
	if p.pipeline == nil {
		return nil
	}
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to stop %s pipeline: %w", p.name, err)
	}
	return nil
}

// Done is closed on end of stream, on a pipeline error and on Stop.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err returns the pipeline error that ended the run, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pipeline) finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

// installProbe adds a buffer probe. The callback runs on a GStreamer
// streaming thread and only timestamps the buffer and hands it on.
func installProbe(pipeline *gst.Pipeline, pr Probe, h core.StageHandler) error {
	element, err := pipeline.GetElementByName(pr.Element)
	if err != nil {
		return fmt.Errorf("element %q not found in pipeline: %w", pr.Element, err)
	}
	pad := element.GetStaticPad(pr.Pad)
	if pad == nil {
		return fmt.Errorf("element %q has no %s pad", pr.Element, pr.Pad)
	}
	stage := pr.Stage
	pad.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		now := time.Now()
		buffer := info.GetBuffer()
		if buffer == nil {
			return gst.PadProbeOK
		}
		h.OnStageEvent(core.StageEvent{Stage: stage, Size: int(buffer.GetSize()), Timestamp: now})
		return gst.PadProbeOK
	})
	return nil
}

// monitor polls the bus until end of stream, an error or cancellation.
func (p *Pipeline) monitor(ctx context.Context) error {
	bus := p.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			p.logger.Info("end of stream")
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			p.logger.WithField("debug", gerr.DebugString()).Errorf("pipeline error: %s", gerr.Error())
			return fmt.Errorf("%s pipeline error: %s", p.name, gerr.Error())
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			p.logger.Warnf("pipeline warning: %s", gerr.Error())
		}
	}
}

package gstpipe

import (
	"fmt"
	"math"
	"net"
	"strings"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
)

// Probe attaches a stage to one pad of a named element.
type Probe struct {
	Element string
	Pad     string // sink | src
	Stage   core.Stage
}

// senderLaunch returns the sender pipeline description. A configured
// launch string is used verbatim; it must name the encoder element.
func senderLaunch(cfg config.PipelineConfig) (string, error) {
	if cfg.Launch != "" {
		return cfg.Launch, nil
	}
	host, port, err := net.SplitHostPort(cfg.Media)
	if err != nil {
		return "", fmt.Errorf("sender media address %q: %w", cfg.Media, err)
	}
	src := "videotestsrc pattern=snow"
	if cfg.FrameCount > 0 {
		src += fmt.Sprintf(" num-buffers=%d", cfg.FrameCount)
	}
	parts := []string{
		src,
		"video/x-raw,width=1920,height=1080,framerate=" + framerate(cfg.FrameRate),
		"videoconvert",
		fmt.Sprintf("x264enc speed-preset=ultrafast tune=zerolatency name=%s", encoderName(cfg)),
		"h264parse",
		"rtph264pay config-interval=1",
		fmt.Sprintf("udpsink host=%s port=%s sync=false async=false", host, port),
	}
	return strings.Join(parts, " ! "), nil
}

// receiverLaunch returns the receiver pipeline description.
func receiverLaunch(cfg config.PipelineConfig) (string, error) {
	if cfg.Launch != "" {
		return cfg.Launch, nil
	}
	_, port, err := net.SplitHostPort(cfg.Media)
	if err != nil {
		return "", fmt.Errorf("receiver media address %q: %w", cfg.Media, err)
	}
	render := cfg.RenderElement
	if render == "" {
		render = "render"
	}
	parts := []string{
		fmt.Sprintf("udpsrc port=%s", port),
		"application/x-rtp,encoding-name=H264",
		"rtph264depay",
		"queue",
		fmt.Sprintf("avdec_h264 name=%s", decoderName(cfg)),
		"videoconvert",
		fmt.Sprintf("autovideosink name=%s", render),
	}
	return strings.Join(parts, " ! "), nil
}

func senderProbes(cfg config.PipelineConfig) []Probe {
	enc := encoderName(cfg)
	return []Probe{
		{Element: enc, Pad: "sink", Stage: core.StagePreEncode},
		{Element: enc, Pad: "src", Stage: core.StagePostEncode},
	}
}

func receiverProbes(cfg config.PipelineConfig) []Probe {
	dec := decoderName(cfg)
	probes := []Probe{
		{Element: dec, Pad: "sink", Stage: core.StageDecodeSink},
		{Element: dec, Pad: "src", Stage: core.StageDecodeSource},
	}
	if cfg.RenderElement != "" {
		probes = append(probes, Probe{Element: cfg.RenderElement, Pad: "sink", Stage: core.StageRender})
	}
	return probes
}

func encoderName(cfg config.PipelineConfig) string {
	if cfg.Element != "" {
		return cfg.Element
	}
	return "x264enc"
}

func decoderName(cfg config.PipelineConfig) string {
	if cfg.Element != "" {
		return cfg.Element
	}
	return "avdec_h264"
}

// framerate renders fps as a GStreamer fraction.
func framerate(fps float64) string {
	if fps <= 0 {
		fps = 30
	}
	if fps == math.Trunc(fps) {
		return fmt.Sprintf("%d/1", int(fps))
	}
	return fmt.Sprintf("%d/1000", int(math.Round(fps*1000)))
}

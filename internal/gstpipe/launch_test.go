package gstpipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
)

func TestSenderLaunch(t *testing.T) {
	launch, err := senderLaunch(config.PipelineConfig{Element: "x264enc", Media: "10.0.0.2:5000", FrameRate: 30})
	require.NoError(t, err)
	assert.Equal(t,
		"videotestsrc pattern=snow ! video/x-raw,width=1920,height=1080,framerate=30/1 ! videoconvert ! "+
			"x264enc speed-preset=ultrafast tune=zerolatency name=x264enc ! h264parse ! rtph264pay config-interval=1 ! "+
			"udpsink host=10.0.0.2 port=5000 sync=false async=false",
		launch)

	launch, err = senderLaunch(config.PipelineConfig{Media: "127.0.0.1:5000", FrameRate: 29.97, FrameCount: 90})
	require.NoError(t, err)
	assert.Contains(t, launch, "num-buffers=90")
	assert.Contains(t, launch, "framerate=29970/1000")

	_, err = senderLaunch(config.PipelineConfig{Media: "nohost"})
	assert.Error(t, err)

	launch, err = senderLaunch(config.PipelineConfig{Launch: "custom ! pipeline"})
	require.NoError(t, err)
	assert.Equal(t, "custom ! pipeline", launch)
}

func TestReceiverLaunch(t *testing.T) {
	launch, err := receiverLaunch(config.PipelineConfig{Element: "avdec_h264", RenderElement: "render", Media: "0.0.0.0:5000"})
	require.NoError(t, err)
	assert.Equal(t,
		"udpsrc port=5000 ! application/x-rtp,encoding-name=H264 ! rtph264depay ! queue ! "+
			"avdec_h264 name=avdec_h264 ! videoconvert ! autovideosink name=render",
		launch)
}

func TestProbes(t *testing.T) {
	sp := senderProbes(config.PipelineConfig{})
	assert.Equal(t, []Probe{
		{Element: "x264enc", Pad: "sink", Stage: core.StagePreEncode},
		{Element: "x264enc", Pad: "src", Stage: core.StagePostEncode},
	}, sp)

	rp := receiverProbes(config.PipelineConfig{Element: "dec", RenderElement: "render"})
	require.Len(t, rp, 3)
	assert.Equal(t, core.StageDecodeSink, rp[0].Stage)
	assert.Equal(t, core.StageDecodeSource, rp[1].Stage)
	assert.Equal(t, Probe{Element: "render", Pad: "sink", Stage: core.StageRender}, rp[2])

	assert.Len(t, receiverProbes(config.PipelineConfig{}), 2)
}

func TestNewPipelineKeepsLaunch(t *testing.T) {
	cfg := config.PipelineConfig{Element: "x264enc", Media: "127.0.0.1:5000", FrameRate: 30}
	p, err := NewSender(cfg)
	require.NoError(t, err)
	want, err := senderLaunch(cfg)
	require.NoError(t, err)
	assert.Equal(t, want, p.Launch())

	_, err = NewReceiver(config.PipelineConfig{Media: "nohost"})
	assert.Error(t, err)
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/gstpipe"
	"firestige.xyz/framelat/internal/synth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framelat.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunValidate(t *testing.T) {
	path := writeConfig(t, `
framelat:
  sender:
    receiver_ack_addr: 10.0.0.2:5001
    pipeline:
      kind: synth
  receiver:
    ack_stage: render
  correlator:
    lookback_window: 20
`)
	var out bytes.Buffer
	require.NoError(t, runValidate(path, &out))
	assert.Equal(t,
		"VALID: sender synth pipeline -> 10.0.0.2:5001, receiver gst pipeline acking on render, lookback 20, report text\n",
		out.String())
}

func TestRunValidate_Invalid(t *testing.T) {
	path := writeConfig(t, `
framelat:
  report:
    format: xml
`)
	err := runValidate(path, &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestNewPipeline(t *testing.T) {
	p, err := newPipeline(core.EndpointSender, config.PipelineConfig{Kind: config.PipelineSynth})
	require.NoError(t, err)
	assert.IsType(t, &synth.Sender{}, p)

	p, err = newPipeline(core.EndpointReceiver, config.PipelineConfig{Kind: config.PipelineSynth})
	require.NoError(t, err)
	assert.IsType(t, &synth.Receiver{}, p)

	p, err = newPipeline(core.EndpointReceiver, config.PipelineConfig{Kind: config.PipelineGst, Media: "0.0.0.0:5000"})
	require.NoError(t, err)
	assert.IsType(t, &gstpipe.Pipeline{}, p)

	_, err = newPipeline(core.EndpointSender, config.PipelineConfig{Kind: "v4l2"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestFlagOverrides(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(senderCmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--receiver", "10.1.1.1:6000", "--frames", "90"}))
	applySenderFlags(cmd, cfg)
	assert.Equal(t, "10.1.1.1:6000", cfg.Sender.ReceiverAckAddr)
	assert.Equal(t, 90, cfg.Sender.Pipeline.FrameCount)
	assert.Equal(t, config.PipelineGst, cfg.Sender.Pipeline.Kind, "unchanged flag keeps config value")

	rcmd := &cobra.Command{}
	rcmd.Flags().AddFlagSet(receiverCmd.Flags())
	require.NoError(t, rcmd.Flags().Parse([]string{"--ack-stage", "render"}))
	applyReceiverFlags(rcmd, cfg)
	assert.Equal(t, "render", cfg.Receiver.AckStage)
}

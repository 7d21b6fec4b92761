package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/endpoint"
)

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Run the encoding endpoint",
	Long: `Run the encoding endpoint.

The sender:
  1. Sends "init" to the receiver's ack address and waits for "ack"
  2. Starts the encode pipeline (gst or synth) only after the handshake
  3. Correlates every acknowledgment with the frame it describes
  4. Reports latency statistics when the pipeline ends or on SIGINT/SIGTERM

Examples:
  framelat sender -c framelat.yml
  framelat sender --receiver 10.0.0.2:5001 --pipeline synth --frames 300`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := prepare(configFile)
		if err != nil {
			return err
		}
		applySenderFlags(cmd, cfg)

		pipeline, err := newPipeline(core.EndpointSender, cfg.Sender.Pipeline)
		if err != nil {
			return err
		}
		s := endpoint.NewSender(cfg, pipeline, os.Stdout)
		return execute(cfg, core.EndpointSender, s.Run)
	},
}

var (
	senderReceiverAddr string
	senderPipelineKind string
	senderFrames       int
)

func init() {
	senderCmd.Flags().StringVarP(&senderReceiverAddr, "receiver", "r", "",
		"receiver ack address (overrides sender.receiver_ack_addr)")
	senderCmd.Flags().StringVar(&senderPipelineKind, "pipeline", "",
		"pipeline kind: gst or synth (overrides sender.pipeline.kind)")
	senderCmd.Flags().IntVarP(&senderFrames, "frames", "n", 0,
		"stop after this many frames (overrides sender.pipeline.frame_count)")
}

func applySenderFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("receiver") {
		cfg.Sender.ReceiverAckAddr = senderReceiverAddr
	}
	if cmd.Flags().Changed("pipeline") {
		cfg.Sender.Pipeline.Kind = senderPipelineKind
	}
	if cmd.Flags().Changed("frames") {
		cfg.Sender.Pipeline.FrameCount = senderFrames
	}
}

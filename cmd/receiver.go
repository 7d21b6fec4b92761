package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/framelat/internal/config"
	"firestige.xyz/framelat/internal/core"
	"firestige.xyz/framelat/internal/endpoint"
)

var receiverCmd = &cobra.Command{
	Use:   "receiver",
	Short: "Run the decoding endpoint",
	Long: `Run the decoding endpoint.

The receiver waits for the sender's "init" on its ack address, learns the
sender's return address from it and then acknowledges every decoded frame.
Statistics over its own decode and processing latency are printed on exit.

Examples:
  framelat receiver -c framelat.yml
  framelat receiver --pipeline synth --ack-stage render`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := prepare(configFile)
		if err != nil {
			return err
		}
		applyReceiverFlags(cmd, cfg)

		pipeline, err := newPipeline(core.EndpointReceiver, cfg.Receiver.Pipeline)
		if err != nil {
			return err
		}
		r := endpoint.NewReceiver(cfg, pipeline, os.Stdout)
		return execute(cfg, core.EndpointReceiver, r.Run)
	},
}

var (
	receiverPipelineKind string
	receiverAckStage     string
)

func init() {
	receiverCmd.Flags().StringVar(&receiverPipelineKind, "pipeline", "",
		"pipeline kind: gst or synth (overrides receiver.pipeline.kind)")
	receiverCmd.Flags().StringVar(&receiverAckStage, "ack-stage", "",
		"stage that triggers an ack: decode-source or render (overrides receiver.ack_stage)")
}

func applyReceiverFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("pipeline") {
		cfg.Receiver.Pipeline.Kind = receiverPipelineKind
	}
	if cmd.Flags().Changed("ack-stage") {
		cfg.Receiver.AckStage = receiverAckStage
	}
}

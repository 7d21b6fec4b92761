package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/framelat/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without running anything.

Examples:
  framelat validate -c framelat.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "VALID: sender %s pipeline -> %s, receiver %s pipeline acking on %s, lookback %d, report %s\n",
		cfg.Sender.Pipeline.Kind,
		cfg.Sender.ReceiverAckAddr,
		cfg.Receiver.Pipeline.Kind,
		cfg.Receiver.AckStage,
		cfg.Correlator.LookbackWindow,
		cfg.Report.Format,
	)
	return nil
}

// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "framelat",
	Short: "framelat - per-frame video pipeline latency measurement",
	Long: `framelat measures per-frame latency of a video pipeline split across two hosts.

The sender instruments its encoder, the receiver instruments its decoder and
acknowledges every decoded frame over UDP. The sender correlates each
acknowledgment with the frame it describes and reports the encode, decode and
round trip latency distributions at the end of the run.

Start the receiver first, then the sender.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	rootCmd.AddCommand(senderCmd)
	rootCmd.AddCommand(receiverCmd)
	rootCmd.AddCommand(validateCmd)
}

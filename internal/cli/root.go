// Package cli is the cobra command tree for videowhisper: serve runs the
// HTTP facade, while submit/status/watch/stop-all are thin API clients for
// scripting or interactive use.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "videowhisper",
	Short: "Transcribe, polish, and summarize video/audio via a local pipeline service",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("videowhisper %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopAllCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the root command; main.go's sole job is to call this and
// translate a non-nil error into a nonzero exit code.
func Execute() error {
	return rootCmd.Execute()
}

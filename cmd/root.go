package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "idobridge",
	Short: "Idobata chat bot adapter",
	Long:  "Connects a bot to Idobata rooms: listens to the event stream for mentions and posts replies.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

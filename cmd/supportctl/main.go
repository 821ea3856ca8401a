package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel string
}

var rootCmd = &cobra.Command{
	Use:   "supportctl",
	Short: "Operate the SupportIQ triage pipeline",
	Long:  "supportctl runs the SupportIQ service and its maintenance tasks:\nmigrations, threshold adaptation, surge sweeps, knowledge-base drafts\nand client secret hashing.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "", "Override LOG_LEVEL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(adaptCmd)
	rootCmd.AddCommand(surgeCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

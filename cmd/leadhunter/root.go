package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information, set via -ldflags at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "leadhunter",
	Short: "A bounded harvester for public professional-profile search results",
	Long: `leadhunter runs a polite, bounded harvesting pipeline against a search API
exposing public professional-profile results.

Features:
  - Secure credential storage using system keychain
  - Strict rate limiting with randomized jitter
  - Automatic retry with per-error-class backoff
  - Cross-run deduplication via a persistent seen index
  - Optional email enrichment with a bounded worker pool
  - Checkpointed, resumable runs

The run halts immediately if the target signals that the client has been
detected; it never attempts to bypass countermeasures.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.leadhunter.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`leadhunter {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

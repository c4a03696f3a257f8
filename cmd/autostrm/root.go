package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "autostrm",
	Short: "Debrid-backed download client that writes .strm libraries",
	Long: `autostrm - debrid-backed download client that writes .strm libraries

Submissions arrive through a qBittorrent-compatible API, are handed to
TorBox, and become .strm pointer files once the service has them ready.

Run 'autostrm serve' to start the daemon. The other commands work on the
same state directory and can run while the daemon is up.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: discovered)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("autostrm {{.Version}}\n")
}

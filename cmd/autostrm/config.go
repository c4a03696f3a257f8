package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/autostrm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configTestCmd = &cobra.Command{
	Use:   "test [path]",
	Short: "Validate configuration file",
	Long:  "Validates config.toml syntax, required fields, and environment variable substitution without starting the server.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigTest,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configTestCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigTest(cmd *cobra.Command, args []string) error {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = config.Discover()
	}

	out := cmd.OutOrStdout()
	if path == "" {
		_, _ = fmt.Fprintln(out, "No config file found, validating defaults and environment...")
		_, _ = fmt.Fprintln(out)
	} else {
		_, _ = fmt.Fprintf(out, "Validating %s...\n\n", path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		var configErr *config.Error
		if errors.As(err, &configErr) {
			printConfigErrors(out, configErr)
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	printConfigSummary(out, cfg)
	_, _ = fmt.Fprintln(out, "\nConfiguration valid!")
	return nil
}

func printConfigErrors(w io.Writer, e *config.Error) {
	if len(e.Missing) > 0 {
		_, _ = fmt.Fprintln(w, "Missing environment variables:")
		for _, m := range e.Missing {
			_, _ = fmt.Fprintf(w, "  - %s\n", m)
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(e.Errors) > 0 {
		_, _ = fmt.Fprintln(w, "Validation errors:")
		for _, err := range e.Errors {
			_, _ = fmt.Fprintf(w, "  - %s\n", err)
		}
		_, _ = fmt.Fprintln(w)
	}
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	_, _ = fmt.Fprintln(w, "Configuration Summary:")
	_, _ = fmt.Fprintf(w, "  Server:     %s:%d (log: %s)\n", cfg.Server.Host, cfg.Server.Port, cfg.Server.LogLevel)
	_, _ = fmt.Fprintf(w, "  Storage:    %s\n", cfg.Storage.Dir)
	_, _ = fmt.Fprintf(w, "  TorBox:     %s (key: %s)\n", cfg.TorBox.URL, maskSecret(cfg.TorBox.APIKey))
	_, _ = fmt.Fprintf(w, "  TV:         %s -> %s\n", cfg.Library.TVCategory, cfg.Library.TVRoot)
	_, _ = fmt.Fprintf(w, "  Movies:     %s -> %s\n", cfg.Library.MoviesCategory, cfg.Library.MoviesRoot)
	_, _ = fmt.Fprintf(w, "  Extensions: %s\n", strings.Join(cfg.Library.Extensions, " "))
	_, _ = fmt.Fprintf(w, "  Polling:    %s..%s (x%.2g)\n", cfg.Reconcile.MinInterval, cfg.Reconcile.MaxInterval, cfg.Reconcile.Factor)

	integrations := []string{}
	if cfg.Jellyfin.URL != "" {
		integrations = append(integrations, "jellyfin")
	}
	if cfg.Metrics.Enabled {
		integrations = append(integrations, "metrics")
	}
	if len(integrations) > 0 {
		_, _ = fmt.Fprintf(w, "  Integrations: %s\n", strings.Join(integrations, ", "))
	}
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return "unset"
	case len(s) <= 4:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath()
	if len(args) > 0 {
		path = args[0]
	}
	if err := config.WriteDefault(path, configInitForce); err != nil {
		if errors.Is(err, config.ErrExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/altafino/attachment-fetcher/internal/app"
	"github.com/altafino/attachment-fetcher/internal/config"
	"github.com/altafino/attachment-fetcher/internal/credential"
	"github.com/altafino/attachment-fetcher/internal/logger"
	"github.com/altafino/attachment-fetcher/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fetcher",
		Short: "Mail attachment fetcher",
		Long: `Downloads attachments from IMAP, POP3 and Gmail mailboxes, filters and
renames them and writes them to a local directory or Google Drive.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config-dir", "./config", "directory holding <id>.config.yaml profiles")
	flags.String("log-level", "", "override logging level (debug, info, warn, error)")
	flags.String("log-format", "", "override logging format (text, json, dev)")

	viper.SetEnvPrefix("FETCHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("config-dir", flags.Lookup("config-dir"))
	viper.BindPFlag("log-level", flags.Lookup("log-level"))
	viper.BindPFlag("log-format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		CreateRunCommand(),
		CreatePreviewCommand(),
		CreateServeCommand(),
		CreateFoldersCommand(),
		CreatePresetsCommand(),
		CreateOAuth2Command(),
		CreateCredentialsCommand(),
	)
	return rootCmd
}

// newLogger builds the CLI logger. Flags and FETCHER_LOG_* variables win
// over the given defaults.
func newLogger(level, format string) *slog.Logger {
	if v := viper.GetString("log-level"); v != "" {
		level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		format = v
	}
	if level == "" {
		level = "info"
	}
	return logger.New(os.Stderr, level, format, false)
}

// openCredentials opens the keyring next to the profiles. The fetcher still
// works with inline passwords and file token stores when it fails.
func openCredentials(configDir string, log *slog.Logger) *credential.Store {
	creds, err := credential.Open(configDir)
	if err != nil {
		log.Warn("keyring unavailable, using inline passwords only", "error", err)
		return nil
	}
	return creds
}

// newApp loads the profiles and wires the application.
func newApp(m *metrics.Metrics) (*app.App, *slog.Logger, error) {
	log := newLogger("", "text")
	slog.SetDefault(log)

	configDir := viper.GetString("config-dir")
	store, err := config.Load(configDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configs from %s: %w", configDir, err)
	}

	log.Debug("loaded configurations",
		"count", len(store.List()),
		"enabled", len(store.Enabled()),
	)

	opts := []app.Option{app.WithCredentials(openCredentials(configDir, log))}
	if m != nil {
		opts = append(opts, app.WithMetrics(m))
	}
	return app.New(store, log, opts...), log, nil
}

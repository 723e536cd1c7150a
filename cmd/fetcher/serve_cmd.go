package main

import (
	"context"
	"time"

	"github.com/altafino/attachment-fetcher/internal/app"
	"github.com/altafino/attachment-fetcher/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 30 * time.Second

// CreateServeCommand creates the command that runs scheduled profiles until
// interrupted
func CreateServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled profiles",
		Long:  `Schedule every enabled profile with scheduling.enabled, reload profiles when the config directory changes and serve Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := newApp(metrics.New())
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.Start(ctx, app.ServeOptions{
				MetricsAddr: viper.GetString("metrics-addr"),
				MetricsPath: viper.GetString("metrics-path"),
				Watch:       !viper.GetBool("no-watch"),
			}); err != nil {
				return err
			}

			<-ctx.Done()
			log.Info("shutting down application")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.Stop(shutdownCtx)
		},
	}

	cmd.Flags().String("metrics-addr", ":9090", "metrics listen address, empty to disable")
	cmd.Flags().String("metrics-path", metrics.DefaultPath, "metrics endpoint path")
	cmd.Flags().Bool("no-watch", false, "do not reload profiles on change")
	viper.BindPFlag("metrics-addr", cmd.Flags().Lookup("metrics-addr"))
	viper.BindPFlag("metrics-path", cmd.Flags().Lookup("metrics-path"))
	viper.BindPFlag("no-watch", cmd.Flags().Lookup("no-watch"))
	return cmd
}

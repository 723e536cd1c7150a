package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/altafino/attachment-fetcher/internal/app"
	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// CreateRunCommand creates the command that runs profiles once
func CreateRunCommand() *cobra.Command {
	var (
		all         bool
		concurrency int
		destination string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "run [config-id...]",
		Short: "Download attachments once",
		Long:  `Run the given profiles, or every enabled profile with --all, and print a summary per run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp(nil)
			if err != nil {
				return err
			}

			ids, err := profileIDs(a, args, all)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var errs []error
			for _, id := range ids {
				summary, err := a.RunOnce(ctx, id, app.RunOptions{
					Concurrency: concurrency,
					Destination: destination,
				})
				if summary != nil {
					printSummary(cmd.OutOrStdout(), id, summary)
					if verbose {
						printJobs(cmd.OutOrStdout(), summary.Jobs)
					}
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
				}
				if ctx.Err() != nil {
					break
				}
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "run every enabled profile")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "override download.concurrency")
	cmd.Flags().StringVar(&destination, "destination", "", "override download.destination")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every job")
	return cmd
}

// CreatePreviewCommand creates the dry-run command
func CreatePreviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview [config-id]",
		Short: "Show what a run would download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp(nil)
			if err != nil {
				return err
			}
			summary, err := a.Preview(cmd.Context(), args[0], app.RunOptions{})
			if summary != nil {
				printJobs(cmd.OutOrStdout(), summary.Jobs)
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d attachments, %s\n", len(summary.Jobs), humanize.Bytes(uint64(summary.Bytes)))
			}
			return err
		},
	}
}

func profileIDs(a *app.App, args []string, all bool) ([]string, error) {
	if all {
		var ids []string
		for _, cfg := range a.Store().Enabled() {
			ids = append(ids, cfg.Meta.ID)
		}
		if len(ids) == 0 {
			return nil, errors.New("no enabled profiles")
		}
		return ids, nil
	}
	if len(args) == 0 {
		return nil, errors.New("name at least one config id or pass --all")
	}
	return args, nil
}

func printSummary(w io.Writer, id string, s *models.Summary) {
	state := "finished"
	if s.Canceled {
		state = "canceled"
	}
	fmt.Fprintf(w, "%s: run %s %s in %s\n", id, s.RunID, state, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  messages %s, matched %s, skipped %s\n",
		humanize.Comma(int64(s.Messages)), humanize.Comma(int64(s.Matched)), humanize.Comma(int64(s.Skipped)))
	fmt.Fprintf(w, "  done %s (%s), failed %s\n",
		humanize.Comma(int64(s.Done)), humanize.Bytes(uint64(s.Bytes)), humanize.Comma(int64(s.Failed)))
}

func printJobs(w io.Writer, jobs []models.JobResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSIZE\tRETRIES\tDESTINATION\tERROR")
	for _, j := range jobs {
		size := "?"
		if j.Bytes > 0 {
			size = humanize.Bytes(uint64(j.Bytes))
		} else if j.Size >= 0 {
			size = humanize.Bytes(uint64(j.Size))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", j.Status, size, j.Retries, j.Destination, j.Error)
	}
	tw.Flush()
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

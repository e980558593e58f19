package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/selector"
)

func newRunCmd() *cobra.Command {
	var sourceIDs []string
	var all bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more sources to completion",
		Long: `Runs the named sources (or every active source with --all) and prints
one JSON run summary per line. Cancelling with Ctrl-C stops each run after
the URL in flight.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == (len(sourceIDs) > 0) {
				return errors.New("exactly one of --source or --all is required")
			}
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if all {
				summaries, err := svc.RunAll(cmd.Context())
				for _, s := range summaries {
					if encErr := enc.Encode(s); encErr != nil {
						return fmt.Errorf("write summary: %w", encErr)
					}
				}
				return err
			}
			var errs []error
			for _, id := range sourceIDs {
				summary, err := svc.RunSource(cmd.Context(), id)
				if err != nil {
					errs = append(errs, fmt.Errorf("run %s: %w", id, err))
				}
				if summary.RunID != "" {
					if encErr := enc.Encode(summary); encErr != nil {
						return fmt.Errorf("write summary: %w", encErr)
					}
				}
				if cmd.Context().Err() != nil {
					break
				}
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringSliceVar(&sourceIDs, "source", nil, "source id to run (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "run every active source")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops API and run queued sources on the worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.Serve(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}

type calibration struct {
	SourceID string                 `json:"source_id"`
	Strategy crawler.Strategy       `json:"strategy"`
	Reason   string                 `json:"reason"`
	Results  []selector.TrialResult `json:"results,omitempty"`
}

func newCalibrateCmd() *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Trial the fetch strategies for a source and remember the winner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := resolveService(cmd.Context())
			if err != nil {
				return err
			}
			d, err := svc.Calibrate(cmd.Context(), sourceID)
			if err != nil {
				return fmt.Errorf("calibrate %s: %w", sourceID, err)
			}
			out := calibration{SourceID: sourceID, Strategy: d.Strategy, Reason: d.Reason, Results: d.Results}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "source id to calibrate")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

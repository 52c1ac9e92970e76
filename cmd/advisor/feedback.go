package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/stackadvisor/internal/feedback"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record and inspect recommendation feedback",
	}
	cmd.AddCommand(newFeedbackSubmitCmd(), newFeedbackStatsCmd())
	return cmd
}

func newFeedbackSubmitCmd() *cobra.Command {
	var (
		sessionID string
		rating    int
		helpful   bool
		comment   string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Rate a recommendation",
		Long: `Store a 1-5 rating for a session's recommendation.

Examples:
  advisor feedback submit --session 6f1c2b9e --rating 5 --helpful --comment "spot on"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appParts{})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			fb, err := a.feedback.Submit(ctx, feedback.Feedback{
				SessionID: sessionID,
				Rating:    rating,
				Helpful:   helpful,
				Comment:   comment,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Feedback %s recorded\n", fb.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID the feedback refers to (required)")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5 (required)")
	cmd.Flags().BoolVar(&helpful, "helpful", false, "mark the recommendation as helpful")
	cmd.Flags().StringVar(&comment, "comment", "", "free text comment")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func newFeedbackStatsCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate feedback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appParts{})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			stats, err := a.feedback.Stats(ctx)
			if err != nil {
				return err
			}
			return printStats(cmd, stats, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func printStats(cmd *cobra.Command, stats feedback.Stats, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Total\t%d\n", stats.Total)
	fmt.Fprintf(w, "Average rating\t%.2f\n", stats.AverageRating)
	fmt.Fprintf(w, "Helpful\t%d (%.1f%%)\n", stats.HelpfulCount, stats.HelpfulPercent)
	fmt.Fprintf(w, "Not helpful\t%d\n", stats.UnhelpfulCount)
	return w.Flush()
}

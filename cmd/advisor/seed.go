package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Index the reference corpus",
		Long: `Embed and index the reference use cases and framework catalog.

Collections that already hold the full corpus are skipped unless --force is
given, in which case they are dropped and rewritten.

Examples:
  # Seed missing collections
  advisor seed

  # Rebuild after editing the corpus file
  advisor seed --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appParts{index: true})
			if err != nil {
				return err
			}
			defer a.close(ctx)

			bar := progressbar.NewOptions(a.corpus.Total(),
				progressbar.OptionSetDescription("seeding"),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			res, err := a.seed(ctx, a.corpus, force, func(n int) { _ = bar.Add(n) })
			_ = bar.Finish()
			if err != nil {
				return fmt.Errorf("seeding reference corpus: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d use cases and %d frameworks\n", res.UseCases, res.Frameworks)
			for _, c := range res.Skipped {
				fmt.Fprintf(out, "Skipped %s (already complete; use --force to rebuild)\n", c)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop and rewrite collections that are already complete")
	return cmd
}

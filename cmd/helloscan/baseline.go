package helloscan

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helloscan/helloscan/internal/linesource"
	"github.com/helloscan/helloscan/internal/report"
)

func init() {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage baselines",
	}

	update := &cobra.Command{
		Use:   "update",
		Short: "Accept every current finding into the baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			c, err := s.build()
			if err != nil {
				return err
			}
			defer c.close()
			findings, err := c.engine(s, nil).Scan(cmd.Context(), s.root)
			if err != nil && !errors.Is(err, linesource.ErrPartial) {
				return err
			}
			if err := report.SaveBaseline(s.baseline, findings); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Baseline updated: %d findings in %s\n", len(findings), s.baseline)
			return nil
		},
	}
	update.Flags().StringVar(&flagBaseline, "baseline", "", "baseline file (default "+defaultBaselineFile+")")

	rootCmd.AddCommand(cmd)
	cmd.AddCommand(update)
}

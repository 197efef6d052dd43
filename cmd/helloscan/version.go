package helloscan

import (
	"fmt"
	"runtime/debug"

	semver "github.com/blang/semver/v4"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the helloscan version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildVersion())
		},
	})
}

// buildVersion returns the release version, falling back to the VCS
// revision when the embedded version is not semantic.
func buildVersion() string {
	if v, err := semver.ParseTolerant(version); err == nil {
		return v.String()
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return version
}

package helloscan

import (
	"encoding/json"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List registered rules with their state, pattern and extensions",
		Args:  cobra.NoArgs,
		RunE:  runRules,
	}
	rootCmd.AddCommand(cmd)
}

type ruleRow struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Source     string   `json:"source"`
	State      string   `json:"state"`
	Reason     string   `json:"reason,omitempty"`
	Pattern    string   `json:"pattern"`
	Extensions []string `json:"extensions"`
	Categories []string `json:"categories"`
}

func runRules(cmd *cobra.Command, _ []string) error {
	s, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	c, err := s.build()
	if err != nil {
		return err
	}
	defer c.close()
	c.loader.Load()

	rows := []ruleRow{}
	for _, st := range c.loader.Statuses() {
		rows = append(rows, ruleRow{
			ID:         st.ID,
			Name:       st.Name,
			Version:    st.Version,
			Source:     st.Source,
			State:      st.State.String(),
			Reason:     st.Reason,
			Pattern:    st.Pattern,
			Extensions: nonNilList(st.Extensions),
			Categories: nonNilList(st.Categories),
		})
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	table := tablewriter.NewWriter(out)
	table.Header("ID", "VERSION", "STATE", "PATTERN", "EXTENSIONS", "SOURCE")
	for _, r := range rows {
		state := r.State
		if r.Reason != "" {
			state += " (" + r.Reason + ")"
		}
		exts := strings.Join(r.Extensions, ",")
		if exts == "" {
			exts = "*"
		}
		if err := table.Append([]string{r.ID, r.Version, state, r.Pattern, exts, r.Source}); err != nil {
			return err
		}
	}
	return table.Render()
}

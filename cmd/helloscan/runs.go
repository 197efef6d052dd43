package helloscan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/helloscan/helloscan/internal/config"
	"github.com/helloscan/helloscan/internal/report"
	"github.com/helloscan/helloscan/internal/store"
)

var (
	flagRunsDB    string
	flagRunsLimit int
	flagRunsShow  string
)

func init() {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List scan runs saved with --db, or show the findings of one",
		Args:  cobra.NoArgs,
		RunE:  runRuns,
	}
	rootCmd.AddCommand(cmd)

	cmd.Flags().StringVar(&flagRunsDB, "db", "", "SQLite database written by scan --db")
	cmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "number of runs to list (0 = all)")
	cmd.Flags().StringVar(&flagRunsShow, "show", "", "print the findings of this run ID")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	dbPath := flagRunsDB
	if dbPath == "" {
		var lcfg, gcfg config.FileConfig
		if c, err := config.LoadGlobal(); err == nil {
			gcfg = c
		}
		if flagConfig != "" {
			c, err := config.LoadFile(flagConfig)
			if err != nil {
				return err
			}
			lcfg = c
		} else if c, err := config.LoadLocal(flagPath); err == nil {
			lcfg = c
		}
		dbPath = pickString("", lcfg.Output.DBPath, gcfg.Output.DBPath)
	}
	if dbPath == "" {
		return errors.New("no database: pass --db or set output.db_path")
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	out := cmd.OutOrStdout()

	if flagRunsShow != "" {
		findings, err := db.Findings(cmd.Context(), flagRunsShow)
		if err != nil {
			return err
		}
		if flagJSON {
			return report.WriteJSON(out, findings)
		}
		return report.PrintTable(out, findings, report.PrintOptions{NoColor: !report.ColorEnabled(out, flagNoColor)})
	}

	runs, err := db.Runs(cmd.Context(), flagRunsLimit)
	if err != nil {
		return err
	}
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if runs == nil {
			runs = []store.Run{}
		}
		return enc.Encode(runs)
	}
	table := tablewriter.NewWriter(out)
	table.Header("ID", "STARTED", "ROOT", "FILES", "RULES", "FINDINGS", "PARTIAL")
	for _, r := range runs {
		if err := table.Append([]string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Root,
			fmt.Sprintf("%d/%d", r.ScannedFiles, r.TotalFiles),
			strconv.Itoa(r.TotalRules),
			strconv.Itoa(r.FindingsCount),
			strconv.FormatBool(r.Partial),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cronpump/internal/app"
	"cronpump/internal/config"
	"cronpump/internal/storage"
	logx "cronpump/pkg/logx"
)

func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var q storage.Query
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(rootOpts.ConfigPath).Parse()
			if err != nil {
				return err
			}
			sc, enabled, err := app.MapStorageConfig(cfg)
			if err != nil {
				return err
			}
			if !enabled {
				return errors.New("no run journal configured (storage.driver is empty or none)")
			}
			st, err := storage.Open(sc, logx.NewConsole("warn"))
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.RecentRuns(cmd.Context(), q)
			if err != nil {
				return err
			}
			return writeRuns(cmd.OutOrStdout(), rootOpts.Format, runs)
		},
	}
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&q.Rule, "schedule", "", "only show runs of this schedule")
	return cmd
}

func writeRuns(w io.Writer, format string, runs []storage.Run) error {
	if format == "json" {
		if runs == nil {
			runs = []storage.Run{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCHEDULED\tSCHEDULE\tMATCH\tRESULT\tTOOK\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Scheduled.Local().Format(time.RFC3339), r.Rule, r.MatchID, r.Result,
			time.Duration(r.TookMS)*time.Millisecond, r.Error)
	}
	return tw.Flush()
}

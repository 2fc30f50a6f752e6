package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit  int
		offset int
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs from the history database",
		Long: `History lists persisted runs newest first. With --run it shows the
per-action records of one run instead.`,
		Example: `  convergo history --db /var/lib/convergo/history.db
  convergo history --db /var/lib/convergo/history.db --run 7c0e1d2a`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return fmt.Errorf("history requires --db")
			}

			ctx := cmd.Context()
			store, cleanup, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if runID != "" {
				records, err := store.ListRecordsByRun(ctx, runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					out, err := json.MarshalIndent(records, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(out))
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "ACTION\tKIND\tOUTCOME\tATTEMPTS\tDURATION\tDETAIL\n")
				for _, rec := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dms\t%s\n",
						rec.ActionID, rec.Kind, rec.Outcome, rec.Attempts, rec.DurationMS, rec.Detail)
				}
				return w.Flush()
			}

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				out, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "RUN\tSTATUS\tSTARTED\tCOMPLETED\tMANIFEST\n")
			for _, run := range runs {
				completed := "-"
				if run.CompletedAt != nil {
					completed = run.CompletedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Status, run.StartedAt.Format(time.RFC3339), completed, run.ManifestPath)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().StringVar(&runID, "run", "", "show the records of one run")

	return cmd
}

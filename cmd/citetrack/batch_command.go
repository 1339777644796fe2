package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"citetrack/internal/batch"
	"citetrack/internal/item"
	"citetrack/internal/store"
	"citetrack/internal/textutil"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var ids []int64
	var allPending bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process many items through the automated chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !allPending && len(ids) == 0 {
				return fmt.Errorf("nothing to process; pass --id or --all-pending")
			}
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				itemIDs := ids
				if allPending {
					pending, err := st.List(cmd.Context(), store.Filter{
						Stages: []item.Stage{item.StageNotStarted},
					})
					if err != nil {
						return err
					}
					for _, it := range pending {
						itemIDs = append(itemIDs, it.ID)
					}
				}
				if len(itemIDs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items to process.")
					return nil
				}

				summary := r.RunBatch(cmd.Context(), itemIDs)
				printBatchSummary(cmd, summary)
				return nil
			})
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "Item ids to process (repeatable)")
	cmd.Flags().BoolVar(&allPending, "all-pending", false, "Process every item still in the initial stage")
	return cmd
}

func printBatchSummary(cmd *cobra.Command, summary batch.Summary) {
	rows := make([][]string, 0, len(summary.Outcomes))
	for _, out := range summary.Outcomes {
		rows = append(rows, []string{
			fmt.Sprintf("%d", out.ItemID),
			textutil.Truncate(out.SourceURL, urlColumnWidth),
			string(out.Status),
			out.Detail,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "URL", "Status", "Detail"},
		rows,
		[]columnAlignment{alignRight},
	))
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s: %d items in %s\n",
		summary.JobID,
		len(summary.Outcomes),
		summary.Finished.Sub(summary.Started).Round(time.Millisecond),
	)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"citetrack/internal/integrity"
	"citetrack/internal/item"
	"citetrack/internal/repair"
	"citetrack/internal/store"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Scan all items for state integrity violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				results, total, err := integrity.CheckAll(cmd.Context(), st)
				if err != nil {
					return err
				}
				report := integrity.Summarize(results, total)
				if report.Clean() {
					fmt.Fprintf(cmd.OutOrStdout(), "All %d items consistent.\n", total)
					return nil
				}

				rows := make([][]string, 0, len(results))
				for _, res := range results {
					for _, issue := range res.Issues {
						rows = append(rows, []string{
							fmt.Sprintf("%d", res.ItemID),
							string(issue.Kind),
							string(issue.Severity),
							issue.Description,
						})
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Item", "Issue", "Severity", "Detail"},
					rows,
					[]columnAlignment{alignRight},
				))
				fmt.Fprintf(cmd.OutOrStdout(), "%d items scanned: %d critical, %d warnings\n",
					report.TotalItems, report.CriticalCount, report.WarningCount)
				return nil
			})
		},
	}
}

func newRepairCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "repair [item-id]",
		Short: "Apply the minimal corrective transition for detected issues",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass either an item id or --all")
			}
			return ctx.withStore(func(st *store.Store) error {
				if all {
					if dryRun {
						return printRepairPlan(cmd, st)
					}
					summary, err := repair.Bulk(cmd.Context(), st, ctx.logger())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Repaired %d issues, %d failed.\n",
						summary.RepairedCount, summary.FailedCount)
					for _, out := range summary.PerItem {
						status := "repaired"
						if !out.Repaired {
							status = "failed"
						}
						fmt.Fprintf(cmd.OutOrStdout(), "  item %d %s: %s (%s)\n",
							out.ItemID, status, out.Kind, out.Detail)
					}
					return nil
				}

				id, err := parseItemID(args[0])
				if err != nil {
					return err
				}
				it, err := st.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if it == nil {
					return fmt.Errorf("item %d not found", id)
				}
				sug := repair.Suggest(*it)
				if sug == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Item %d is consistent.\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Suggested: %s\n", sug.Description)
				if dryRun {
					return nil
				}
				next, failure := repair.Apply(cmd.Context(), st, id, *sug, item.TriggerManualRepair)
				if failure != nil {
					return fmt.Errorf("repair not applied: %s", failure)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d is now %s.\n", id, stageLabel(next.Stage))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Repair every item with detected issues")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the planned repairs without applying them")
	return cmd
}

func printRepairPlan(cmd *cobra.Command, st *store.Store) error {
	items, err := st.ListAll(cmd.Context())
	if err != nil {
		return err
	}
	planned := 0
	for _, it := range items {
		if sug := repair.Suggest(it); sug != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  item %d: %s\n", it.ID, sug.Description)
			planned++
		}
	}
	if planned == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to repair.")
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"citetrack/internal/item"
	"citetrack/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var trigger string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the full transition audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				var entries []item.HistoryEntry
				var err error
				if trigger != "" {
					entries, err = st.HistoryByTrigger(cmd.Context(), item.Trigger(trigger))
				} else {
					entries, err = st.ExportHistory(cmd.Context())
				}
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}

				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No history.")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						fmt.Sprintf("%d", entry.ItemID),
						formatTime(entry.Timestamp),
						string(entry.FromStage),
						string(entry.ToStage),
						string(entry.Trigger),
						entry.Outcome,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Item", "Time", "From", "To", "Trigger", "Outcome"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Only entries recorded with this trigger")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the item database file, schema, and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				health, err := st.CheckHealth(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:   %s\n", health.DBPath)
				fmt.Fprintf(out, "Exists:     %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable:   %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Integrity:  %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Items:      %d\n", health.TotalItems)
				fmt.Fprintf(out, "History:    %d\n", health.TotalHistoryRows)
				if len(health.MissingTables) > 0 {
					fmt.Fprintf(out, "Missing:    %v\n", health.MissingTables)
				}
				return err
			})
		},
	}
}

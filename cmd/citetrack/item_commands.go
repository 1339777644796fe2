package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"citetrack/internal/batch"
	"citetrack/internal/guard"
	"citetrack/internal/integrity"
	"citetrack/internal/item"
	"citetrack/internal/store"
	"citetrack/internal/textutil"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var start bool

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Track a new URL item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceURL := strings.TrimSpace(args[0])
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				existing, err := st.GetBySourceURL(cmd.Context(), sourceURL)
				if err != nil {
					return err
				}
				if existing != nil {
					return fmt.Errorf("url already tracked as item %d", existing.ID)
				}
				it, err := st.NewItem(cmd.Context(), sourceURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added item %d\n", it.ID)
				if !start {
					return nil
				}
				outcome, err := r.StartItem(cmd.Context(), it.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processing finished: %s %s\n", outcome.Status, outcome.Detail)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "Start automated processing immediately")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an item's state, candidates, and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				it, err := st.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if it == nil {
					return fmt.Errorf("item %d not found", id)
				}
				printItem(cmd, *it)

				history, err := st.HistoryForItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(history) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "\nHistory:")
					rows := make([][]string, 0, len(history))
					for _, entry := range history {
						rows = append(rows, []string{
							formatTime(entry.Timestamp),
							string(entry.FromStage),
							string(entry.ToStage),
							string(entry.Trigger),
							entry.Outcome,
						})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable(
						[]string{"Time", "From", "To", "Trigger", "Outcome"}, rows, nil))
				}
				return nil
			})
		},
	}
}

func printItem(cmd *cobra.Command, it item.URLItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Item %d\n", it.ID)
	fmt.Fprintf(out, "  URL:        %s\n", it.SourceURL)
	fmt.Fprintf(out, "  Stage:      %s\n", stageLabel(it.Stage))
	fmt.Fprintf(out, "  Linked:     %s\n", yesNo(it.Linked()))
	if it.Linked() {
		fmt.Fprintf(out, "  Record:     %s (%s)\n", it.ExternalItemKey, it.LinkOrigin)
		complete, missing := it.CitationCompleteness()
		fmt.Fprintf(out, "  Complete:   %s\n", yesNo(complete))
		if !complete {
			fmt.Fprintf(out, "  Missing:    %s\n", strings.Join(missing, ", "))
		}
	}
	if flag := flagLabel(it.IntentFlag); flag != "-" {
		fmt.Fprintf(out, "  Intent:     %s\n", flag)
	}
	if len(it.Candidates) > 0 {
		fmt.Fprintln(out, "  Candidates:")
		for _, cand := range it.Candidates {
			fmt.Fprintf(out, "    [%d] %s %s (%s, %s)\n", cand.ID, cand.Kind, cand.Value, cand.Method, cand.Status)
		}
	}
	if issues := integrity.Check(it); len(issues) > 0 {
		fmt.Fprintln(out, "  Issues:")
		for _, issue := range issues {
			fmt.Fprintf(out, "    [%s] %s\n", issue.Severity, issue.Description)
		}
	}
	actions := guard.AvailableActions(it)
	labels := make([]string, len(actions))
	for i, action := range actions {
		labels[i] = string(action)
	}
	fmt.Fprintf(out, "  Actions:    %s\n", strings.Join(labels, ", "))
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var stageFilter string
	var flagFilter string
	var linkedFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.Filter{}
			if stageFilter != "" {
				stage, ok := item.ParseStage(stageFilter)
				if !ok {
					return fmt.Errorf("unknown stage %q", stageFilter)
				}
				filter.Stages = []item.Stage{stage}
			}
			switch strings.ToLower(strings.TrimSpace(flagFilter)) {
			case "":
			case "ignored":
				filter.IntentFlags = []item.IntentFlag{item.IntentIgnored}
			case "archived":
				filter.IntentFlags = []item.IntentFlag{item.IntentArchived}
			case "none":
				filter.IntentFlags = []item.IntentFlag{item.IntentNone}
			default:
				return fmt.Errorf("unknown intent filter %q", flagFilter)
			}
			switch strings.ToLower(strings.TrimSpace(linkedFilter)) {
			case "":
			case "yes", "true":
				linked := true
				filter.Linked = &linked
			case "no", "false":
				linked := false
				filter.Linked = &linked
			default:
				return fmt.Errorf("unknown linked filter %q", linkedFilter)
			}

			return ctx.withStore(func(st *store.Store) error {
				items, err := st.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No items.")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, it := range items {
					rows = append(rows, []string{
						fmt.Sprintf("%d", it.ID),
						textutil.Truncate(it.SourceURL, urlColumnWidth),
						stageLabel(it.Stage),
						linkLabel(it),
						flagLabel(it.IntentFlag),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "URL", "Stage", "Record", "Intent"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageFilter, "stage", "", "Filter by processing stage")
	cmd.Flags().StringVar(&flagFilter, "intent", "", "Filter by intent flag (ignored, archived, none)")
	cmd.Flags().StringVar(&linkedFilter, "linked", "", "Filter by link state (yes, no)")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"citetrack/internal/batch"
	"citetrack/internal/guard"
	"citetrack/internal/item"
	"citetrack/internal/machine"
	"citetrack/internal/store"
)

func newActionsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "actions <item-id>",
		Short: "List the actions currently legal for an item",
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
				for _, action := range guard.AvailableActions(*it) {
					fmt.Fprintln(cmd.OutOrStdout(), action)
				}
				return nil
			})
		},
	}
}

func newActionCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newSelectCommand(ctx),
		newExtractCommand(ctx),
		newLinkCommand(ctx),
		newUnlinkCommand(ctx),
		newSimpleEventCommand(ctx, "ignore", "Flag an item as deliberately not stored", machine.Ignore{}),
		newSimpleEventCommand(ctx, "unignore", "Clear an item's ignored flag", machine.Unignore{}),
		newSimpleEventCommand(ctx, "archive", "Flag an item as no longer relevant", machine.Archive{}),
		newSimpleEventCommand(ctx, "unarchive", "Clear an item's archived flag", machine.Unarchive{}),
		newSimpleEventCommand(ctx, "reset", "Return a stuck item to the initial stage", machine.Reset{}),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <item-id>",
		Short: "Run automated processing for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				outcome, err := r.StartItem(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d: %s", id, outcome.Status)
				if outcome.Detail != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", outcome.Detail)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <item-id> <candidate-id>",
		Short: "Resolve a discovered identifier candidate and link it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			candidateID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid candidate id %q", args[1])
			}
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				next, rejection, err := r.SelectIdentifier(cmd.Context(), id, candidateID)
				if err != nil {
					return err
				}
				if rejection != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Not applied: %s\n", rejection)
					return nil
				}
				reportTransition(cmd, next)
				return nil
			})
		},
	}
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <item-id>",
		Short: "Build a custom record from page content via the LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				next, rejection, err := r.ExtractLLM(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rejection != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Not applied: %s\n", rejection)
					return nil
				}
				reportTransition(cmd, next)
				return nil
			})
		},
	}
}

func newLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link <item-id> <record-key>",
		Short: "Link an item to an existing external record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			key := strings.TrimSpace(args[1])
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				next, rejection, err := r.LinkExisting(cmd.Context(), id, key)
				if err != nil {
					return err
				}
				if rejection != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Not applied: %s\n", rejection)
					return nil
				}
				reportTransition(cmd, next)
				return nil
			})
		},
	}
}

func newUnlinkCommand(ctx *commandContext) *cobra.Command {
	var removeRemote bool

	cmd := &cobra.Command{
		Use:   "unlink <item-id>",
		Short: "Clear an item's link and return it to the initial stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				next, rejection, err := r.Unlink(cmd.Context(), id, removeRemote)
				if err != nil {
					return err
				}
				if rejection != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Not applied: %s\n", rejection)
					return nil
				}
				reportTransition(cmd, next)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&removeRemote, "remove-record", false, "Also delete the external record")
	return cmd
}

func newSimpleEventCommand(ctx *commandContext, use, short string, ev machine.Event) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withRunner(func(st *store.Store, r *batch.Runner) error {
				next, rejection, err := r.Apply(cmd.Context(), id, ev, item.TriggerUser)
				if err != nil {
					return err
				}
				if rejection != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Not applied: %s\n", rejection)
					return nil
				}
				reportTransition(cmd, next)
				return nil
			})
		},
	}
}

func reportTransition(cmd *cobra.Command, it *item.URLItem) {
	fmt.Fprintf(cmd.OutOrStdout(), "Item %d is now %s", it.ID, stageLabel(it.Stage))
	if it.Linked() {
		fmt.Fprintf(cmd.OutOrStdout(), " (record %s)", it.ExternalItemKey)
	}
	fmt.Fprintln(cmd.OutOrStdout())
}

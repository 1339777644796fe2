package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"citetrack/internal/review"
	"citetrack/internal/store"
	"citetrack/internal/textutil"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "review",
		Short: "List items needing human attention, most urgent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				items, err := st.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				suggestions := review.Rank(items)
				if len(suggestions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing needs review.")
					return nil
				}
				if limit > 0 && len(suggestions) > limit {
					suggestions = suggestions[:limit]
				}

				rows := make([][]string, 0, len(suggestions))
				for _, sug := range suggestions {
					detail := sug.Reason
					if len(sug.MissingFields) > 0 {
						detail = "missing " + strings.Join(sug.MissingFields, ", ")
					}
					if len(sug.Candidates) > 0 {
						detail = fmt.Sprintf("%d candidates await selection", len(sug.Candidates))
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", sug.ItemID),
						textutil.Truncate(sug.SourceURL, urlColumnWidth),
						string(sug.Class),
						detail,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "URL", "Class", "Detail"},
					rows,
					[]columnAlignment{alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many items")
	return cmd
}

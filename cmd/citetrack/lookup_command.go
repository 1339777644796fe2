package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"citetrack/internal/item"
	"citetrack/internal/services/lookup"
	"citetrack/internal/textutil"
)

func newLookupCommand(ctx *commandContext) *cobra.Command {
	var byTitle bool

	cmd := &cobra.Command{
		Use:   "lookup <doi-or-title>",
		Short: "Resolve a DOI or title against the metadata service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := lookup.New(cfg.Lookup)
			if err != nil {
				return err
			}

			query := strings.TrimSpace(strings.Join(args, " "))
			var cit item.Citation
			if byTitle {
				cit, err = client.LookupTitle(cmd.Context(), query)
			} else {
				cit, err = client.LookupDOI(cmd.Context(), query)
			}
			if err != nil {
				return err
			}

			printCitation(cmd, cit)
			if byTitle {
				score := textutil.TitleSimilarity(query, cit.Title)
				fmt.Fprintf(cmd.OutOrStdout(), "Title match: %.0f%%\n", score*100)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byTitle, "title", false, "Search by title instead of DOI")
	return cmd
}

func printCitation(cmd *cobra.Command, cit item.Citation) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Title:     %s\n", cit.Title)
	if len(cit.Creators) > 0 {
		names := make([]string, 0, len(cit.Creators))
		for _, creator := range cit.Creators {
			switch {
			case creator.Literal != "":
				names = append(names, creator.Literal)
			case creator.Given != "":
				names = append(names, creator.Given+" "+creator.Family)
			default:
				names = append(names, creator.Family)
			}
		}
		fmt.Fprintf(out, "Creators:  %s\n", strings.Join(names, "; "))
	}
	if cit.Date != "" {
		fmt.Fprintf(out, "Date:      %s\n", cit.Date)
	}
	if cit.ContainerTitle != "" {
		fmt.Fprintf(out, "In:        %s\n", cit.ContainerTitle)
	}
	if cit.DOI != "" {
		fmt.Fprintf(out, "DOI:       %s\n", cit.DOI)
	}
	if missing := cit.MissingFields(); len(missing) > 0 {
		fmt.Fprintf(out, "Missing:   %s\n", strings.Join(missing, ", "))
	}
}

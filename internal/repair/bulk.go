package repair

import (
	"context"
	"fmt"
	"log/slog"

	"citetrack/internal/integrity"
	"citetrack/internal/item"
	"citetrack/internal/logging"
	"citetrack/internal/store"
)

// ItemOutcome is one item's result within a bulk repair run.
type ItemOutcome struct {
	ItemID   int64
	Kind     integrity.Kind
	Repaired bool
	Detail   string
}

// Summary aggregates a bulk repair run. Re-running after a successful pass
// finds no remaining issues, so bulk repair is idempotent.
type Summary struct {
	RepairedCount int
	FailedCount   int
	PerItem       []ItemOutcome
}

// Bulk scans every item and applies the suggested repair for each detected
// issue. Items may carry several issues; repairs are applied one per pass
// over the item until it is clean or a repair fails.
func Bulk(ctx context.Context, st *store.Store, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	items, err := st.ListAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list items for bulk repair: %w", err)
	}

	var summary Summary
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		current := it
		for {
			sug := Suggest(current)
			if sug == nil {
				break
			}
			repaired, failure := Apply(ctx, st, current.ID, *sug, item.TriggerBulkRepair)
			if failure != nil {
				summary.FailedCount++
				summary.PerItem = append(summary.PerItem, ItemOutcome{
					ItemID: current.ID,
					Kind:   sug.Kind,
					Detail: failure.String(),
				})
				logger.Warn("bulk repair failed for item",
					logging.Int64(logging.FieldItemID, current.ID),
					logging.String("issue_kind", string(sug.Kind)),
					logging.String("failure", failure.String()),
				)
				break
			}
			summary.RepairedCount++
			summary.PerItem = append(summary.PerItem, ItemOutcome{
				ItemID:   current.ID,
				Kind:     sug.Kind,
				Repaired: true,
				Detail:   sug.Description,
			})
			logger.Info("repaired item",
				logging.Int64(logging.FieldItemID, current.ID),
				logging.String("issue_kind", string(sug.Kind)),
			)
			current = *repaired
		}
	}
	return summary, nil
}

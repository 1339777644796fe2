// Package integrity re-derives the state invariants directly from current
// item fields and reports violations. It never trusts cached outcome
// snapshots; a scan is always recomputable and read-only.
package integrity

import (
	"context"
	"fmt"
	"strings"

	"citetrack/internal/item"
)

// Kind classifies an invariant violation.
type Kind string

const (
	KindLinkedButWrongStage         Kind = "LinkedButWrongStage"
	KindStageImpliesLinkButUnlinked Kind = "StageImpliesLinkButUnlinked"
	KindIntentFlagWithActiveLink    Kind = "IntentFlagWithActiveLink"
	KindProcessingStageWithLink     Kind = "ProcessingStageWithLink"
)

// Severity of an issue. Critical issues put the link itself in doubt and
// risk duplicate or orphan external records.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Issue is one detected invariant violation on a single item.
type Issue struct {
	Kind        Kind
	Severity    Severity
	Description string
}

// Check scans one item and returns its issues in a fixed kind order:
// LinkedButWrongStage, StageImpliesLinkButUnlinked, IntentFlagWithActiveLink,
// ProcessingStageWithLink. A healthy item yields an empty slice.
func Check(it item.URLItem) []Issue {
	var issues []Issue

	linked := it.Linked()
	hasKey := strings.TrimSpace(it.ExternalItemKey) != ""

	if linked && !item.IsStoredStage(it.Stage) && !item.IsProcessingStage(it.Stage) {
		issues = append(issues, Issue{
			Kind:        KindLinkedButWrongStage,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("linked to %q but stage is %s", it.ExternalItemKey, it.Stage),
		})
	}
	if item.IsStoredStage(it.Stage) && (!linked || !hasKey) {
		issues = append(issues, Issue{
			Kind:        KindStageImpliesLinkButUnlinked,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("stage %s requires a link with a non-empty key", it.Stage),
		})
	}
	if it.Flagged() && linked {
		issues = append(issues, Issue{
			Kind:        KindIntentFlagWithActiveLink,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("intent flag %s set while linked to %q", it.IntentFlag, it.ExternalItemKey),
		})
	}
	if item.IsProcessingStage(it.Stage) && linked {
		issues = append(issues, Issue{
			Kind:        KindProcessingStageWithLink,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("stage %s is in-flight but a link to %q already exists", it.Stage, it.ExternalItemKey),
		})
	}
	return issues
}

// HasKind reports whether issues contains the given kind.
func HasKind(issues []Issue, kind Kind) bool {
	for _, issue := range issues {
		if issue.Kind == kind {
			return true
		}
	}
	return false
}

// ItemIssues pairs an item id with its detected issues.
type ItemIssues struct {
	ItemID int64
	Issues []Issue
}

// Source is the read-only item collection a scan walks.
type Source interface {
	ListAll(ctx context.Context) ([]item.URLItem, error)
}

// CheckAll scans the full collection. Read-only; safe to run concurrently
// with normal processing. Items without issues are omitted.
func CheckAll(ctx context.Context, source Source) ([]ItemIssues, int, error) {
	items, err := source.ListAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list items for integrity scan: %w", err)
	}
	var out []ItemIssues
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		issues := Check(it)
		if len(issues) > 0 {
			out = append(out, ItemIssues{ItemID: it.ID, Issues: issues})
		}
	}
	return out, len(items), nil
}

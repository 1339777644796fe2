// Package repair computes and applies the minimal corrective transition for
// a detected integrity issue. Repairs are deliberately conservative: they
// only ever adjust the processing stage to match the observed link (the
// link's existence is ground truth) and never invent or destroy a link.
// The one exception is a link that conflicts with a sticky intent flag,
// where the flag wins and the link is cleared.
package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"citetrack/internal/integrity"
	"citetrack/internal/item"
	"citetrack/internal/store"
)

// FailureReason classifies why a repair could not be applied.
type FailureReason string

const (
	// StaleState means the item no longer exhibits the issue the suggestion
	// targeted; the caller should re-fetch and may re-suggest.
	StaleState FailureReason = "stale_state"
	// GuardViolation means the computed correction would itself violate an
	// invariant; this indicates drift the repair engine cannot classify.
	GuardViolation FailureReason = "guard_violation"
)

// Failure is the value returned when a repair is refused.
type Failure struct {
	Reason FailureReason
	Detail string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
}

// Suggestion describes the corrective transition for one issue.
type Suggestion struct {
	Kind        integrity.Kind
	Description string
}

// Suggest returns the repair for the item's most severe issue, or nil when
// the item is healthy. Issues are repaired one at a time; re-running the
// scan after a repair finds the next one, if any.
func Suggest(it item.URLItem) *Suggestion {
	issues := integrity.Check(it)
	if len(issues) == 0 {
		return nil
	}
	chosen := issues[0]
	for _, issue := range issues {
		if issue.Severity == integrity.SeverityCritical {
			chosen = issue
			break
		}
	}
	return &Suggestion{
		Kind:        chosen.Kind,
		Description: describeRepair(chosen.Kind, it),
	}
}

func describeRepair(kind integrity.Kind, it item.URLItem) string {
	switch kind {
	case integrity.KindLinkedButWrongStage:
		return fmt.Sprintf("retarget stage %s to %s to match existing link", it.Stage, item.StageStoredCustom)
	case integrity.KindStageImpliesLinkButUnlinked:
		return fmt.Sprintf("reset stage %s to %s; no link exists", it.Stage, item.StageNotStarted)
	case integrity.KindIntentFlagWithActiveLink:
		return fmt.Sprintf("clear link %q; intent flag %s is sticky", it.ExternalItemKey, it.IntentFlag)
	case integrity.KindProcessingStageWithLink:
		return fmt.Sprintf("complete in-flight stage %s to %s for existing link", it.Stage, postSuccessStage(it.Stage))
	default:
		return string(kind)
	}
}

// apply computes the corrected item for a suggestion. Pure; persistence
// happens in Apply.
func apply(it item.URLItem, kind integrity.Kind) (item.URLItem, *Failure) {
	next := it.Clone()
	switch kind {
	case integrity.KindLinkedButWrongStage:
		// Safest default: the information about which processing path
		// actually succeeded was lost.
		next.Stage = item.StageStoredCustom
		if next.LinkOrigin == item.OriginNone || next.LinkOrigin == "" {
			next.LinkOrigin = item.OriginManualLinkExisting
		}
	case integrity.KindStageImpliesLinkButUnlinked:
		next.Stage = item.StageNotStarted
		next.LinkState = item.LinkUnlinked
		next.ExternalItemKey = ""
		next.LinkOrigin = item.OriginNone
	case integrity.KindIntentFlagWithActiveLink:
		// Unlink takes precedence; the intent flag is sticky and never
		// auto-cleared.
		next.LinkState = item.LinkUnlinked
		next.ExternalItemKey = ""
		next.LinkOrigin = item.OriginNone
		next.Stage = item.StageNotStarted
	case integrity.KindProcessingStageWithLink:
		// Treat the in-flight attempt as if it had just completed.
		next.Stage = postSuccessStage(it.Stage)
		if next.LinkOrigin == item.OriginNone || next.LinkOrigin == "" {
			next.LinkOrigin = postSuccessOrigin(it.Stage)
		}
	default:
		return item.URLItem{}, &Failure{Reason: GuardViolation, Detail: fmt.Sprintf("no repair defined for %s", kind)}
	}

	if integrity.HasKind(integrity.Check(next), kind) {
		return item.URLItem{}, &Failure{Reason: GuardViolation, Detail: fmt.Sprintf("repair did not resolve %s", kind)}
	}
	return next, nil
}

func postSuccessStage(stage item.Stage) item.Stage {
	if stage == item.StageProcessingLLM {
		return item.StageStoredCustom
	}
	return item.StageStored
}

func postSuccessOrigin(stage item.Stage) item.LinkOrigin {
	switch stage {
	case item.StageProcessingZotero:
		return item.OriginAutoZotero
	case item.StageProcessingContent:
		return item.OriginAutoContentID
	case item.StageProcessingLLM:
		return item.OriginManualLLM
	default:
		return item.OriginManualLinkExisting
	}
}

// Apply executes the repair as a single atomic operation: re-fetch the
// item, re-check that it still exhibits the suggested issue, apply the
// correction, and commit it with one history entry. The trigger must be
// manual_repair or bulk_repair.
func Apply(ctx context.Context, st *store.Store, itemID int64, sug Suggestion, trigger item.Trigger) (*item.URLItem, *Failure) {
	fresh, err := st.GetByID(ctx, itemID)
	if err != nil {
		return nil, &Failure{Reason: StaleState, Detail: fmt.Sprintf("re-fetch item: %v", err)}
	}
	if fresh == nil {
		return nil, &Failure{Reason: StaleState, Detail: "item no longer exists"}
	}
	// The issue may have been independently fixed or worsened since the
	// suggestion was computed.
	if !integrity.HasKind(integrity.Check(*fresh), sug.Kind) {
		return nil, &Failure{Reason: StaleState, Detail: fmt.Sprintf("item no longer exhibits %s", sug.Kind)}
	}

	next, failure := apply(*fresh, sug.Kind)
	if failure != nil {
		return nil, failure
	}

	now := time.Now().UTC()
	next.LastCheckedAt = &now
	next.LastCheckOutcome = fmt.Sprintf("repaired:%s", sug.Kind)
	entry := item.HistoryEntry{
		ItemID:    fresh.ID,
		Timestamp: now,
		FromStage: fresh.Stage,
		ToStage:   next.Stage,
		Trigger:   trigger,
		Outcome:   fmt.Sprintf("repair_%s", sug.Kind),
		RequestID: uuid.NewString(),
	}
	if err := st.CommitTransition(ctx, &next, entry); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, &Failure{Reason: StaleState, Detail: "item changed during repair"}
		}
		return nil, &Failure{Reason: GuardViolation, Detail: fmt.Sprintf("commit repair: %v", err)}
	}
	return &next, nil
}

package machine

import (
	"fmt"
	"strings"
	"time"

	"citetrack/internal/item"
)

// RejectionReason classifies why a transition was refused.
type RejectionReason string

const (
	InvalidForStage     RejectionReason = "invalid_for_stage"
	RequiresUnlinkFirst RejectionReason = "requires_unlink_first"
	IntentFlagConflict  RejectionReason = "intent_flag_conflict"
	UnknownEvent        RejectionReason = "unknown_event"
)

// Rejection is the value returned when an event is illegal for the current
// state. It is a result, not an error: callers surface it as a no-op.
type Rejection struct {
	Reason RejectionReason
	Detail string
}

func (r Rejection) String() string {
	if strings.TrimSpace(r.Detail) == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(reason RejectionReason, format string, args ...any) (item.URLItem, item.HistoryEntry, *Rejection) {
	return item.URLItem{}, item.HistoryEntry{}, &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// eventStages is the allow-list of stages each stage-restricted event may
// fire from. Events absent from the table are legal from any stage and
// carry their own guards in Transition.
var eventStages = map[string][]item.Stage{
	Start{}.Kind():               {item.StageNotStarted},
	ZoteroSucceeded{}.Kind():     {item.StageProcessingZotero},
	ZoteroFailed{}.Kind():        {item.StageProcessingZotero},
	ContentUnreadable{}.Kind():   {item.StageProcessingZotero, item.StageProcessingContent},
	IdentifiersFound{}.Kind():    {item.StageProcessingContent},
	NoIdentifiersFound{}.Kind():  {item.StageProcessingContent},
	IdentifierSucceeded{}.Kind(): {item.StageProcessingContent},
	IdentifierFailed{}.Kind():    {item.StageProcessingContent},
	LLMSucceeded{}.Kind():        {item.StageExhausted, item.StageProcessingContent},
	LLMFailed{}.Kind():           {item.StageExhausted, item.StageProcessingContent},
}

func stageAllowed(ev Event, stage item.Stage) bool {
	allowed, ok := eventStages[ev.Kind()]
	if !ok {
		return true
	}
	for _, s := range allowed {
		if s == stage {
			return true
		}
	}
	return false
}

// Transition applies one event to the item and returns the new logical
// state plus the history entry to append. Pure: no I/O, no side effects;
// callers persist both atomically. A nil rejection means the transition was
// accepted.
func Transition(it item.URLItem, ev Event, trigger item.Trigger, now time.Time) (item.URLItem, item.HistoryEntry, *Rejection) {
	if ev == nil {
		return reject(UnknownEvent, "nil event")
	}
	if !stageAllowed(ev, it.Stage) {
		return reject(InvalidForStage, "%s not legal from stage %s", ev.Kind(), it.Stage)
	}

	next := it.Clone()
	from := it.Stage

	switch e := ev.(type) {
	case Start:
		if it.Flagged() {
			return reject(IntentFlagConflict, "item is %s", it.IntentFlag)
		}
		next.Stage = item.StageProcessingZotero

	case ZoteroSucceeded:
		if strings.TrimSpace(e.Key) == "" {
			return reject(UnknownEvent, "zotero success without item key")
		}
		finalizeLink(&next, e.Key, item.OriginAutoZotero, e.CitationJSON)
		next.Stage = storedStageFor(e.Complete)

	case ZoteroFailed:
		next.Stage = item.StageProcessingContent

	case ContentUnreadable:
		next.Stage = item.StageExhausted

	case IdentifiersFound:
		if len(e.Candidates) == 0 {
			return reject(UnknownEvent, "identifiers_found without candidates")
		}
		nextID := maxCandidateID(next.Candidates) + 1
		for _, c := range e.Candidates {
			c.ID = nextID
			nextID++
			if c.Status == "" {
				c.Status = item.CandidateUnreviewed
			}
			next.Candidates = append(next.Candidates, c)
		}

	case NoIdentifiersFound:
		if len(it.Candidates) > 0 {
			return reject(InvalidForStage, "candidates already discovered")
		}
		next.Stage = item.StageExhausted

	case IdentifierSucceeded:
		cand, ok := next.CandidateByID(e.CandidateID)
		if !ok || cand.Status != item.CandidateUnreviewed {
			return reject(InvalidForStage, "no unreviewed candidate %d", e.CandidateID)
		}
		if strings.TrimSpace(e.Key) == "" {
			return reject(UnknownEvent, "identifier success without item key")
		}
		setCandidateStatus(next.Candidates, e.CandidateID, item.CandidateAccepted)
		finalizeLink(&next, e.Key, item.OriginAutoContentID, e.CitationJSON)
		next.Stage = storedStageFor(e.Complete)

	case IdentifierFailed:
		cand, ok := next.CandidateByID(e.CandidateID)
		if !ok || cand.Status != item.CandidateUnreviewed {
			return reject(InvalidForStage, "no unreviewed candidate %d", e.CandidateID)
		}
		setCandidateStatus(next.Candidates, e.CandidateID, item.CandidateRejected)

	case LLMSucceeded:
		if it.Flagged() {
			return reject(IntentFlagConflict, "item is %s", it.IntentFlag)
		}
		// From processing_content, extraction is only offered once the item
		// is parked in the identifier-candidate state.
		if it.Stage == item.StageProcessingContent && len(it.Candidates) == 0 {
			return reject(InvalidForStage, "no identifier candidates to fall back from")
		}
		if strings.TrimSpace(e.Key) == "" {
			return reject(UnknownEvent, "llm success without item key")
		}
		finalizeLink(&next, e.Key, item.OriginManualLLM, e.CitationJSON)
		next.Stage = item.StageStoredCustom

	case LLMFailed:
		if it.Stage == item.StageProcessingContent && len(it.Candidates) == 0 {
			return reject(InvalidForStage, "no identifier candidates to fall back from")
		}
		// Stage unchanged; the failure is still recorded in history.

	case LinkExisting:
		if strings.TrimSpace(e.Key) == "" {
			return reject(UnknownEvent, "link_existing without item key")
		}
		if it.Flagged() {
			return reject(IntentFlagConflict, "item is %s", it.IntentFlag)
		}
		if it.Linked() && it.ExternalItemKey != e.Key {
			return reject(RequiresUnlinkFirst, "linked to %s", it.ExternalItemKey)
		}
		finalizeLink(&next, e.Key, item.OriginManualLinkExisting, e.CitationJSON)
		next.Stage = item.StageStoredCustom

	case Unlink:
		if !it.Linked() {
			return reject(InvalidForStage, "item is not linked")
		}
		clearLink(&next)
		next.Stage = item.StageNotStarted

	case Ignore:
		if it.Linked() {
			return reject(RequiresUnlinkFirst, "linked to %s", it.ExternalItemKey)
		}
		if it.IntentFlag == item.IntentIgnored {
			return reject(InvalidForStage, "already ignored")
		}
		// Ignore and archive are mutually exclusive; setting one clears
		// the other.
		next.IntentFlag = item.IntentIgnored
		next.Stage = item.StageIgnored

	case Unignore:
		if it.IntentFlag != item.IntentIgnored {
			return reject(InvalidForStage, "item is not ignored")
		}
		next.IntentFlag = item.IntentNone
		next.Stage = item.StageNotStarted

	case Archive:
		if it.Linked() {
			return reject(RequiresUnlinkFirst, "linked to %s", it.ExternalItemKey)
		}
		if it.IntentFlag == item.IntentArchived {
			return reject(InvalidForStage, "already archived")
		}
		next.IntentFlag = item.IntentArchived
		next.Stage = item.StageArchived

	case Unarchive:
		if it.IntentFlag != item.IntentArchived {
			return reject(InvalidForStage, "item is not archived")
		}
		next.IntentFlag = item.IntentNone
		next.Stage = item.StageNotStarted

	case Reset:
		if it.Linked() {
			return reject(RequiresUnlinkFirst, "linked to %s", it.ExternalItemKey)
		}
		if it.Flagged() {
			return reject(IntentFlagConflict, "item is %s", it.IntentFlag)
		}
		next.Stage = item.StageNotStarted
		next.Candidates = nil

	default:
		return reject(UnknownEvent, "unhandled event %T", ev)
	}

	next.UpdatedAt = now.UTC()
	entry := item.HistoryEntry{
		ItemID:    it.ID,
		Timestamp: now.UTC(),
		FromStage: from,
		ToStage:   next.Stage,
		Trigger:   trigger,
		Outcome:   ev.Kind(),
	}
	return next, entry, nil
}

func storedStageFor(complete bool) item.Stage {
	if complete {
		return item.StageStored
	}
	return item.StageStoredIncomplete
}

func finalizeLink(it *item.URLItem, key string, origin item.LinkOrigin, citationJSON string) {
	it.LinkState = item.LinkLinked
	it.ExternalItemKey = key
	it.LinkOrigin = origin
	if strings.TrimSpace(citationJSON) != "" {
		it.CitationJSON = citationJSON
	}
}

func clearLink(it *item.URLItem) {
	it.LinkState = item.LinkUnlinked
	it.ExternalItemKey = ""
	it.LinkOrigin = item.OriginNone
}

func setCandidateStatus(candidates []item.IdentifierCandidate, id int, status item.CandidateStatus) {
	for idx := range candidates {
		if candidates[idx].ID == id {
			candidates[idx].Status = status
			return
		}
	}
}

func maxCandidateID(candidates []item.IdentifierCandidate) int {
	max := 0
	for _, c := range candidates {
		if c.ID > max {
			max = c.ID
		}
	}
	return max
}

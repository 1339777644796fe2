package item

import (
	"strings"
	"time"
)

// Stage represents the primary lifecycle dimension of a URL item.
type Stage string

const (
	StageNotStarted        Stage = "not_started"
	StageProcessingZotero  Stage = "processing_zotero"
	StageProcessingContent Stage = "processing_content"
	StageProcessingLLM     Stage = "processing_llm"
	StageStored            Stage = "stored"
	StageStoredIncomplete  Stage = "stored_incomplete"
	StageStoredCustom      Stage = "stored_custom"
	StageExhausted         Stage = "exhausted"
	StageIgnored           Stage = "ignored"
	StageArchived          Stage = "archived"
)

var allStages = []Stage{
	StageNotStarted,
	StageProcessingZotero,
	StageProcessingContent,
	StageProcessingLLM,
	StageStored,
	StageStoredIncomplete,
	StageStoredCustom,
	StageExhausted,
	StageIgnored,
	StageArchived,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

var processingStages = map[Stage]struct{}{
	StageProcessingZotero:  {},
	StageProcessingContent: {},
	StageProcessingLLM:     {},
}

var storedStages = map[Stage]struct{}{
	StageStored:           {},
	StageStoredIncomplete: {},
	StageStoredCustom:     {},
}

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// IsProcessingStage reports whether a stage reflects an in-flight attempt.
func IsProcessingStage(stage Stage) bool {
	_, ok := processingStages[stage]
	return ok
}

// IsStoredStage reports whether a stage represents a finalized link.
func IsStoredStage(stage Stage) bool {
	_, ok := storedStages[stage]
	return ok
}

// LinkState describes whether the item is attached to a record in the
// external reference manager.
type LinkState string

const (
	LinkUnlinked LinkState = "unlinked"
	LinkLinked   LinkState = "linked"
)

// LinkOrigin records how a link was established. Required whenever the item
// is linked.
type LinkOrigin string

const (
	OriginNone               LinkOrigin = "none"
	OriginAutoZotero         LinkOrigin = "auto_zotero"
	OriginAutoContentID      LinkOrigin = "auto_content_identifier"
	OriginManualLLM          LinkOrigin = "manual_llm"
	OriginManualLinkExisting LinkOrigin = "manual_link_existing"
	OriginManualCustom       LinkOrigin = "manual_custom"
)

// IntentFlag is the sticky user-intent marker. Only explicit user actions
// set or clear it; automated transitions never touch it.
type IntentFlag string

const (
	IntentNone     IntentFlag = "none"
	IntentIgnored  IntentFlag = "ignored"
	IntentArchived IntentFlag = "archived"
)

// CandidateStatus tracks review state for a discovered identifier.
type CandidateStatus string

const (
	CandidateUnreviewed CandidateStatus = "unreviewed"
	CandidateAccepted   CandidateStatus = "accepted"
	CandidateRejected   CandidateStatus = "rejected"
)

// Identifier kinds produced by content discovery.
const (
	IdentifierDOI   = "doi"
	IdentifierArxiv = "arxiv"
)

// IdentifierCandidate is one discovered identifier awaiting user review.
// Candidates are append-only; rejected ones are marked, never removed.
type IdentifierCandidate struct {
	ID     int             `json:"id"`
	Kind   string          `json:"kind"`
	Value  string          `json:"value"`
	Method string          `json:"method"`
	Status CandidateStatus `json:"status"`
}

// URLItem is the unit of work: one tracked reference source.
type URLItem struct {
	ID               int64
	SourceURL        string
	Stage            Stage
	LinkState        LinkState
	ExternalItemKey  string
	LinkOrigin       LinkOrigin
	IntentFlag       IntentFlag
	Candidates       []IdentifierCandidate
	CitationJSON     string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastCheckedAt    *time.Time
	LastCheckOutcome string
}

// New returns a URLItem in its initial state: not started, unlinked, no
// intent flag, no candidates.
func New(sourceURL string) URLItem {
	return URLItem{
		SourceURL:  strings.TrimSpace(sourceURL),
		Stage:      StageNotStarted,
		LinkState:  LinkUnlinked,
		LinkOrigin: OriginNone,
		IntentFlag: IntentNone,
	}
}

// Linked reports whether the item currently carries an external link.
func (i URLItem) Linked() bool {
	return i.LinkState == LinkLinked
}

// Flagged reports whether a sticky intent flag is set.
func (i URLItem) Flagged() bool {
	return i.IntentFlag == IntentIgnored || i.IntentFlag == IntentArchived
}

// UnreviewedCandidates returns the candidates still awaiting review, in
// discovery order.
func (i URLItem) UnreviewedCandidates() []IdentifierCandidate {
	var out []IdentifierCandidate
	for _, c := range i.Candidates {
		if c.Status == CandidateUnreviewed {
			out = append(out, c)
		}
	}
	return out
}

// HasUnreviewedCandidates reports whether any candidate awaits review.
func (i URLItem) HasUnreviewedCandidates() bool {
	for _, c := range i.Candidates {
		if c.Status == CandidateUnreviewed {
			return true
		}
	}
	return false
}

// CandidateByID returns the candidate with the given id.
func (i URLItem) CandidateByID(id int) (IdentifierCandidate, bool) {
	for _, c := range i.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return IdentifierCandidate{}, false
}

// Clone returns a deep copy. Transitions operate on copies so callers keep
// the prior state until the new one is committed.
func (i URLItem) Clone() URLItem {
	cp := i
	if len(i.Candidates) > 0 {
		cp.Candidates = make([]IdentifierCandidate, len(i.Candidates))
		copy(cp.Candidates, i.Candidates)
	}
	if i.LastCheckedAt != nil {
		t := *i.LastCheckedAt
		cp.LastCheckedAt = &t
	}
	return cp
}

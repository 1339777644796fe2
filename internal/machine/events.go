package machine

import "citetrack/internal/item"

// Action names a user-facing operation the guard engine can enumerate.
type Action string

const (
	ActionStart            Action = "start"
	ActionSelectIdentifier Action = "select_identifier"
	ActionLLMExtract       Action = "llm_extract"
	ActionLinkExisting     Action = "link_existing"
	ActionUnlink           Action = "unlink"
	ActionIgnore           Action = "ignore"
	ActionUnignore         Action = "unignore"
	ActionArchive          Action = "archive"
	ActionUnarchive        Action = "unarchive"
	ActionReset            Action = "reset"
)

// UserActions returns the ordered list of enumerable user actions.
func UserActions() []Action {
	return []Action{
		ActionStart,
		ActionSelectIdentifier,
		ActionLLMExtract,
		ActionLinkExisting,
		ActionUnlink,
		ActionIgnore,
		ActionUnignore,
		ActionArchive,
		ActionUnarchive,
		ActionReset,
	}
}

// Event is a state machine input. Kind is recorded as the history outcome
// of an accepted transition.
type Event interface {
	Kind() string
}

// Start begins automated processing for a fresh item.
type Start struct{}

func (Start) Kind() string { return "start" }

// ZoteroSucceeded finalizes a stage-1 link. Complete decides between stored
// and stored_incomplete; CitationJSON is the metadata snapshot to cache.
type ZoteroSucceeded struct {
	Key          string
	Complete     bool
	CitationJSON string
}

func (ZoteroSucceeded) Kind() string { return "zotero_succeeded" }

// ZoteroFailed reports a non-retryable stage-1 failure. The machine
// self-advances to content processing; stage-1 failure is cheap to follow
// up automatically.
type ZoteroFailed struct {
	Reason string
}

func (ZoteroFailed) Kind() string { return "zotero_failed" }

// ContentUnreadable reports that nothing extractable sits behind the URL.
// Routes straight to exhausted, skipping intermediate stages.
type ContentUnreadable struct {
	Reason string
}

func (ContentUnreadable) Kind() string { return "content_unreadable" }

// IdentifiersFound appends discovered identifier candidates. The item stays
// in processing_content awaiting user selection.
type IdentifiersFound struct {
	Candidates []item.IdentifierCandidate
}

func (IdentifiersFound) Kind() string { return "identifiers_found" }

// NoIdentifiersFound exhausts the automated pipeline after stage 2 found
// nothing to pursue.
type NoIdentifiersFound struct{}

func (NoIdentifiersFound) Kind() string { return "no_identifiers_found" }

// IdentifierSucceeded finalizes a link resolved from a user-selected
// candidate.
type IdentifierSucceeded struct {
	CandidateID  int
	Key          string
	Complete     bool
	CitationJSON string
}

func (IdentifierSucceeded) Kind() string { return "identifier_succeeded" }

// IdentifierFailed marks a selected candidate rejected. The remaining
// candidates persist for another attempt.
type IdentifierFailed struct {
	CandidateID int
	Reason      string
}

func (IdentifierFailed) Kind() string { return "identifier_failed" }

// LLMSucceeded finalizes a link created from LLM-extracted metadata.
type LLMSucceeded struct {
	Key          string
	CitationJSON string
}

func (LLMSucceeded) Kind() string { return "llm_succeeded" }

// LLMFailed records an extraction failure. The stage is left unchanged: the
// item is already at or above exhausted severity.
type LLMFailed struct {
	Reason string
}

func (LLMFailed) Kind() string { return "llm_failed" }

// LinkExisting attaches an existing external record, bypassing all
// processing.
type LinkExisting struct {
	Key          string
	CitationJSON string
}

func (LinkExisting) Kind() string { return "link_existing" }

// Unlink clears the link and returns the item to not_started
// unconditionally.
type Unlink struct{}

func (Unlink) Kind() string { return "unlink" }

// Ignore sets the sticky ignored flag.
type Ignore struct{}

func (Ignore) Kind() string { return "ignore" }

// Unignore clears the ignored flag.
type Unignore struct{}

func (Unignore) Kind() string { return "unignore" }

// Archive sets the sticky archived flag.
type Archive struct{}

func (Archive) Kind() string { return "archive" }

// Unarchive clears the archived flag.
type Unarchive struct{}

func (Unarchive) Kind() string { return "unarchive" }

// Reset is the privileged escape hatch returning a stuck item to
// not_started and clearing its candidates.
type Reset struct{}

func (Reset) Kind() string { return "reset" }

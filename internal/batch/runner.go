// Package batch drives automated processing for URL items: the per-item
// stage chain (reference-manager save, then identifier discovery), the
// user-invoked orchestration around identifier selection, extraction and
// linking, and the multi-item job with its worker pool and pause/resume
// controls. All state changes flow through the transition machine and are
// committed atomically with their history entries.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"citetrack/internal/item"
	"citetrack/internal/logging"
	"citetrack/internal/machine"
	"citetrack/internal/services"
	"citetrack/internal/store"
)

// commitAttempts bounds compare-and-set retries on concurrent writers.
const commitAttempts = 3

// Runner executes transitions against the store and the external services.
type Runner struct {
	store      *store.Store
	manager    ReferenceManager
	discoverer IdentifierDiscoverer
	lookup     MetadataSource
	extractor  MetadataExtractor
	logger     *slog.Logger
}

// NewRunner wires a Runner. The extractor may be nil when no LLM is
// configured; ExtractLLM then reports a configuration error.
func NewRunner(st *store.Store, manager ReferenceManager, discoverer IdentifierDiscoverer, lookup MetadataSource, extractor MetadataExtractor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		store:      st,
		manager:    manager,
		discoverer: discoverer,
		lookup:     lookup,
		extractor:  extractor,
		logger:     logger,
	}
}

// Apply runs one event through the machine and persists the result. On a
// version conflict the item is re-read and the event re-evaluated against
// the fresh state, so a losing writer never clobbers the winner.
func (r *Runner) Apply(ctx context.Context, itemID int64, ev machine.Event, trigger item.Trigger) (*item.URLItem, *machine.Rejection, error) {
	for attempt := 1; ; attempt++ {
		current, err := r.store.GetByID(ctx, itemID)
		if err != nil {
			return nil, nil, err
		}
		if current == nil {
			return nil, nil, services.Wrap(services.ErrNotFound, "batch", "apply", fmt.Sprintf("item %d not found", itemID), nil)
		}

		next, entry, rejection := machine.Transition(*current, ev, trigger, time.Now())
		if rejection != nil {
			return current, rejection, nil
		}
		entry.RequestID = uuid.NewString()

		err = r.store.CommitTransition(ctx, &next, entry)
		if err == nil {
			r.logger.Debug("transition committed",
				logging.Int64(logging.FieldItemID, next.ID),
				logging.String(logging.FieldEvent, ev.Kind()),
				logging.String(logging.FieldStage, string(next.Stage)),
			)
			return &next, nil, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= commitAttempts {
			return nil, nil, err
		}
	}
}

// StartItem runs the automated processing chain for one item at the user's
// request.
func (r *Runner) StartItem(ctx context.Context, itemID int64) (Outcome, error) {
	return r.processItem(ctx, itemID, item.TriggerUser)
}

// processItem runs the full automated chain: start, reference-manager save,
// then identifier discovery on failure. It stops at the first terminal or
// review-pending state.
func (r *Runner) processItem(ctx context.Context, itemID int64, trigger item.Trigger) (Outcome, error) {
	current, err := r.store.GetByID(ctx, itemID)
	if err != nil {
		return Outcome{}, err
	}
	if current == nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "batch", "process", fmt.Sprintf("item %d not found", itemID), nil)
	}
	outcome := Outcome{ItemID: current.ID, SourceURL: current.SourceURL}

	if current.Flagged() {
		outcome.Status = StatusSkippedByIntent
		outcome.Detail = fmt.Sprintf("item is %s", current.IntentFlag)
		return outcome, nil
	}

	current, rejection, err := r.Apply(ctx, itemID, machine.Start{}, trigger)
	if err != nil {
		return outcome, err
	}
	if rejection != nil {
		outcome.Status = StatusSkipped
		outcome.Detail = rejection.String()
		return outcome, nil
	}

	return r.runZoteroStage(ctx, current, trigger, outcome)
}

func (r *Runner) runZoteroStage(ctx context.Context, current *item.URLItem, trigger item.Trigger, outcome Outcome) (Outcome, error) {
	key, cit, err := r.manager.SaveURL(ctx, current.SourceURL)
	switch {
	case err == nil:
		citationJSON, encErr := cit.Encode()
		if encErr != nil {
			return outcome, encErr
		}
		next, rejection, applyErr := r.Apply(ctx, current.ID, machine.ZoteroSucceeded{
			Key:          key,
			Complete:     cit.Complete(),
			CitationJSON: citationJSON,
		}, trigger)
		if applyErr != nil {
			return outcome, applyErr
		}
		if rejection != nil {
			outcome.Status = StatusFailed
			outcome.Detail = rejection.String()
			return outcome, nil
		}
		outcome.Status = statusForStage(next.Stage)
		return outcome, nil

	case errors.Is(err, services.ErrContentUnreadable):
		return r.commitExhausted(ctx, current.ID, machine.ContentUnreadable{Reason: err.Error()}, trigger, outcome)

	case errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation):
		// No translator could save this URL; fall through to discovery.
		next, rejection, applyErr := r.Apply(ctx, current.ID, machine.ZoteroFailed{Reason: err.Error()}, trigger)
		if applyErr != nil {
			return outcome, applyErr
		}
		if rejection != nil {
			outcome.Status = StatusFailed
			outcome.Detail = rejection.String()
			return outcome, nil
		}
		return r.runDiscoveryStage(ctx, next, trigger, outcome)

	default:
		// Unavailable or transient: leave the item where it is so a later
		// run can pick it back up.
		outcome.Status = StatusFailed
		outcome.Detail = err.Error()
		return outcome, nil
	}
}

func (r *Runner) runDiscoveryStage(ctx context.Context, current *item.URLItem, trigger item.Trigger, outcome Outcome) (Outcome, error) {
	candidates, err := r.discoverer.Discover(ctx, current.SourceURL)
	switch {
	case err == nil && len(candidates) > 0:
		_, rejection, applyErr := r.Apply(ctx, current.ID, machine.IdentifiersFound{Candidates: candidates}, trigger)
		if applyErr != nil {
			return outcome, applyErr
		}
		if rejection != nil {
			outcome.Status = StatusFailed
			outcome.Detail = rejection.String()
			return outcome, nil
		}
		outcome.Status = StatusCandidatesFound
		outcome.Detail = fmt.Sprintf("%d candidates await review", len(candidates))
		return outcome, nil

	case err == nil:
		return r.commitExhausted(ctx, current.ID, machine.NoIdentifiersFound{}, trigger, outcome)

	case errors.Is(err, services.ErrContentUnreadable):
		return r.commitExhausted(ctx, current.ID, machine.ContentUnreadable{Reason: err.Error()}, trigger, outcome)

	default:
		outcome.Status = StatusFailed
		outcome.Detail = err.Error()
		return outcome, nil
	}
}

func (r *Runner) commitExhausted(ctx context.Context, itemID int64, ev machine.Event, trigger item.Trigger, outcome Outcome) (Outcome, error) {
	_, rejection, err := r.Apply(ctx, itemID, ev, trigger)
	if err != nil {
		return outcome, err
	}
	if rejection != nil {
		outcome.Status = StatusFailed
		outcome.Detail = rejection.String()
		return outcome, nil
	}
	outcome.Status = StatusExhausted
	return outcome, nil
}

// SelectIdentifier resolves a discovered candidate through the metadata
// source and, on success, creates the external record and links it. A
// lookup miss marks the candidate rejected and leaves the rest for another
// attempt.
func (r *Runner) SelectIdentifier(ctx context.Context, itemID int64, candidateID int) (*item.URLItem, *machine.Rejection, error) {
	current, err := r.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "batch", "select", fmt.Sprintf("item %d not found", itemID), nil)
	}
	cand, ok := current.CandidateByID(candidateID)
	if !ok {
		return current, &machine.Rejection{Reason: machine.InvalidForStage, Detail: fmt.Sprintf("no candidate %d", candidateID)}, nil
	}
	if cand.Status != item.CandidateUnreviewed {
		return current, &machine.Rejection{Reason: machine.InvalidForStage, Detail: fmt.Sprintf("candidate %d already %s", candidateID, cand.Status)}, nil
	}

	cit, err := r.lookup.LookupIdentifier(ctx, cand.Kind, cand.Value)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrValidation) {
			return r.Apply(ctx, itemID, machine.IdentifierFailed{CandidateID: candidateID, Reason: err.Error()}, item.TriggerUser)
		}
		return nil, nil, err
	}

	key, err := r.manager.CreateLink(ctx, cit)
	if err != nil {
		return nil, nil, err
	}
	citationJSON, err := cit.Encode()
	if err != nil {
		return nil, nil, err
	}
	return r.Apply(ctx, itemID, machine.IdentifierSucceeded{
		CandidateID:  candidateID,
		Key:          key,
		Complete:     cit.Complete(),
		CitationJSON: citationJSON,
	}, item.TriggerUser)
}

// ExtractLLM builds a citation from page content, creates the external
// record and links it as a custom record. An unreadable page or a malformed
// extraction is recorded as a failed attempt without changing the stage.
func (r *Runner) ExtractLLM(ctx context.Context, itemID int64) (*item.URLItem, *machine.Rejection, error) {
	if r.extractor == nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "batch", "extract", "no llm extractor configured", nil)
	}
	current, err := r.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "batch", "extract", fmt.Sprintf("item %d not found", itemID), nil)
	}

	cit, err := r.extractor.Extract(ctx, current.SourceURL)
	if err != nil {
		if errors.Is(err, services.ErrContentUnreadable) || errors.Is(err, services.ErrValidation) || errors.Is(err, services.ErrNotFound) {
			return r.Apply(ctx, itemID, machine.LLMFailed{Reason: err.Error()}, item.TriggerUser)
		}
		return nil, nil, err
	}

	key, err := r.manager.CreateLink(ctx, cit)
	if err != nil {
		return nil, nil, err
	}
	citationJSON, err := cit.Encode()
	if err != nil {
		return nil, nil, err
	}
	return r.Apply(ctx, itemID, machine.LLMSucceeded{Key: key, CitationJSON: citationJSON}, item.TriggerUser)
}

// LinkExisting verifies the key against the reference manager and attaches
// it. Verification failures never touch the item.
func (r *Runner) LinkExisting(ctx context.Context, itemID int64, key string) (*item.URLItem, *machine.Rejection, error) {
	cit, err := r.manager.VerifyItem(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	citationJSON, err := cit.Encode()
	if err != nil {
		return nil, nil, err
	}
	return r.Apply(ctx, itemID, machine.LinkExisting{Key: key, CitationJSON: citationJSON}, item.TriggerUser)
}

// Unlink clears the tracked link and optionally removes the external
// record. Removal is best effort: the tracked state is already committed,
// and a missing or unreachable record is logged, not fatal.
func (r *Runner) Unlink(ctx context.Context, itemID int64, removeRemote bool) (*item.URLItem, *machine.Rejection, error) {
	current, err := r.store.GetByID(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "batch", "unlink", fmt.Sprintf("item %d not found", itemID), nil)
	}
	key := current.ExternalItemKey

	next, rejection, err := r.Apply(ctx, itemID, machine.Unlink{}, item.TriggerUser)
	if err != nil || rejection != nil {
		return next, rejection, err
	}

	if removeRemote && key != "" {
		if err := r.manager.RemoveLink(ctx, key); err != nil && !errors.Is(err, services.ErrNotFound) {
			r.logger.Warn("external record not removed",
				logging.Int64(logging.FieldItemID, itemID),
				logging.String("external_item_key", key),
				logging.Error(err),
			)
		}
	}
	return next, nil, nil
}

func statusForStage(stage item.Stage) Status {
	switch stage {
	case item.StageStored:
		return StatusStored
	case item.StageStoredIncomplete:
		return StatusStoredIncomplete
	case item.StageStoredCustom:
		return StatusStored
	case item.StageExhausted:
		return StatusExhausted
	default:
		return StatusFailed
	}
}

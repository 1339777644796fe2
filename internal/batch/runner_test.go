package batch_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"citetrack/internal/batch"
	"citetrack/internal/item"
	"citetrack/internal/machine"
	"citetrack/internal/services"
	"citetrack/internal/store"
	"citetrack/internal/testsupport"
)

type fakeManager struct {
	mu sync.Mutex

	saveKey string
	saveCit item.Citation
	saveErr error

	verifyCit item.Citation
	verifyErr error

	createKey string
	createErr error

	removeErr error

	savedURLs []string
	created   []item.Citation
	removed   []string
}

func (f *fakeManager) SaveURL(_ context.Context, sourceURL string) (string, item.Citation, error) {
	f.mu.Lock()
	f.savedURLs = append(f.savedURLs, sourceURL)
	f.mu.Unlock()
	return f.saveKey, f.saveCit, f.saveErr
}

func (f *fakeManager) VerifyItem(context.Context, string) (item.Citation, error) {
	return f.verifyCit, f.verifyErr
}

func (f *fakeManager) CreateLink(_ context.Context, cit item.Citation) (string, error) {
	f.mu.Lock()
	f.created = append(f.created, cit)
	f.mu.Unlock()
	return f.createKey, f.createErr
}

func (f *fakeManager) RemoveLink(_ context.Context, key string) error {
	f.mu.Lock()
	f.removed = append(f.removed, key)
	f.mu.Unlock()
	return f.removeErr
}

type fakeDiscoverer struct {
	candidates []item.IdentifierCandidate
	err        error
}

func (f *fakeDiscoverer) Discover(context.Context, string) ([]item.IdentifierCandidate, error) {
	return f.candidates, f.err
}

type fakeLookup struct {
	cit       item.Citation
	err       error
	gotKind   string
	gotValue  string
	gotTitles []string
}

func (f *fakeLookup) LookupIdentifier(_ context.Context, kind, value string) (item.Citation, error) {
	f.gotKind, f.gotValue = kind, value
	return f.cit, f.err
}

func (f *fakeLookup) LookupTitle(_ context.Context, title string) (item.Citation, error) {
	f.gotTitles = append(f.gotTitles, title)
	return f.cit, f.err
}

type fakeExtractor struct {
	cit item.Citation
	err error
}

func (f *fakeExtractor) Extract(context.Context, string) (item.Citation, error) {
	return f.cit, f.err
}

type fixture struct {
	store      *store.Store
	manager    *fakeManager
	discoverer *fakeDiscoverer
	lookup     *fakeLookup
	extractor  *fakeExtractor
	runner     *batch.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      testsupport.MustOpenStore(t, testsupport.NewConfig(t)),
		manager:    &fakeManager{},
		discoverer: &fakeDiscoverer{},
		lookup:     &fakeLookup{},
		extractor:  &fakeExtractor{},
	}
	f.runner = batch.NewRunner(f.store, f.manager, f.discoverer, f.lookup, f.extractor, nil)
	return f
}

func (f *fixture) item(t *testing.T, sourceURL string) *item.URLItem {
	t.Helper()
	return testsupport.NewItem(t, f.store, sourceURL)
}

func (f *fixture) reload(t *testing.T, id int64) *item.URLItem {
	t.Helper()
	it, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if it == nil {
		t.Fatalf("item %d vanished", id)
	}
	return it
}

func completeCitation() item.Citation {
	return item.Citation{
		Title:    "A Saved Page",
		Creators: []item.Creator{{Family: "Doe", Given: "Jan"}},
		Date:     "2024-05-01",
	}
}

func wrapErr(marker error) error {
	return services.Wrap(marker, "fake", "op", "stubbed", nil)
}

// seedAwaitingReview drives an item into processing_content with discovered
// candidates.
func seedAwaitingReview(t *testing.T, f *fixture, sourceURL string, candidates ...item.IdentifierCandidate) *item.URLItem {
	t.Helper()
	it := f.item(t, sourceURL)
	it = testsupport.MustTransition(t, f.store, it, machine.Start{}, item.TriggerUser)
	it = testsupport.MustTransition(t, f.store, it, machine.ZoteroFailed{Reason: "no translator"}, item.TriggerUser)
	return testsupport.MustTransition(t, f.store, it, machine.IdentifiersFound{Candidates: candidates}, item.TriggerUser)
}

func TestStartItemStoresCompleteCitation(t *testing.T) {
	f := newFixture(t)
	f.manager.saveKey = "KEY1"
	f.manager.saveCit = completeCitation()
	it := f.item(t, "https://example.org/a")

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusStored {
		t.Fatalf("status = %s, detail = %q", outcome.Status, outcome.Detail)
	}

	got := f.reload(t, it.ID)
	if got.Stage != item.StageStored || !got.Linked() {
		t.Fatalf("item = %+v", got)
	}
	if got.ExternalItemKey != "KEY1" || got.LinkOrigin != item.OriginAutoZotero {
		t.Fatalf("link = %s via %s", got.ExternalItemKey, got.LinkOrigin)
	}
	if len(f.manager.savedURLs) != 1 || f.manager.savedURLs[0] != "https://example.org/a" {
		t.Fatalf("saved urls = %v", f.manager.savedURLs)
	}
}

func TestStartItemIncompleteCitation(t *testing.T) {
	f := newFixture(t)
	f.manager.saveKey = "KEY2"
	f.manager.saveCit = item.Citation{Title: "Only a Title"}
	it := f.item(t, "https://example.org/b")

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusStoredIncomplete {
		t.Fatalf("status = %s", outcome.Status)
	}
	if got := f.reload(t, it.ID); got.Stage != item.StageStoredIncomplete {
		t.Fatalf("stage = %s", got.Stage)
	}
}

func TestStartItemFallsBackToDiscovery(t *testing.T) {
	f := newFixture(t)
	f.manager.saveErr = wrapErr(services.ErrNotFound)
	f.discoverer.candidates = []item.IdentifierCandidate{
		{Kind: item.IdentifierDOI, Value: "10.1234/x", Method: "meta_tag"},
		{Kind: item.IdentifierArxiv, Value: "2101.00001", Method: "anchor"},
	}
	it := f.item(t, "https://example.org/c")

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusCandidatesFound {
		t.Fatalf("status = %s, detail = %q", outcome.Status, outcome.Detail)
	}

	got := f.reload(t, it.ID)
	if got.Stage != item.StageProcessingContent || got.Linked() {
		t.Fatalf("item = %+v", got)
	}
	if len(got.Candidates) != 2 || got.Candidates[0].ID != 1 || got.Candidates[1].ID != 2 {
		t.Fatalf("candidates = %+v", got.Candidates)
	}
	for _, c := range got.Candidates {
		if c.Status != item.CandidateUnreviewed {
			t.Fatalf("candidate %d status = %s", c.ID, c.Status)
		}
	}
}

func TestStartItemNoIdentifiersExhausts(t *testing.T) {
	f := newFixture(t)
	f.manager.saveErr = wrapErr(services.ErrValidation)
	it := f.item(t, "https://example.org/d")

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusExhausted {
		t.Fatalf("status = %s", outcome.Status)
	}
	if got := f.reload(t, it.ID); got.Stage != item.StageExhausted {
		t.Fatalf("stage = %s", got.Stage)
	}
}

func TestStartItemUnreadableContent(t *testing.T) {
	f := newFixture(t)
	f.manager.saveErr = wrapErr(services.ErrContentUnreadable)
	it := f.item(t, "https://example.org/e")

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusExhausted {
		t.Fatalf("status = %s", outcome.Status)
	}
	if got := f.reload(t, it.ID); got.Stage != item.StageExhausted {
		t.Fatalf("stage = %s", got.Stage)
	}
}

func TestStartItemManagerDownLeavesItemInPlace(t *testing.T) {
	f := newFixture(t)
	f.manager.saveErr = wrapErr(services.ErrUnavailable)
	it := f.item(t, "https://example.org/f")

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusFailed {
		t.Fatalf("status = %s", outcome.Status)
	}
	// The attempt stays visible; a later run or a reset picks it back up.
	if got := f.reload(t, it.ID); got.Stage != item.StageProcessingZotero {
		t.Fatalf("stage = %s", got.Stage)
	}
}

func TestStartItemSkipsFlagged(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "https://example.org/g")
	testsupport.MustTransition(t, f.store, it, machine.Ignore{}, item.TriggerUser)

	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	if outcome.Status != batch.StatusSkippedByIntent {
		t.Fatalf("status = %s", outcome.Status)
	}
	if len(f.manager.savedURLs) != 0 {
		t.Fatalf("flagged item must not reach the reference manager: %v", f.manager.savedURLs)
	}
}

func TestStartItemSkipsNonFreshStage(t *testing.T) {
	f := newFixture(t)
	f.manager.saveKey = "KEY3"
	f.manager.saveCit = completeCitation()
	it := f.item(t, "https://example.org/h")

	if _, err := f.runner.StartItem(context.Background(), it.ID); err != nil {
		t.Fatalf("first StartItem: %v", err)
	}
	outcome, err := f.runner.StartItem(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("second StartItem: %v", err)
	}
	if outcome.Status != batch.StatusSkipped {
		t.Fatalf("status = %s, detail = %q", outcome.Status, outcome.Detail)
	}
}

func TestStartItemMissing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.runner.StartItem(context.Background(), 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSelectIdentifier(t *testing.T) {
	f := newFixture(t)
	f.lookup.cit = completeCitation()
	f.manager.createKey = "RESOLVED"
	it := seedAwaitingReview(t, f, "https://example.org/i",
		item.IdentifierCandidate{Kind: item.IdentifierDOI, Value: "10.1234/x", Method: "meta_tag"},
		item.IdentifierCandidate{Kind: item.IdentifierDOI, Value: "10.1234/y", Method: "text_scan"},
	)

	next, rejection, err := f.runner.SelectIdentifier(context.Background(), it.ID, 1)
	if err != nil {
		t.Fatalf("SelectIdentifier: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	if next.Stage != item.StageStored || next.ExternalItemKey != "RESOLVED" {
		t.Fatalf("item = %+v", next)
	}
	if next.LinkOrigin != item.OriginAutoContentID {
		t.Fatalf("origin = %s", next.LinkOrigin)
	}
	if f.lookup.gotKind != item.IdentifierDOI || f.lookup.gotValue != "10.1234/x" {
		t.Fatalf("lookup asked for %s %s", f.lookup.gotKind, f.lookup.gotValue)
	}

	cand, ok := next.CandidateByID(1)
	if !ok || cand.Status != item.CandidateAccepted {
		t.Fatalf("candidate 1 = %+v", cand)
	}
	if other, _ := next.CandidateByID(2); other.Status != item.CandidateUnreviewed {
		t.Fatalf("candidate 2 = %+v", other)
	}
}

func TestSelectIdentifierLookupMiss(t *testing.T) {
	f := newFixture(t)
	f.lookup.err = wrapErr(services.ErrNotFound)
	it := seedAwaitingReview(t, f, "https://example.org/j",
		item.IdentifierCandidate{Kind: item.IdentifierDOI, Value: "10.1234/z", Method: "anchor"},
	)

	next, rejection, err := f.runner.SelectIdentifier(context.Background(), it.ID, 1)
	if err != nil {
		t.Fatalf("SelectIdentifier: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	if next.Linked() || next.Stage != item.StageProcessingContent {
		t.Fatalf("item = %+v", next)
	}
	if cand, _ := next.CandidateByID(1); cand.Status != item.CandidateRejected {
		t.Fatalf("candidate = %+v", cand)
	}
	if len(f.manager.created) != 0 {
		t.Fatalf("no record may be created for a failed lookup: %v", f.manager.created)
	}
}

func TestSelectIdentifierAlreadyReviewed(t *testing.T) {
	f := newFixture(t)
	f.lookup.err = wrapErr(services.ErrNotFound)
	it := seedAwaitingReview(t, f, "https://example.org/k",
		item.IdentifierCandidate{Kind: item.IdentifierDOI, Value: "10.1234/w", Method: "anchor"},
	)

	if _, _, err := f.runner.SelectIdentifier(context.Background(), it.ID, 1); err != nil {
		t.Fatalf("first select: %v", err)
	}
	_, rejection, err := f.runner.SelectIdentifier(context.Background(), it.ID, 1)
	if err != nil {
		t.Fatalf("second select: %v", err)
	}
	if rejection == nil || rejection.Reason != machine.InvalidForStage {
		t.Fatalf("rejection = %v, want invalid for stage", rejection)
	}
}

func TestSelectIdentifierUnknownCandidate(t *testing.T) {
	f := newFixture(t)
	it := seedAwaitingReview(t, f, "https://example.org/l",
		item.IdentifierCandidate{Kind: item.IdentifierDOI, Value: "10.1234/v", Method: "anchor"},
	)

	_, rejection, err := f.runner.SelectIdentifier(context.Background(), it.ID, 42)
	if err != nil {
		t.Fatalf("SelectIdentifier: %v", err)
	}
	if rejection == nil {
		t.Fatal("expected rejection for unknown candidate")
	}
}

func TestExtractLLM(t *testing.T) {
	f := newFixture(t)
	f.extractor.cit = item.Citation{Title: "Extracted Page"}
	f.manager.createKey = "CUSTOM"
	it := f.item(t, "https://example.org/m")
	it = testsupport.MustTransition(t, f.store, it, machine.Start{}, item.TriggerUser)
	it = testsupport.MustTransition(t, f.store, it, machine.ContentUnreadable{Reason: "paywall"}, item.TriggerUser)

	next, rejection, err := f.runner.ExtractLLM(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("ExtractLLM: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	if next.Stage != item.StageStoredCustom || next.LinkOrigin != item.OriginManualLLM {
		t.Fatalf("item = %+v", next)
	}
	if next.ExternalItemKey != "CUSTOM" {
		t.Fatalf("key = %q", next.ExternalItemKey)
	}
}

func TestExtractLLMUnreadablePage(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = wrapErr(services.ErrContentUnreadable)
	it := f.item(t, "https://example.org/n")
	it = testsupport.MustTransition(t, f.store, it, machine.Start{}, item.TriggerUser)
	it = testsupport.MustTransition(t, f.store, it, machine.ContentUnreadable{Reason: "paywall"}, item.TriggerUser)

	next, rejection, err := f.runner.ExtractLLM(context.Background(), it.ID)
	if err != nil {
		t.Fatalf("ExtractLLM: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	// The failed attempt is recorded; the stage does not move.
	if next.Stage != item.StageExhausted || next.Linked() {
		t.Fatalf("item = %+v", next)
	}
}

func TestExtractLLMWithoutExtractor(t *testing.T) {
	f := newFixture(t)
	runner := batch.NewRunner(f.store, f.manager, f.discoverer, f.lookup, nil, nil)
	it := f.item(t, "https://example.org/o")

	if _, _, err := runner.ExtractLLM(context.Background(), it.ID); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}

func TestLinkExisting(t *testing.T) {
	f := newFixture(t)
	f.manager.verifyCit = completeCitation()
	it := f.item(t, "https://example.org/p")

	next, rejection, err := f.runner.LinkExisting(context.Background(), it.ID, "MANUAL")
	if err != nil {
		t.Fatalf("LinkExisting: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	if next.Stage != item.StageStoredCustom || next.ExternalItemKey != "MANUAL" {
		t.Fatalf("item = %+v", next)
	}
	if next.LinkOrigin != item.OriginManualLinkExisting {
		t.Fatalf("origin = %s", next.LinkOrigin)
	}
}

func TestLinkExistingVerificationFailure(t *testing.T) {
	f := newFixture(t)
	f.manager.verifyErr = wrapErr(services.ErrNotFound)
	it := f.item(t, "https://example.org/q")

	if _, _, err := f.runner.LinkExisting(context.Background(), it.ID, "GHOST"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if got := f.reload(t, it.ID); got.Stage != item.StageNotStarted || got.Linked() {
		t.Fatalf("verification failure must not touch the item: %+v", got)
	}
}

func TestUnlinkRemovesExternalRecord(t *testing.T) {
	f := newFixture(t)
	f.manager.verifyCit = completeCitation()
	it := f.item(t, "https://example.org/r")
	if _, _, err := f.runner.LinkExisting(context.Background(), it.ID, "GONE"); err != nil {
		t.Fatalf("LinkExisting: %v", err)
	}

	next, rejection, err := f.runner.Unlink(context.Background(), it.ID, true)
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	if next.Stage != item.StageNotStarted || next.Linked() || next.ExternalItemKey != "" {
		t.Fatalf("item = %+v", next)
	}
	if len(f.manager.removed) != 1 || f.manager.removed[0] != "GONE" {
		t.Fatalf("removed = %v", f.manager.removed)
	}
}

func TestUnlinkRemovalFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.manager.verifyCit = completeCitation()
	f.manager.removeErr = wrapErr(services.ErrUnavailable)
	it := f.item(t, "https://example.org/s")
	if _, _, err := f.runner.LinkExisting(context.Background(), it.ID, "STUCK"); err != nil {
		t.Fatalf("LinkExisting: %v", err)
	}

	next, rejection, err := f.runner.Unlink(context.Background(), it.ID, true)
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if rejection != nil {
		t.Fatalf("rejected: %s", rejection)
	}
	if next.Linked() {
		t.Fatalf("tracked link must be cleared even when removal fails: %+v", next)
	}
}

func TestUnlinkKeepsRecordWithoutRemoveFlag(t *testing.T) {
	f := newFixture(t)
	f.manager.verifyCit = completeCitation()
	it := f.item(t, "https://example.org/t")
	if _, _, err := f.runner.LinkExisting(context.Background(), it.ID, "KEEP"); err != nil {
		t.Fatalf("LinkExisting: %v", err)
	}

	if _, _, err := f.runner.Unlink(context.Background(), it.ID, false); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if len(f.manager.removed) != 0 {
		t.Fatalf("removed = %v, want the external record kept", f.manager.removed)
	}
}

func TestUnlinkRejectedWhenUnlinked(t *testing.T) {
	f := newFixture(t)
	it := f.item(t, "https://example.org/u")

	_, rejection, err := f.runner.Unlink(context.Background(), it.ID, false)
	if err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if rejection == nil || rejection.Reason != machine.InvalidForStage {
		t.Fatalf("rejection = %v", rejection)
	}
}

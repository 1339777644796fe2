package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"citetrack/internal/item"
	"citetrack/internal/logging"
)

// workerCount is the fixed pool size for batch jobs. External services are
// paced by their own limiters, so the pool only bounds local concurrency.
const workerCount = 4

// Status is an item's terminal result within a batch run.
type Status string

const (
	StatusStored           Status = "stored"
	StatusStoredIncomplete Status = "stored_incomplete"
	StatusCandidatesFound  Status = "candidates_found"
	StatusExhausted        Status = "exhausted"
	StatusSkippedByIntent  Status = "skipped_by_intent"
	StatusSkipped          Status = "skipped"
	StatusFailed           Status = "failed"
	StatusCanceled         Status = "canceled"
)

// Outcome is one item's result in a run, in the run's input order.
type Outcome struct {
	ItemID    int64
	SourceURL string
	Status    Status
	Detail    string
}

// Summary aggregates a finished run.
type Summary struct {
	JobID    string
	Outcomes []Outcome
	Counts   map[Status]int
	Started  time.Time
	Finished time.Time
}

// Job processes a fixed list of items through the automated chain. Workers
// pull items in input order; Pause stops new items from being claimed while
// in-flight items run to completion, and Cancel marks everything unclaimed
// as canceled.
type Job struct {
	id      string
	runner  *Runner
	itemIDs []int64

	mu        sync.Mutex
	cond      *sync.Cond
	paused    bool
	canceled  bool
	nextIndex int
	outcomes  []Outcome
}

// NewJob prepares a job over the given items. Run starts it.
func (r *Runner) NewJob(itemIDs []int64) *Job {
	j := &Job{
		id:       uuid.NewString(),
		runner:   r,
		itemIDs:  itemIDs,
		outcomes: make([]Outcome, len(itemIDs)),
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

// RunBatch processes the items with a fresh job and blocks until done.
func (r *Runner) RunBatch(ctx context.Context, itemIDs []int64) Summary {
	return r.NewJob(itemIDs).Run(ctx)
}

// ID returns the job's identifier, present on every log line it emits.
func (j *Job) ID() string { return j.id }

// Pause stops workers from claiming further items. In-flight items finish.
func (j *Job) Pause() {
	j.mu.Lock()
	j.paused = true
	j.mu.Unlock()
}

// Resume lifts a pause.
func (j *Job) Resume() {
	j.mu.Lock()
	j.paused = false
	j.mu.Unlock()
	j.cond.Broadcast()
}

// Cancel stops the job. Unclaimed items are reported as canceled; items
// already in flight run to completion so no transition is half-committed.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.canceled = true
	j.mu.Unlock()
	j.cond.Broadcast()
}

// Paused reports whether the job is currently paused.
func (j *Job) Paused() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.paused
}

// Run executes the job and returns its summary. Context cancellation is
// treated as Cancel.
func (j *Job) Run(ctx context.Context) Summary {
	logger := j.runner.logger.With(logging.String(logging.FieldJobID, j.id))
	started := time.Now().UTC()
	logger.Info("batch started", logging.Int("items", len(j.itemIDs)))

	watcherDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			j.Cancel()
		case <-watcherDone:
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx, ok := j.claim()
				if !ok {
					return
				}
				j.outcomes[idx] = j.processOne(ctx, j.itemIDs[idx], logger)
			}
		}()
	}
	wg.Wait()
	close(watcherDone)

	for idx := range j.outcomes {
		if j.outcomes[idx].Status == "" {
			j.outcomes[idx] = Outcome{ItemID: j.itemIDs[idx], Status: StatusCanceled}
		}
	}

	summary := Summary{
		JobID:    j.id,
		Outcomes: j.outcomes,
		Counts:   make(map[Status]int),
		Started:  started,
		Finished: time.Now().UTC(),
	}
	for _, out := range j.outcomes {
		summary.Counts[out.Status]++
	}
	logger.Info("batch finished",
		logging.Int("stored", summary.Counts[StatusStored]+summary.Counts[StatusStoredIncomplete]),
		logging.Int("candidates_found", summary.Counts[StatusCandidatesFound]),
		logging.Int("exhausted", summary.Counts[StatusExhausted]),
		logging.Int("skipped", summary.Counts[StatusSkipped]+summary.Counts[StatusSkippedByIntent]),
		logging.Int("failed", summary.Counts[StatusFailed]),
		logging.Int("canceled", summary.Counts[StatusCanceled]),
	)
	return summary
}

// claim hands out the next input index, blocking while paused. Returns
// false once the job is canceled or drained.
func (j *Job) claim() (int, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for {
		if j.canceled || j.nextIndex >= len(j.itemIDs) {
			return 0, false
		}
		if !j.paused {
			idx := j.nextIndex
			j.nextIndex++
			return idx, true
		}
		j.cond.Wait()
	}
}

func (j *Job) processOne(ctx context.Context, itemID int64, logger *slog.Logger) Outcome {
	outcome, err := j.runner.processItem(ctx, itemID, item.TriggerBatch)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{ItemID: itemID, Status: StatusCanceled, Detail: ctx.Err().Error()}
		}
		logger.Warn("item processing failed",
			logging.Int64(logging.FieldItemID, itemID),
			logging.Error(err),
		)
		return Outcome{ItemID: itemID, Status: StatusFailed, Detail: err.Error()}
	}
	logger.Info("item processed",
		logging.Int64(logging.FieldItemID, itemID),
		logging.String("status", string(outcome.Status)),
	)
	return outcome
}

package item

import "time"

// Trigger identifies what caused a transition to be applied.
type Trigger string

const (
	TriggerUser         Trigger = "user"
	TriggerBatch        Trigger = "batch"
	TriggerManualRepair Trigger = "manual_repair"
	TriggerBulkRepair   Trigger = "bulk_repair"
)

// HistoryEntry is one row of the append-only audit trail. Entries are never
// mutated or pruned; every applied transition appends exactly one.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	Timestamp time.Time `json:"timestamp"`
	FromStage Stage     `json:"from_stage"`
	ToStage   Stage     `json:"to_stage"`
	Trigger   Trigger   `json:"trigger"`
	Outcome   string    `json:"outcome"`
	RequestID string    `json:"request_id,omitempty"`
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"citetrack/internal/item"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertHistory(ctx context.Context, ex execer, entry item.HistoryEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := ex.ExecContext(
		ctx,
		`INSERT INTO history_entries (item_id, timestamp, from_stage, to_stage, event_trigger, outcome, request_id)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ItemID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.FromStage,
		entry.ToStage,
		entry.Trigger,
		entry.Outcome,
		nullableString(entry.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// AppendHistory appends one audit entry outside a transition. Most entries
// arrive through CommitTransition instead.
func (s *Store) AppendHistory(ctx context.Context, entry item.HistoryEntry) error {
	return insertHistory(ctx, s.db, entry)
}

// HistoryForItem returns the item's audit trail in applied order.
func (s *Store) HistoryForItem(ctx context.Context, itemID int64) ([]item.HistoryEntry, error) {
	return s.queryHistory(ctx, "item_id = ?", itemID)
}

// ExportHistory returns the full audit trail of all items as an ordered
// sequence of flat records for offline analysis.
func (s *Store) ExportHistory(ctx context.Context) ([]item.HistoryEntry, error) {
	return s.queryHistory(ctx, "")
}

// HistoryByTrigger returns entries recorded with a given trigger, ordered.
func (s *Store) HistoryByTrigger(ctx context.Context, trigger item.Trigger) ([]item.HistoryEntry, error) {
	return s.queryHistory(ctx, "event_trigger = ?", string(trigger))
}

func (s *Store) queryHistory(ctx context.Context, where string, args ...any) ([]item.HistoryEntry, error) {
	query := builder().
		Select("id, item_id, timestamp, from_stage, to_stage, event_trigger, outcome, request_id").
		From("history_entries").
		OrderBy("timestamp", "id")
	if where != "" {
		query = query.Where(where, args...)
	}
	sqlStr, sqlArgs, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, sqlArgs...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []item.HistoryEntry
	for rows.Next() {
		var (
			entry        item.HistoryEntry
			timestampRaw string
			requestID    sql.NullString
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.ItemID,
			&timestampRaw,
			&entry.FromStage,
			&entry.ToStage,
			&entry.Trigger,
			&entry.Outcome,
			&requestID,
		); err != nil {
			return nil, err
		}
		if ts, err := parseTimeString(timestampRaw); err == nil {
			entry.Timestamp = ts
		}
		entry.RequestID = requestID.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

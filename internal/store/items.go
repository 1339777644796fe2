package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"citetrack/internal/item"
)

const itemColumns = "id, source_url, stage, link_state, external_item_key, link_origin, intent_flag, candidates_json, citation_json, last_checked_at, last_check_outcome, version, created_at, updated_at"

// NewItem inserts a fresh URL item in its initial state.
func (s *Store) NewItem(ctx context.Context, sourceURL string) (*item.URLItem, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, errors.New("source url must not be empty")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	fresh := item.New(sourceURL)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO url_items (
            source_url, stage, link_state, link_origin, intent_flag,
            version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		fresh.SourceURL,
		fresh.Stage,
		fresh.LinkState,
		fresh.LinkOrigin,
		fresh.IntentFlag,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches an item by identifier. A missing item returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*item.URLItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM url_items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// GetBySourceURL fetches an item by its source URL.
func (s *Store) GetBySourceURL(ctx context.Context, sourceURL string) (*item.URLItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM url_items WHERE source_url = ?`, strings.TrimSpace(sourceURL))
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by url: %w", err)
	}
	return it, nil
}

// Filter narrows List results. Zero-value fields are ignored.
type Filter struct {
	Stages      []item.Stage
	IntentFlags []item.IntentFlag
	Linked      *bool
}

// List returns items matching the filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter Filter) ([]item.URLItem, error) {
	query := builder().
		Select(itemColumns).
		From("url_items").
		OrderBy("created_at", "id")
	if len(filter.Stages) > 0 {
		stages := make([]string, len(filter.Stages))
		for i, stage := range filter.Stages {
			stages[i] = string(stage)
		}
		query = query.Where(sq.Eq{"stage": stages})
	}
	if len(filter.IntentFlags) > 0 {
		flags := make([]string, len(filter.IntentFlags))
		for i, flag := range filter.IntentFlags {
			flags[i] = string(flag)
		}
		query = query.Where(sq.Eq{"intent_flag": flags})
	}
	if filter.Linked != nil {
		state := item.LinkUnlinked
		if *filter.Linked {
			state = item.LinkLinked
		}
		query = query.Where(sq.Eq{"link_state": string(state)})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []item.URLItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// ListAll returns every item ordered by creation time.
func (s *Store) ListAll(ctx context.Context) ([]item.URLItem, error) {
	return s.List(ctx, Filter{})
}

// CommitTransition persists a transitioned item and its history entry as
// one atomic operation. The update is a compare-and-set on the version the
// caller read; a concurrent change surfaces as ErrVersionConflict and
// nothing is written.
func (s *Store) CommitTransition(ctx context.Context, it *item.URLItem, entry item.HistoryEntry) error {
	if it == nil {
		return errors.New("item is nil")
	}
	candidatesJSON, err := encodeCandidates(it.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	it.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(
		ctx,
		`UPDATE url_items
         SET stage = ?, link_state = ?, external_item_key = ?, link_origin = ?,
             intent_flag = ?, candidates_json = ?, citation_json = ?,
             last_checked_at = ?, last_check_outcome = ?,
             version = version + 1, updated_at = ?
         WHERE id = ? AND version = ?`,
		it.Stage,
		it.LinkState,
		nullableString(it.ExternalItemKey),
		it.LinkOrigin,
		it.IntentFlag,
		nullableString(candidatesJSON),
		nullableString(it.CitationJSON),
		nullableTime(it.LastCheckedAt),
		nullableString(it.LastCheckOutcome),
		it.UpdatedAt.Format(time.RFC3339Nano),
		it.ID,
		it.Version,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	entry.ItemID = it.ID
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	it.Version++
	return nil
}

// Stats returns a count of items grouped by stage.
func (s *Store) Stats(ctx context.Context) (map[item.Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM url_items GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[item.Stage]int)
	for rows.Next() {
		var stage item.Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*item.URLItem, error) {
	var (
		id             int64
		sourceURL      string
		stageStr       string
		linkStateStr   string
		externalKey    sql.NullString
		linkOriginStr  string
		intentFlagStr  string
		candidatesRaw  sql.NullString
		citationRaw    sql.NullString
		lastCheckedRaw sql.NullString
		lastOutcome    sql.NullString
		version        int64
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&id,
		&sourceURL,
		&stageStr,
		&linkStateStr,
		&externalKey,
		&linkOriginStr,
		&intentFlagStr,
		&candidatesRaw,
		&citationRaw,
		&lastCheckedRaw,
		&lastOutcome,
		&version,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	it := &item.URLItem{
		ID:               id,
		SourceURL:        sourceURL,
		Stage:            item.Stage(stageStr),
		LinkState:        item.LinkState(linkStateStr),
		ExternalItemKey:  externalKey.String,
		LinkOrigin:       item.LinkOrigin(linkOriginStr),
		IntentFlag:       item.IntentFlag(intentFlagStr),
		CitationJSON:     citationRaw.String,
		LastCheckOutcome: lastOutcome.String,
		Version:          version,
	}
	if candidatesRaw.Valid && strings.TrimSpace(candidatesRaw.String) != "" {
		if err := json.Unmarshal([]byte(candidatesRaw.String), &it.Candidates); err != nil {
			return nil, fmt.Errorf("decode candidates: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		it.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		it.UpdatedAt = updated
	}
	if lastCheckedRaw.Valid {
		if checked, err := parseTimeString(lastCheckedRaw.String); err == nil {
			it.LastCheckedAt = &checked
		}
	}
	return it, nil
}

func encodeCandidates(candidates []item.IdentifierCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	data, err := json.Marshal(candidates)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

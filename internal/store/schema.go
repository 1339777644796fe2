package store

const schema = `
CREATE TABLE IF NOT EXISTS url_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_url TEXT NOT NULL UNIQUE,
    stage TEXT NOT NULL,
    link_state TEXT NOT NULL,
    external_item_key TEXT,
    link_origin TEXT NOT NULL,
    intent_flag TEXT NOT NULL,
    candidates_json TEXT,
    citation_json TEXT,
    last_checked_at TEXT,
    last_check_outcome TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS history_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id INTEGER NOT NULL REFERENCES url_items(id),
    timestamp TEXT NOT NULL,
    from_stage TEXT NOT NULL,
    to_stage TEXT NOT NULL,
    event_trigger TEXT NOT NULL,
    outcome TEXT NOT NULL,
    request_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_url_items_stage ON url_items(stage);
CREATE INDEX IF NOT EXISTS idx_history_entries_item ON history_entries(item_id);
CREATE INDEX IF NOT EXISTS idx_history_entries_timestamp ON history_entries(timestamp);
`

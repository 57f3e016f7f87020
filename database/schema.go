package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS sequence_cache (
    bucket_key TEXT PRIMARY KEY,
    last_no    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS batch_history (
    unique_id  TEXT PRIMARY KEY,
    local_id   INTEGER NOT NULL,
    batch_code TEXT NOT NULL,
    grade      TEXT NOT NULL,
    heat_no    TEXT NOT NULL DEFAULT '',
    bundle_no  TEXT NOT NULL DEFAULT '',
    weight_kg  TEXT NOT NULL DEFAULT '',
    sae_spec   TEXT NOT NULL DEFAULT '',
    prod_date  TEXT NOT NULL,
    operator   TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batch_history_local_id ON batch_history(local_id);
CREATE INDEX IF NOT EXISTS idx_batch_history_batch_code ON batch_history(batch_code);

CREATE TABLE IF NOT EXISTS app_kv (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// InitDatabase applies the schema. Safe to run on every startup.
func InitDatabase(db *sqlx.DB) error {
	log.Println("Applying database schema...")
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("Schema applied successfully.")
	return nil
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

// SAEMapKey stores the last SAE spec entered per grade, so the form can
// pre-fill it next time the grade is selected.
const SAEMapKey = "sae_map"

// GetKVMap loads a JSON string-map from app_kv. Missing or unreadable
// values degrade to an empty map.
func GetKVMap(db *sqlx.DB, key string) map[string]string {
	var raw string
	err := db.Get(&raw, `SELECT value FROM app_kv WHERE key = ?`, key)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("WARN: [KV] read failed for '%s': %v", key, err)
		}
		return map[string]string{}
	}
	m := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Printf("WARN: [KV] malformed value for '%s': %v", key, err)
		return map[string]string{}
	}
	return m
}

// SetKVMap stores a JSON string-map into app_kv.
func SetKVMap(db *sqlx.DB, key string, m map[string]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal kv '%s': %w", key, err)
	}
	_, err = db.Exec(`INSERT INTO app_kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save kv '%s': %w", key, err)
	}
	return nil
}

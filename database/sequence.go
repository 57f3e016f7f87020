package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
)

// GetLocalSequence returns the highest sequence persisted for a bucket,
// 0 when the bucket has never been used. Read failures degrade to 0 with
// a warning: the counter is advisory and is re-synced from the server on
// the next online allocation.
func GetLocalSequence(db *sqlx.DB, bucketKey string) int {
	var lastNo int
	err := db.Get(&lastNo, "SELECT last_no FROM sequence_cache WHERE bucket_key = ?", bucketKey)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("WARN: [Sequence] read failed for '%s', treating as 0: %v", bucketKey, err)
		}
		return 0
	}
	return lastNo
}

// SaveLocalSequence records the sequence just issued for a bucket.
func SaveLocalSequence(db *sqlx.DB, bucketKey string, value int) error {
	_, err := db.Exec(`INSERT INTO sequence_cache (bucket_key, last_no) VALUES (?, ?)
		ON CONFLICT(bucket_key) DO UPDATE SET last_no = excluded.last_no`, bucketKey, value)
	if err != nil {
		return fmt.Errorf("failed to save sequence '%s': %w", bucketKey, err)
	}
	return nil
}

// DecrementSequenceIfMatches decrements a bucket's counter only when its
// current value equals expected. Deleting a non-max record must not
// decrement: that would advertise a free slot the server never confirmed
// and collide with the server-side gap-reuse bookkeeping.
func DecrementSequenceIfMatches(db *sqlx.DB, bucketKey string, expected int) error {
	res, err := db.Exec(`UPDATE sequence_cache SET last_no = last_no - 1
		WHERE bucket_key = ? AND last_no = ? AND last_no > 0`, bucketKey, expected)
	if err != nil {
		return fmt.Errorf("failed to decrement sequence '%s': %w", bucketKey, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("INFO: [Sequence] '%s' decremented from %d (deleted record held the max)", bucketKey, expected)
	}
	return nil
}

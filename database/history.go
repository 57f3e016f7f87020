package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"rodlot/model"
)

// InsertHistory appends an issued record. Failure here is a hard failure
// of the save operation: unlike the sequence counters, a lost history
// row cannot be recovered from the server.
func InsertHistory(db *sqlx.DB, rec *model.BatchRecord) error {
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := db.NamedExec(`INSERT INTO batch_history
		(unique_id, local_id, batch_code, grade, heat_no, bundle_no, weight_kg, sae_spec, prod_date, operator, created_at)
		VALUES (:unique_id, :local_id, :batch_code, :grade, :heat_no, :bundle_no, :weight_kg, :sae_spec, :prod_date, :operator, :created_at)`,
		rec)
	if err != nil {
		return fmt.Errorf("failed to insert history record %s: %w", rec.BatchCode, err)
	}
	return nil
}

// ListHistory returns the local history, newest first.
func ListHistory(db *sqlx.DB) ([]model.BatchRecord, error) {
	var records []model.BatchRecord
	err := db.Select(&records, `SELECT * FROM batch_history ORDER BY local_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// GetHistoryByID looks a record up by its uniqueId, falling back to the
// numeric localId for rows created before uuids were introduced.
func GetHistoryByID(db *sqlx.DB, id string) (*model.BatchRecord, error) {
	var rec model.BatchRecord
	err := db.Get(&rec, `SELECT * FROM batch_history WHERE unique_id = ?`, id)
	if err == nil {
		return &rec, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get history record '%s': %w", id, err)
	}
	localID, convErr := strconv.ParseInt(id, 10, 64)
	if convErr != nil {
		return nil, nil
	}
	err = db.Get(&rec, `SELECT * FROM batch_history WHERE local_id = ?`, localID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history record by local id %d: %w", localID, err)
	}
	return &rec, nil
}

// DeleteHistory removes a record by uniqueId.
func DeleteHistory(db *sqlx.DB, uniqueID string) error {
	_, err := db.Exec(`DELETE FROM batch_history WHERE unique_id = ?`, uniqueID)
	if err != nil {
		return fmt.Errorf("failed to delete history record '%s': %w", uniqueID, err)
	}
	return nil
}

// UpdateHistoryFields updates the descriptive fields of a record. The
// batch code, grade and date are immutable once issued.
func UpdateHistoryFields(db *sqlx.DB, rec *model.BatchRecord) error {
	_, err := db.NamedExec(`UPDATE batch_history SET
		heat_no = :heat_no, bundle_no = :bundle_no, weight_kg = :weight_kg,
		sae_spec = :sae_spec, operator = :operator
		WHERE unique_id = :unique_id`, rec)
	if err != nil {
		return fmt.Errorf("failed to update history record '%s': %w", rec.UniqueID, err)
	}
	return nil
}

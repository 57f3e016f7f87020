// Package history serves the local issued-batch log and the remote
// global view. Deleting a record is two-phase: a best-effort remote
// delete rides the background queue while the local decrement-if-max
// rule and the row removal run synchronously.
package history

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"rodlot/batchcode"
	"rodlot/database"
	"rodlot/grade"
	"rodlot/prefetch"
	"rodlot/sheet"
	"rodlot/syncer"
)

type Deps struct {
	DB       *sqlx.DB
	Sheet    *sheet.Client
	Prefetch *prefetch.Prefetcher
	Queue    *syncer.Queue
}

// ListHandler returns the local history, newest first.
func ListHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := database.ListHistory(d.DB)
		if err != nil {
			log.Printf("ERROR: [History] list failed: %v", err)
			http.Error(w, "Failed to load history", http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
	}
}

// DeleteHandler removes an issued record by uniqueId (or legacy numeric
// localId). The local counter is decremented only when the deleted code
// held the bucket's current max; deleting an older record leaves the
// counter alone — gap reuse is the server's call, not ours.
func DeleteHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		rec, err := database.GetHistoryByID(d.DB, id)
		if err != nil {
			log.Printf("ERROR: [History] lookup failed for '%s': %v", id, err)
			http.Error(w, "Failed to look up record", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.NotFound(w, r)
			return
		}

		batch, gradeVal := rec.BatchCode, rec.Grade
		d.Queue.Enqueue("sheet delete "+batch, func(ctx context.Context) error {
			return d.Sheet.Delete(ctx, batch, gradeVal)
		})

		applyDecrementIfMax(d.DB, rec.BatchCode, rec.Grade, rec.Date)

		if err := database.DeleteHistory(d.DB, rec.UniqueID); err != nil {
			log.Printf("ERROR: [History] local delete failed for %s: %v", rec.BatchCode, err)
			http.Error(w, "Failed to delete record", http.StatusInternalServerError)
			return
		}

		// The bucket's max may have moved; any parked hint is stale now.
		d.Prefetch.Invalidate()

		log.Printf("INFO: [History] deleted %s", rec.BatchCode)
		writeJSON(w, map[string]bool{"deleted": true})
	}
}

type updatePayload struct {
	ID       string `json:"id"`
	SAE      string `json:"sae"`
	HeatNo   string `json:"heat"`
	BundleNo string `json:"bundle"`
	Weight   string `json:"weight"`
	Operator string `json:"operator"`
}

// UpdateHandler edits the descriptive fields of an issued record. The
// batch code, grade and date are immutable: changing them after issuance
// would desynchronize the code from its bucket.
func UpdateHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		rec, err := database.GetHistoryByID(d.DB, payload.ID)
		if err != nil {
			log.Printf("ERROR: [History] lookup failed for '%s': %v", payload.ID, err)
			http.Error(w, "Failed to look up record", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.NotFound(w, r)
			return
		}

		rec.SaeSpec = payload.SAE
		rec.HeatNumber = payload.HeatNo
		rec.BundleNo = payload.BundleNo
		rec.WeightKg = payload.Weight
		rec.Operator = payload.Operator

		if err := database.UpdateHistoryFields(d.DB, rec); err != nil {
			log.Printf("ERROR: [History] local update failed for %s: %v", rec.BatchCode, err)
			http.Error(w, "Failed to update record", http.StatusInternalServerError)
			return
		}

		remoteOK := true
		err = d.Sheet.UpdateRow(r.Context(), rec.BatchCode, map[string]string{
			"SAE":      rec.SaeSpec,
			"HeatNo":   rec.HeatNumber,
			"BundleNo": rec.BundleNo,
			"Weight":   rec.WeightKg,
			"Operator": rec.Operator,
		})
		if err != nil {
			remoteOK = false
			log.Printf("WARN: [History] remote update failed for %s: %v", rec.BatchCode, err)
		}

		writeJSON(w, map[string]interface{}{"success": true, "remote": remoteOK})
	}
}

// PageHandler serves the remote-backed global view.
func PageHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		if page < 1 {
			page = 1
		}
		if pageSize < 1 || pageSize > 500 {
			pageSize = 100
		}

		result, err := d.Sheet.Page(r.Context(), page, pageSize)
		if err != nil {
			log.Printf("ERROR: [History] global view fetch failed: %v", err)
			http.Error(w, "Failed to load global view", http.StatusBadGateway)
			return
		}
		writeJSON(w, result)
	}
}

// applyDecrementIfMax parses the sequence out of the deleted code and
// decrements the bucket counter when it was the stored max. Errors here
// are logged only; a skewed counter self-heals on the next online
// allocation.
func applyDecrementIfMax(db *sqlx.DB, batchCode, gradeVal, dateStr string) {
	_, seq, err := batchcode.Split(batchCode)
	if err != nil {
		log.Printf("WARN: [History] cannot adjust counter: %v", err)
		return
	}
	normGrade, err := grade.Normalize(gradeVal)
	if err != nil {
		log.Printf("WARN: [History] cannot adjust counter for %s: %v", batchCode, err)
		return
	}
	prefix, err := batchcode.DatePrefix(dateStr)
	if err != nil {
		log.Printf("WARN: [History] cannot adjust counter for %s: %v", batchCode, err)
		return
	}
	key := batchcode.StorageKey(prefix, normGrade)
	if err := database.DecrementSequenceIfMatches(db, key, seq); err != nil {
		log.Printf("WARN: [History] counter adjust failed for %s: %v", key, err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: [History] failed to encode response: %v", err)
	}
}

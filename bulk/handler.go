// Package bulk assigns batch codes to whole sheet exports in one run,
// for reprinting label sets. Rows that already carry a Batch keep it;
// the rest get codes from a per-grade sequence run seeded by one real
// allocation. Nothing here is persisted: the output is row data for the
// label front-end.
package bulk

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"rodlot/allocator"
	"rodlot/batchcode"
	"rodlot/database"
	"rodlot/grade"
	"rodlot/model"
	"rodlot/sheet"
)

type Deps struct {
	DB    *sqlx.DB
	Sheet *sheet.Client
}

type seqStore struct{ db *sqlx.DB }

func (s seqStore) GetLocalSequence(bucketKey string) int {
	return database.GetLocalSequence(s.db, bucketKey)
}

type generatePayload struct {
	ExternalURL  string `json:"externalUrl"`
	Grade        string `json:"grade"` // optional filter
	AllowOffline bool   `json:"allowOffline"`
}

// gradeRun is one grade's running sequence during a bulk pass.
type gradeRun struct {
	next   int
	prefix string
}

// GenerateHandler fetches the bulk dataset, normalizes its columns and
// returns every row with a batch code and SKU attached.
func GenerateHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload generatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		var (
			raw []map[string]interface{}
			err error
		)
		if payload.ExternalURL != "" {
			raw, err = d.Sheet.ExternalBulkData(r.Context(), payload.ExternalURL)
		} else {
			raw, err = d.Sheet.BulkData(r.Context())
		}
		if err != nil {
			log.Printf("ERROR: [Bulk] fetch failed: %v", err)
			http.Error(w, "Failed to fetch bulk data", http.StatusBadGateway)
			return
		}

		var filter string
		if payload.Grade != "" {
			filter, err = grade.Normalize(payload.Grade)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		today := time.Now().Format("2006-01-02")
		runs := map[string]*gradeRun{}
		var out []model.SheetRow

		for _, item := range raw {
			row := sheet.NormalizeRow(item)

			normGrade, gErr := grade.Normalize(row.Grade)
			if gErr != nil {
				normGrade = "0.00"
			}
			if filter != "" && normGrade != filter {
				continue
			}
			row.Grade = normGrade
			if row.SAE == "" {
				row.SAE = "SAE 1010"
			}

			if row.Batch == "" || row.Batch == "N/A" {
				run, ok := runs[normGrade]
				if !ok {
					res, aErr := allocator.Allocate(r.Context(), d.Sheet, seqStore{d.DB}, allocator.Request{
						Grade:        normGrade,
						Date:         today,
						AllowOffline: payload.AllowOffline,
					})
					if aErr != nil {
						writeAllocError(w, aErr)
						return
					}
					run = &gradeRun{next: res.Seq, prefix: res.Prefix}
					runs[normGrade] = run
					log.Printf("INFO: [Bulk] grade %s starts at %s", normGrade, res.Code)
				} else {
					run.next++
				}
				if run.next > batchcode.MaxSeq {
					// One full bucket aborts the whole run; a silent wrap
					// would print duplicate codes.
					writeAllocError(w, allocator.ErrSequenceOverflow)
					return
				}
				row.Batch = batchcode.Format(run.prefix, run.next)
			}

			row.Sku = grade.SKU(normGrade)
			out = append(out, row)
		}

		if len(out) == 0 {
			http.Error(w, "No rows matched", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]interface{}{
			"rows":  out,
			"count": len(out),
		}); err != nil {
			log.Printf("ERROR: [Bulk] failed to encode response: %v", err)
		}
	}
}

func writeAllocError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	body := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, allocator.ErrSequenceOverflow):
		status = http.StatusConflict
		body["overflow"] = true
	case errors.Is(err, allocator.ErrOfflineRisk):
		status = http.StatusConflict
		body["offlineRisk"] = true
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

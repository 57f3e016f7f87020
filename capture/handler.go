// Package capture serves the label capture flow: prefetch on selection
// change, allocate-and-save on commit. Both the manual entry form and
// the scanner confirm screen post to the same save endpoint; the
// allocator behind it is the single implementation for every flow.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"rodlot/allocator"
	"rodlot/batchcode"
	"rodlot/database"
	"rodlot/grade"
	"rodlot/model"
	"rodlot/prefetch"
	"rodlot/sheet"
	"rodlot/syncer"
)

// Deps bundles what the capture handlers need. allocMu serializes
// allocations per process: one allocation runs to completion before the
// next may start, so two in-flight saves can never read the same hint.
type Deps struct {
	DB       *sqlx.DB
	Sheet    *sheet.Client
	Prefetch *prefetch.Prefetcher
	Queue    *syncer.Queue

	allocMu sync.Mutex
}

// seqStore adapts the sqlite counter table to the allocator interface.
type seqStore struct{ db *sqlx.DB }

func (s seqStore) GetLocalSequence(bucketKey string) int {
	return database.GetLocalSequence(s.db, bucketKey)
}

type savePayload struct {
	SAE          string `json:"sae"`
	Grade        string `json:"grade"`
	HeatNo       string `json:"heat"`
	BundleNo     string `json:"bundle"`
	Weight       string `json:"weight"`
	Date         string `json:"date"` // YYYY-MM-DD, defaults to today
	Operator     string `json:"operator"`
	AllowOffline bool   `json:"allowOffline"`
}

type saveResponse struct {
	Batch    string `json:"batch"`
	Grade    string `json:"grade"`
	Date     string `json:"date"`
	Offline  bool   `json:"offline"`
	Rollover bool   `json:"rollover"`
}

// SaveHandler runs the full save flow: allocate, write local history,
// persist the counter, then hand the remote append to the background
// queue. The allocation itself is awaited; everything after the local
// write is fire-and-forget.
func SaveHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload savePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if payload.SAE == "" || payload.HeatNo == "" || payload.Weight == "" {
			http.Error(w, "SAE, heat and weight are required", http.StatusBadRequest)
			return
		}
		if payload.Date == "" {
			payload.Date = time.Now().Format("2006-01-02")
		}

		normGrade, err := grade.Normalize(payload.Grade)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		localPrefix, err := batchcode.DatePrefix(payload.Date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		d.allocMu.Lock()
		defer d.allocMu.Unlock()

		hint := d.Prefetch.Take(normGrade, localPrefix)
		res, err := allocator.Allocate(r.Context(), d.Sheet, seqStore{d.DB}, allocator.Request{
			Grade:        normGrade,
			Date:         payload.Date,
			AllowOffline: payload.AllowOffline,
			Hint:         hint,
		})
		if err != nil {
			writeAllocError(w, err)
			return
		}

		rec := &model.BatchRecord{
			UniqueID:   uuid.NewString(),
			LocalID:    time.Now().UnixMilli(),
			BatchCode:  res.Code,
			Grade:      res.Grade,
			HeatNumber: payload.HeatNo,
			BundleNo:   payload.BundleNo,
			WeightKg:   payload.Weight,
			SaeSpec:    payload.SAE,
			Date:       res.Date,
			Operator:   payload.Operator,
		}

		// Local history is the baseline guarantee. If this fails the
		// save failed; nothing is enqueued and the counter is untouched.
		if err := database.InsertHistory(d.DB, rec); err != nil {
			log.Printf("ERROR: [Capture] history write failed for %s: %v", res.Code, err)
			http.Error(w, "Failed to save record locally", http.StatusInternalServerError)
			return
		}

		if err := database.SaveLocalSequence(d.DB, res.StorageKey, res.Seq); err != nil {
			log.Printf("WARN: [Capture] counter persist failed for %s: %v", res.StorageKey, err)
		}

		rememberSAE(d, res.Grade, payload.SAE)

		recCopy := *rec
		d.Queue.Enqueue("sheet append "+rec.BatchCode, func(ctx context.Context) error {
			return d.Sheet.Append(ctx, &recCopy)
		})
		warmGrade, warmPrefix := res.Grade, res.Prefix
		d.Queue.Enqueue("prefetch rewarm "+warmPrefix+"_"+warmGrade, func(ctx context.Context) error {
			d.Prefetch.Warm(ctx, warmGrade, warmPrefix)
			return nil
		})

		log.Printf("INFO: [Capture] issued %s (offline=%v rollover=%v)", res.Code, res.Offline, res.Rollover)
		writeJSON(w, saveResponse{
			Batch:    res.Code,
			Grade:    res.Grade,
			Date:     res.Date,
			Offline:  res.Offline,
			Rollover: res.Rollover,
		})
	}
}

// PrefetchHandler warms the sequence hint for the current selection.
// Fired by the UI on every grade or date change; the warm itself runs on
// the background queue so the UI never waits on it.
func PrefetchHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Grade string `json:"grade"`
			Date  string `json:"date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if payload.Date == "" {
			payload.Date = time.Now().Format("2006-01-02")
		}
		normGrade, err := grade.Normalize(payload.Grade)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prefix, err := batchcode.DatePrefix(payload.Date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		d.Queue.Enqueue("prefetch warm "+prefix+"_"+normGrade, func(ctx context.Context) error {
			d.Prefetch.Warm(ctx, normGrade, prefix)
			return nil
		})
		w.WriteHeader(http.StatusAccepted)
	}
}

// LastBatchHandler returns the most recent batch issued for a grade as a
// display string. Best-effort; an unreachable server yields an empty
// body, never an error.
func LastBatchHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		normGrade, err := grade.Normalize(r.URL.Query().Get("grade"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		last := d.Prefetch.LastBatch(r.Context(), normGrade)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(last))
	}
}

// SAEHandler returns the SAE spec last used for a grade, so the form can
// pre-fill it. Local map first, shared config sheet as fallback.
func SAEHandler(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		normGrade, err := grade.Normalize(r.URL.Query().Get("grade"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		saeMap := database.GetKVMap(d.DB, database.SAEMapKey)
		sae, ok := saeMap[normGrade]
		if !ok {
			if remote, err := d.Sheet.SAEConfig(r.Context()); err == nil {
				sae = remote[normGrade]
			}
		}
		writeJSON(w, map[string]string{"grade": normGrade, "sae": sae})
	}
}

// GradesHandler returns the selectable grade lineup with SKUs.
func GradesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type entry struct {
			Grade string `json:"grade"`
			Sku   string `json:"sku"`
		}
		var out []entry
		for _, g := range grade.Known() {
			out = append(out, entry{Grade: g, Sku: grade.SKU(g)})
		}
		writeJSON(w, out)
	}
}

func rememberSAE(d *Deps, normGrade, sae string) {
	saeMap := database.GetKVMap(d.DB, database.SAEMapKey)
	if saeMap[normGrade] == sae {
		return
	}
	saeMap[normGrade] = sae
	if err := database.SetKVMap(d.DB, database.SAEMapKey, saeMap); err != nil {
		log.Printf("WARN: [Capture] failed to persist SAE map: %v", err)
	}
	d.Queue.Enqueue("sheet SAE config "+normGrade, func(ctx context.Context) error {
		return d.Sheet.SaveSAEConfig(ctx, normGrade, sae)
	})
}

func writeAllocError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocator.ErrOfflineRisk):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"offlineRisk": true,
			"error":       "Server unreachable. Retry with allowOffline to accept the duplicate risk.",
		})
	case errors.Is(err, allocator.ErrSequenceOverflow):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"overflow": true,
			"error":    "Sequence reached 999. Change the date or grade to continue.",
		})
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: [Capture] failed to encode response: %v", err)
	}
}

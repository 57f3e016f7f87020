package history

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rodlot/database"
	"rodlot/model"
	"rodlot/prefetch"
	"rodlot/sheet"
	"rodlot/syncer"
)

type fakeSheet struct {
	mu      sync.Mutex
	deletes []map[string]string
	updates []map[string]string
	srv     *httptest.Server
}

func newFakeSheet() *fakeSheet {
	f := &fakeSheet{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]interface{}{"maxSeq": 0})
			return
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		f.mu.Lock()
		switch {
		case payload["action"] == "delete":
			f.deletes = append(f.deletes, payload)
		case r.URL.Query().Get("action") == "updateRow":
			f.updates = append(f.updates, payload)
		}
		f.mu.Unlock()
		if r.URL.Query().Get("action") == "updateRow" {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
			return
		}
		w.Write([]byte("Success"))
	}))
	return f
}

func newTestDeps(t *testing.T, url string) *Deps {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.InitDatabase(db))

	client := sheet.NewClient(func() string { return url }, 2*time.Second)
	return &Deps{
		DB:       db,
		Sheet:    client,
		Prefetch: prefetch.New(client),
		Queue:    syncer.New(16, 2*time.Second),
	}
}

func seedRecord(t *testing.T, db *sqlx.DB, uid string, localID int64, code, gradeVal, date string) {
	t.Helper()
	require.NoError(t, database.InsertHistory(db, &model.BatchRecord{
		UniqueID:  uid,
		LocalID:   localID,
		BatchCode: code,
		Grade:     gradeVal,
		Date:      date,
		WeightKg:  "2068",
		SaeSpec:   "SAE1006",
	}))
}

func doDelete(t *testing.T, d *Deps, id string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/api/history/{id}", DeleteHandler(d)).Methods("DELETE")
	req := httptest.NewRequest(http.MethodDelete, "/api/history/"+id, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDeleteDecrementsWhenMax(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)

	seedRecord(t, d.DB, "uid-8", 100, "250315I008", "7.00", "2025-03-15")
	require.NoError(t, database.SaveLocalSequence(d.DB, "250315_7.00", 8))

	rec := doDelete(t, d, "uid-8")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The deleted record held the bucket max: counter steps back.
	assert.Equal(t, 7, database.GetLocalSequence(d.DB, "250315_7.00"))

	records, err := database.ListHistory(d.DB)
	require.NoError(t, err)
	assert.Empty(t, records)

	// Best-effort remote delete carried batch and grade.
	d.Queue.Close()
	fake.mu.Lock()
	require.Len(t, fake.deletes, 1)
	assert.Equal(t, "250315I008", fake.deletes[0]["Batch"])
	assert.Equal(t, "7.00", fake.deletes[0]["Grade"])
	fake.mu.Unlock()
}

func TestDeleteNonMaxLeavesCounter(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)
	defer d.Queue.Close()

	seedRecord(t, d.DB, "uid-5", 100, "250315I005", "7.00", "2025-03-15")
	require.NoError(t, database.SaveLocalSequence(d.DB, "250315_7.00", 8))

	rec := doDelete(t, d, "uid-5")
	require.Equal(t, http.StatusOK, rec.Code)

	// Sequence 5 was not the max: decrementing would fake a free slot.
	assert.Equal(t, 8, database.GetLocalSequence(d.DB, "250315_7.00"))
}

func TestDeleteByLocalID(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)
	defer d.Queue.Close()

	seedRecord(t, d.DB, "uid-1", 1750000000000, "250315I001", "7.00", "2025-03-15")

	rec := doDelete(t, d, "1750000000000")
	require.Equal(t, http.StatusOK, rec.Code)

	records, err := database.ListHistory(d.DB)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDeleteUnknown(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)
	defer d.Queue.Close()

	rec := doDelete(t, d, "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteInvalidatesPrefetch(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)
	defer d.Queue.Close()

	seedRecord(t, d.DB, "uid-1", 100, "250315I001", "7.00", "2025-03-15")
	d.Prefetch.Warm(context.Background(), "7.00", "250315")

	rec := doDelete(t, d, "uid-1")
	require.Equal(t, http.StatusOK, rec.Code)

	// The bucket max may have moved; the parked hint must not survive.
	assert.Nil(t, d.Prefetch.Take("7.00", "250315"))
}

func TestUpdateDescriptiveFieldsOnly(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)
	defer d.Queue.Close()

	seedRecord(t, d.DB, "uid-1", 100, "250315I001", "7.00", "2025-03-15")

	payload, _ := json.Marshal(map[string]string{
		"id":     "uid-1",
		"sae":    "SAE1008",
		"heat":   "252102000",
		"bundle": "40",
		"weight": "2100",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/history/update", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	UpdateHandler(d)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["remote"])

	got, err := database.GetHistoryByID(d.DB, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "2100", got.WeightKg)
	assert.Equal(t, "SAE1008", got.SaeSpec)
	// Identity never regenerates on edit.
	assert.Equal(t, "250315I001", got.BatchCode)
	assert.Equal(t, "7.00", got.Grade)
	assert.Equal(t, "2025-03-15", got.Date)

	fake.mu.Lock()
	require.Len(t, fake.updates, 1)
	assert.Equal(t, "250315I001", fake.updates[0]["Batch"])
	fake.mu.Unlock()
}

func TestListHandler(t *testing.T) {
	fake := newFakeSheet()
	defer fake.srv.Close()
	d := newTestDeps(t, fake.srv.URL)
	defer d.Queue.Close()

	seedRecord(t, d.DB, "uid-1", 100, "250315I001", "7.00", "2025-03-15")
	seedRecord(t, d.DB, "uid-2", 200, "250315I002", "7.00", "2025-03-15")

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	ListHandler(d)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []model.BatchRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "250315I002", records[0].BatchCode)
}

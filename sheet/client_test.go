package sheet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(func() string { return url }, 2*time.Second)
}

func TestNextSequence(t *testing.T) {
	var gotGrade, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGrade = r.URL.Query().Get("grade")
		gotDate = r.URL.Query().Get("date")
		assert.NotEmpty(t, r.URL.Query().Get("_t"), "cache buster missing")
		json.NewEncoder(w).Encode(map[string]interface{}{"maxSeq": 12})
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL).NextSequence(context.Background(), "7.00", "250601")
	require.NoError(t, err)
	assert.Equal(t, 12, data.MaxSeq)
	assert.Empty(t, data.EffectiveDate)
	assert.Equal(t, "7.00", gotGrade)
	assert.Equal(t, "250601", gotDate)
}

func TestNextSequenceEffectiveDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"maxSeq": 1, "effectiveDate": "250316"})
	}))
	defer srv.Close()

	data, err := newTestClient(srv.URL).NextSequence(context.Background(), "7.00", "250315")
	require.NoError(t, err)
	assert.Equal(t, "250316", data.EffectiveDate)
}

func TestNextSequenceMalformedJSON(t *testing.T) {
	// The script sometimes returns an HTML error page; that must read as
	// a failure, same as no network at all.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>Temporarily unavailable</html>")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).NextSequence(context.Background(), "7.00", "250315")
	assert.Error(t, err)
}

func TestNextSequenceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).NextSequence(context.Background(), "7.00", "250315")
	assert.Error(t, err)
}

func TestNotConfigured(t *testing.T) {
	c := newTestClient("")
	_, err := c.NextSequence(context.Background(), "7.00", "250315")
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = c.Delete(context.Background(), "250315I001", "7.00")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDeletePayload(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		io.WriteString(w, "Deleted")
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Delete(context.Background(), "250315I003", "7.00")
	require.NoError(t, err)
	assert.Equal(t, "delete", payload["action"])
	assert.Equal(t, "250315I003", payload["Batch"])
	// Grade rides along so the same batch id under another grade is safe.
	assert.Equal(t, "7.00", payload["Grade"])
}

func TestUpdateRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updateRow", r.URL.Query().Get("action"))
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		assert.Equal(t, "250315I003", payload["Batch"])
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).UpdateRow(context.Background(), "250315I003", map[string]string{"Weight": "2100"})
	assert.NoError(t, err)
}

func TestUpdateRowServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "row not found"})
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).UpdateRow(context.Background(), "250315I003", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row not found")
}

func TestPageNormalizesSpanishColumns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "getPaginatedData", r.URL.Query().Get("action"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"totalCount": 1,
			"data": []map[string]interface{}{{
				"Lote":   "250315I001",
				"Grado":  "7.00",
				"Colada": "252101992",
				"Rollo":  "37",
				"Peso":   2068,
				"Fecha":  "2025-03-15",
			}},
		})
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Page(context.Background(), 1, 100)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, "250315I001", row.Batch)
	assert.Equal(t, "7.00", row.Grade)
	assert.Equal(t, "252101992", row.HeatNo)
	assert.Equal(t, "37", row.BundleNo)
	assert.Equal(t, "2068", row.Weight)
	assert.Equal(t, "2025-03-15", row.Date)
	assert.Equal(t, 1, result.TotalCount)
}

func TestPageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "sheet missing"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Page(context.Background(), 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet missing")
}

func TestLastBatchBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "250315I007")
	}))
	last := newTestClient(srv.URL).LastBatch(context.Background(), "7.00")
	assert.Equal(t, "250315I007", last)
	srv.Close()

	// Dead server yields empty, never an error.
	last = newTestClient(srv.URL).LastBatch(context.Background(), "7.00")
	assert.Empty(t, last)

	assert.Empty(t, newTestClient("").LastBatch(context.Background(), "7.00"))
}

func TestBulkDataArrayAndError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{{"Grade": "7.00"}})
	}))
	rows, err := newTestClient(srv.URL).BulkData(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	srv.Close()

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "denied"})
	}))
	defer srv2.Close()
	_, err = newTestClient(srv2.URL).BulkData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestNormalizeRowDefaults(t *testing.T) {
	row := NormalizeRow(map[string]interface{}{"Unrelated": "x"})
	assert.Equal(t, "N/A", row.Batch)
	assert.Empty(t, row.Grade)
}

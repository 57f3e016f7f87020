package settings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rodlot/config"
	"rodlot/sheet"
)

func TestGetAndSave(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := config.LoadConfig()
	require.NoError(t, err)

	payload, _ := json.Marshal(config.Config{
		SheetScriptURL:  "https://script.example.com/exec",
		DefaultOperator: "mperez",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	SaveHandler()(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rec = httptest.NewRecorder()
	GetHandler()(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.Config
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "https://script.example.com/exec", got.SheetScriptURL)
	assert.Equal(t, "mperez", got.DefaultOperator)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"totalCount": 0, "data": []interface{}{}})
	}))
	client := sheet.NewClient(func() string { return srv.URL }, 2*time.Second)

	req := httptest.NewRequest(http.MethodGet, "/api/settings/ping", nil)
	rec := httptest.NewRecorder()
	PingHandler(client)(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["reachable"])
	srv.Close()

	rec = httptest.NewRecorder()
	PingHandler(client)(rec, httptest.NewRequest(http.MethodGet, "/api/settings/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["reachable"])
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

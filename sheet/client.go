// Package sheet talks to the Google Apps Script web app backing the
// production spreadsheet. The script is the single source of truth for
// "max sequence used so far" per (date, grade); everything local is
// advisory. All calls run under a bounded timeout, and a malformed
// response is treated exactly like a network failure.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"rodlot/model"
)

// ErrNotConfigured is returned when no script URL has been set yet.
var ErrNotConfigured = errors.New("sheet script URL not configured")

type Client struct {
	scriptURL func() string
	http      *http.Client
}

// NewClient builds a sheet client. scriptURL is read per-call so config
// changes apply without restarting.
func NewClient(scriptURL func() string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		scriptURL: scriptURL,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) base() (string, error) {
	u := c.scriptURL()
	if u == "" {
		return "", ErrNotConfigured
	}
	return u, nil
}

// NextSequence asks the script for the bucket's current max sequence.
// The _t parameter busts the script.google.com response cache.
func (c *Client) NextSequence(ctx context.Context, grade, yymmdd string) (*model.SeqData, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("grade", grade)
	q.Set("date", yymmdd)
	q.Set("_t", strconv.FormatInt(time.Now().UnixMilli(), 10))

	body, err := c.get(ctx, base+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var data model.SeqData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("sequence response is not valid JSON: %w", err)
	}
	return &data, nil
}

// Append posts a finalized record to the sheet.
func (c *Client) Append(ctx context.Context, rec *model.BatchRecord) error {
	payload := map[string]string{
		"SAE":      rec.SaeSpec,
		"Grade":    rec.Grade,
		"HeatNo":   rec.HeatNumber,
		"Batch":    rec.BatchCode,
		"BundleNo": rec.BundleNo,
		"Weight":   rec.WeightKg,
		"Date":     rec.Date,
		"Operator": rec.Operator,
	}
	_, err := c.post(ctx, "", payload)
	return err
}

// Delete asks the script to remove a batch row. Grade is sent alongside
// the batch id so a matching id under another grade is never touched.
func (c *Client) Delete(ctx context.Context, batchCode, grade string) error {
	payload := map[string]string{
		"action": "delete",
		"Batch":  batchCode,
		"Grade":  grade,
	}
	_, err := c.post(ctx, "", payload)
	return err
}

// UpdateRow updates descriptive fields of an existing row, keyed by the
// batch code.
func (c *Client) UpdateRow(ctx context.Context, batchCode string, fields map[string]string) error {
	payload := map[string]string{"Batch": batchCode}
	for k, v := range fields {
		payload[k] = v
	}

	body, err := c.post(ctx, "?action=updateRow", payload)
	if err != nil {
		return err
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("update response is not valid JSON: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("update rejected: %s", resp.Error)
	}
	if !resp.Success {
		return errors.New("update rejected by server")
	}
	return nil
}

// LastBatch fetches a display string describing the most recent batch
// issued for a grade. Read-only convenience for the operator; failures
// yield an empty string and never affect allocation.
func (c *Client) LastBatch(ctx context.Context, grade string) string {
	base, err := c.base()
	if err != nil {
		return ""
	}
	q := url.Values{}
	q.Set("action", "getLastBatch")
	q.Set("grade", grade)
	q.Set("_t", strconv.FormatInt(time.Now().UnixMilli(), 10))

	body, err := c.get(ctx, base+"?"+q.Encode())
	if err != nil {
		return ""
	}
	return string(body)
}

// Page fetches one page of the global sheet view.
func (c *Client) Page(ctx context.Context, page, pageSize int) (*model.PageResult, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("action", "getPaginatedData")
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	body, err := c.get(ctx, base+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Error      string                   `json:"error"`
		Data       []map[string]interface{} `json:"data"`
		TotalCount int                      `json:"totalCount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("page response is not valid JSON: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("server error: %s", resp.Error)
	}

	result := &model.PageResult{
		Rows:       make([]model.SheetRow, 0, len(resp.Data)),
		TotalCount: resp.TotalCount,
		Page:       page,
		PageSize:   pageSize,
	}
	for _, item := range resp.Data {
		result.Rows = append(result.Rows, NormalizeRow(item))
	}
	return result, nil
}

// BulkData fetches the full bulk-generation dataset.
func (c *Client) BulkData(ctx context.Context) ([]map[string]interface{}, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	return c.getRows(ctx, base+"?action=getBulkData")
}

// ExternalBulkData has the script proxy-fetch an external spreadsheet
// export and return its rows.
func (c *Client) ExternalBulkData(ctx context.Context, externalURL string) ([]map[string]interface{}, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("action", "getExternalBulkData")
	q.Set("url", externalURL)
	return c.getRows(ctx, base+"?"+q.Encode())
}

// SAEConfig fetches the shared grade→SAE map kept on the config sheet.
func (c *Client) SAEConfig(ctx context.Context) (map[string]string, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, base+"?action=getConfig")
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("config response is not valid JSON: %w", err)
	}
	return m, nil
}

// SaveSAEConfig writes one grade's SAE spec to the config sheet.
func (c *Client) SaveSAEConfig(ctx context.Context, grade, sae string) error {
	payload := map[string]string{
		"action": "setConfig",
		"sae":    sae,
		"grade":  grade,
	}
	_, err := c.post(ctx, "", payload)
	return err
}

func (c *Client) getRows(ctx context.Context, fullURL string) ([]map[string]interface{}, error) {
	body, err := c.get(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	// The script returns either a bare array or {error: "..."}.
	var rows []map[string]interface{}
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return nil, fmt.Errorf("server error: %s", errResp.Error)
	}
	return nil, fmt.Errorf("bulk response is not a row array")
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheet request failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, pathQuery string, payload interface{}) ([]byte, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+pathQuery, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheet request failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Column headers on the sheet drift between English and Spanish
// depending on who set the tab up, so rows are matched fuzzily.
var (
	batchKeyRe  = regexp.MustCompile(`(?i)(batch|lote)`)
	gradeKeyRe  = regexp.MustCompile(`(?i)(grade|grado)`)
	saeKeyRe    = regexp.MustCompile(`(?i)sae`)
	heatKeyRe   = regexp.MustCompile(`(?i)(heat|colada)`)
	bundleKeyRe = regexp.MustCompile(`(?i)(bundle|coil|rollo|paquete|bobina)`)
	weightKeyRe = regexp.MustCompile(`(?i)(weight|peso)`)
	dateKeyRe   = regexp.MustCompile(`(?i)(date|fecha)`)
)

// NormalizeRow maps a raw sheet row onto the canonical column set.
func NormalizeRow(item map[string]interface{}) model.SheetRow {
	find := func(re *regexp.Regexp) string {
		for k, v := range item {
			if re.MatchString(k) {
				return stringify(v)
			}
		}
		return ""
	}
	row := model.SheetRow{
		Batch:    find(batchKeyRe),
		Grade:    find(gradeKeyRe),
		SAE:      find(saeKeyRe),
		HeatNo:   find(heatKeyRe),
		BundleNo: find(bundleKeyRe),
		Weight:   find(weightKeyRe),
		Date:     find(dateKeyRe),
	}
	if row.Batch == "" {
		row.Batch = "N/A"
	}
	return row
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

package model

// BatchRecord is one issued label. BatchCode and UniqueID are assigned at
// creation and never change; only the descriptive fields are editable.
type BatchRecord struct {
	UniqueID   string `db:"unique_id" json:"uniqueId"`
	LocalID    int64  `db:"local_id" json:"localId"`
	BatchCode  string `db:"batch_code" json:"batchCode"`
	Grade      string `db:"grade" json:"grade"`
	HeatNumber string `db:"heat_no" json:"heatNumber"`
	BundleNo   string `db:"bundle_no" json:"bundleNumber"`
	WeightKg   string `db:"weight_kg" json:"weightKg"`
	SaeSpec    string `db:"sae_spec" json:"saeSpec"`
	Date       string `db:"prod_date" json:"date"` // YYYY-MM-DD (logical production date)
	Operator   string `db:"operator" json:"operator"`
	CreatedAt  string `db:"created_at" json:"createdAt"`
}

// SeqData is what the sheet script reports for a (grade, date) bucket:
// the highest sequence used so far, and optionally the date prefix the
// server wants new codes filed under (rollover signal).
type SeqData struct {
	MaxSeq        int    `json:"maxSeq"`
	EffectiveDate string `json:"effectiveDate,omitempty"` // YYMMDD
}

// SheetRow is a normalized row of the remote sheet, as shown in the
// global view and consumed by bulk generation. Column headers on the
// sheet vary between English and Spanish, so rows are normalized before
// they reach this struct.
type SheetRow struct {
	Batch    string `json:"Batch"`
	Grade    string `json:"Grade"`
	SAE      string `json:"SAE"`
	HeatNo   string `json:"HeatNo"`
	BundleNo string `json:"BundleNo"`
	Weight   string `json:"Weight"`
	Date     string `json:"Date"`
	Sku      string `json:"Sku,omitempty"`
}

// PageResult is one page of the remote-backed global view.
type PageResult struct {
	Rows       []SheetRow `json:"data"`
	TotalCount int        `json:"totalCount"`
	Page       int        `json:"page"`
	PageSize   int        `json:"pageSize"`
}

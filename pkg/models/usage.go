package models

import "time"

// DateKey is the YYYYMMDD layout used by the TEPCO API and as the
// natural key of the daily usage table.
const DateKey = "20060102"

// UsageRecord represents one day's finalized electricity usage
type UsageRecord struct {
	ID                  int       `json:"id,omitempty"`
	UsageDate           string    `json:"usage_date"` // YYYYMMDD
	KwhUsed             float64   `json:"kwh_used"`
	ChargeYen           int       `json:"charge_yen"`
	CumulativeKwh       float64   `json:"cumulative_kwh"`
	CumulativeChargeYen int       `json:"cumulative_charge_yen"`
	BillingStatus       string    `json:"billing_status"`
	RateCategory        string    `json:"rate_category"`
	LastUpdated         time.Time `json:"last_updated"`
	CollectedAt         time.Time `json:"collected_at"`
	RawData             string    `json:"-"` // verbatim API response, kept for audit
}

// ValuesEqual reports whether the monitored billing values of two records
// match. Timestamps and the raw payload are excluded: re-collecting an
// unchanged date must be a no-op.
func (r *UsageRecord) ValuesEqual(other *UsageRecord) bool {
	return r.KwhUsed == other.KwhUsed &&
		r.ChargeYen == other.ChargeYen &&
		r.CumulativeKwh == other.CumulativeKwh &&
		r.CumulativeChargeYen == other.CumulativeChargeYen
}

// Credential is a bearer token captured during portal login
type Credential struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// DateResult reports the outcome of collecting a single date during a
// multi-date operation
type DateResult struct {
	Date    string `json:"date"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MonthlyAggregate summarizes one calendar month of stored usage
type MonthlyAggregate struct {
	YearMonth   string  `json:"year_month"` // YYYYMM
	TotalKwh    float64 `json:"total_kwh"`
	TotalCharge int     `json:"total_charge"`
	Days        int     `json:"days"`
	AverageKwh  float64 `json:"average_kwh"`
}

// FormatDate renders a time as a YYYYMMDD date key
func FormatDate(t time.Time) string {
	return t.Format(DateKey)
}

// ParseDate parses a YYYYMMDD date key
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateKey, s)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorita/denkiwatch/pkg/models"
)

// Mock implementations

type mockStore struct {
	records   map[string]*models.UsageRecord
	aggregate *models.MonthlyAggregate
	err       error
}

func (m *mockStore) GetUsage(usageDate string) (*models.UsageRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records[usageDate], nil
}

func (m *mockStore) GetUsageRange(fromDate, toDate string) ([]models.UsageRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.UsageRecord
	for date, rec := range m.records {
		if date >= fromDate && date <= toDate {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockStore) MonthlyAggregate(yearMonth string) (*models.MonthlyAggregate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.aggregate, nil
}

type mockTokens struct {
	token string
	err   error
}

func (m *mockTokens) Token(ctx context.Context) (string, error) {
	return m.token, m.err
}

type mockBackfiller struct {
	gotToken string
	gotDates []string
	err      error
}

func (m *mockBackfiller) Backfill(ctx context.Context, token string, dates []string) ([]models.DateResult, error) {
	m.gotToken = token
	m.gotDates = dates
	if m.err != nil {
		return nil, m.err
	}
	results := make([]models.DateResult, len(dates))
	for i, d := range dates {
		results[i] = models.DateResult{Date: d, Success: true}
	}
	return results, nil
}

func newTestRouter(store *mockStore, tokens *mockTokens, backfiller *mockBackfiller, apiKey string) http.Handler {
	h := NewHandler(store, tokens, backfiller, nil)
	return NewRouter(RouterConfig{Handler: h, APIKey: apiKey})
}

func testRecord(date string) *models.UsageRecord {
	now := time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC)
	return &models.UsageRecord{
		UsageDate:           date,
		KwhUsed:             12.5,
		ChargeYen:           340,
		CumulativeKwh:       1000.5,
		CumulativeChargeYen: 27000,
		BillingStatus:       "FINAL",
		RateCategory:        "A",
		LastUpdated:         now,
		CollectedAt:         now,
	}
}

func TestGetDaily(t *testing.T) {
	store := &mockStore{records: map[string]*models.UsageRecord{"20240115": testRecord("20240115")}}
	router := newTestRouter(store, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/20240115", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var rec models.UsageRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "20240115", rec.UsageDate)
	assert.Equal(t, 12.5, rec.KwhUsed)
	assert.Equal(t, 340, rec.ChargeYen)
}

func TestGetDailyNotFound(t *testing.T) {
	router := newTestRouter(&mockStore{}, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/20240115", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDailyBadDate(t *testing.T) {
	router := newTestRouter(&mockStore{}, &mockTokens{}, &mockBackfiller{}, "")

	for _, date := range []string{"2024-01-15", "202401", "20241340"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/"+date, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "date %q", date)
	}
}

func TestGetDailyStoreError(t *testing.T) {
	store := &mockStore{err: errors.New("disk gone")}
	router := newTestRouter(store, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/20240115", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetDailyRange(t *testing.T) {
	store := &mockStore{records: map[string]*models.UsageRecord{
		"20240114": testRecord("20240114"),
		"20240115": testRecord("20240115"),
		"20240120": testRecord("20240120"),
	}}
	router := newTestRouter(store, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/range/20240114/20240116", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var records []models.UsageRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestGetDailyRangeEmpty(t *testing.T) {
	router := newTestRouter(&mockStore{}, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/range/20240114/20240116", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String(), "empty range is an empty array, not null")
}

func TestGetMonthly(t *testing.T) {
	store := &mockStore{aggregate: &models.MonthlyAggregate{
		YearMonth:   "202401",
		TotalKwh:    60.0,
		TotalCharge: 600,
		Days:        3,
		AverageKwh:  20.0,
	}}
	router := newTestRouter(store, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/monthly/202401", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var agg models.MonthlyAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agg))
	assert.Equal(t, "202401", agg.YearMonth)
	assert.Equal(t, 3, agg.Days)
}

func TestGetMonthlyBadMonth(t *testing.T) {
	router := newTestRouter(&mockStore{}, &mockTokens{}, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/monthly/2024-01", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCollectYesterday(t *testing.T) {
	backfiller := &mockBackfiller{}
	router := newTestRouter(&mockStore{}, &mockTokens{token: "tok"}, backfiller, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/electric/collect/yesterday", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	yesterday := models.FormatDate(time.Now().AddDate(0, 0, -1))
	assert.Equal(t, []string{yesterday}, backfiller.gotDates)
	assert.Equal(t, "tok", backfiller.gotToken)

	var resp struct {
		Success bool                `json:"success"`
		Results []models.DateResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Success)
}

func TestCollectYesterdayTokenFailure(t *testing.T) {
	tokens := &mockTokens{err: errors.New("authentication failed")}
	router := newTestRouter(&mockStore{}, tokens, &mockBackfiller{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/electric/collect/yesterday", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCollectBackfill(t *testing.T) {
	backfiller := &mockBackfiller{}
	router := newTestRouter(&mockStore{}, &mockTokens{token: "tok"}, backfiller, "")

	body, _ := json.Marshal(map[string]string{
		"start_date": "20240114",
		"end_date":   "20240116",
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/electric/collect/backfill", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"20240114", "20240115", "20240116"}, backfiller.gotDates,
		"the range is enumerated inclusively")
}

func TestCollectBackfillValidation(t *testing.T) {
	router := newTestRouter(&mockStore{}, &mockTokens{token: "tok"}, &mockBackfiller{}, "")

	cases := []map[string]string{
		{},
		{"start_date": "20240114"},
		{"start_date": "2024-01-14", "end_date": "20240116"},
		{"start_date": "20240116", "end_date": "20240114"},
	}
	for _, body := range cases {
		raw, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/electric/collect/backfill", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	store := &mockStore{records: map[string]*models.UsageRecord{"20240115": testRecord("20240115")}}
	router := newTestRouter(store, &mockTokens{}, &mockBackfiller{}, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/electric/daily/20240115", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/electric/daily/20240115", nil)
	req.Header.Set("X-API-Key", "wrong")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/electric/daily/20240115", nil)
	req.Header.Set("X-API-Key", "secret")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthBypassesAuth(t *testing.T) {
	router := newTestRouter(&mockStore{}, &mockTokens{}, &mockBackfiller{}, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

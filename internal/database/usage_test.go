package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorita/denkiwatch/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(date string) *models.UsageRecord {
	now := time.Now().UTC().Truncate(time.Second)
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
		RawData:             `{"billInfo":{}}`,
	}
}

func TestUpsertInsert(t *testing.T) {
	db := newTestDB(t)

	res, err := db.Upsert(testRecord("20240115"))
	require.NoError(t, err)
	assert.Equal(t, UpsertInserted, res)

	stored, err := db.GetUsage("20240115")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 12.5, stored.KwhUsed)
	assert.Equal(t, 340, stored.ChargeYen)
	assert.Equal(t, 1000.5, stored.CumulativeKwh)
	assert.Equal(t, 27000, stored.CumulativeChargeYen)
	assert.Equal(t, "FINAL", stored.BillingStatus)
	assert.Equal(t, "A", stored.RateCategory)
	assert.Equal(t, stored.CollectedAt, stored.LastUpdated)
}

func TestUpsertIdempotent(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Upsert(testRecord("20240115"))
	require.NoError(t, err)

	first, err := db.GetUsage("20240115")
	require.NoError(t, err)

	// Same values again: no write, last_updated untouched
	res, err := db.Upsert(testRecord("20240115"))
	require.NoError(t, err)
	assert.Equal(t, UpsertUnchanged, res)

	second, err := db.GetUsage("20240115")
	require.NoError(t, err)
	assert.Equal(t, first.LastUpdated, second.LastUpdated)
	assert.Equal(t, first.CollectedAt, second.CollectedAt)

	// Still exactly one row
	records, err := db.GetUsageRange("20240101", "20240131")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUpsertChangePropagation(t *testing.T) {
	db := newTestDB(t)

	rec := testRecord("20240115")
	rec.KwhUsed = 10
	_, err := db.Upsert(rec)
	require.NoError(t, err)

	before, err := db.GetUsage("20240115")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond) // RFC3339 has second resolution

	corrected := testRecord("20240115")
	corrected.KwhUsed = 12
	res, err := db.Upsert(corrected)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, res)

	after, err := db.GetUsage("20240115")
	require.NoError(t, err)
	assert.Equal(t, 12.0, after.KwhUsed)
	assert.True(t, after.LastUpdated.After(before.LastUpdated),
		"last_updated should advance on a value change")
	assert.Equal(t, before.CollectedAt, after.CollectedAt,
		"collected_at is immutable after first insert")
}

func TestGetUsageMissing(t *testing.T) {
	db := newTestDB(t)

	rec, err := db.GetUsage("19990101")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetUsageRangeOrdered(t *testing.T) {
	db := newTestDB(t)

	for _, date := range []string{"20240103", "20240101", "20240102"} {
		_, err := db.Upsert(testRecord(date))
		require.NoError(t, err)
	}

	records, err := db.GetUsageRange("20240101", "20240103")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "20240101", records[0].UsageDate)
	assert.Equal(t, "20240102", records[1].UsageDate)
	assert.Equal(t, "20240103", records[2].UsageDate)
}

func TestExistingDates(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Upsert(testRecord("20240103"))
	require.NoError(t, err)
	_, err = db.Upsert(testRecord("20240107"))
	require.NoError(t, err)

	dates, err := db.ExistingDates("20240101", "20240110")
	require.NoError(t, err)
	assert.Len(t, dates, 2)
	assert.True(t, dates["20240103"])
	assert.True(t, dates["20240107"])
	assert.False(t, dates["20240101"])
}

func TestMonthlyAggregate(t *testing.T) {
	db := newTestDB(t)

	for i, date := range []string{"20240101", "20240102", "20240103"} {
		rec := testRecord(date)
		rec.KwhUsed = float64(10 * (i + 1)) // 10, 20, 30
		rec.ChargeYen = 100 * (i + 1)       // 100, 200, 300
		_, err := db.Upsert(rec)
		require.NoError(t, err)
	}
	// Outside the month, must not count
	_, err := db.Upsert(testRecord("20240201"))
	require.NoError(t, err)

	agg, err := db.MonthlyAggregate("202401")
	require.NoError(t, err)
	assert.Equal(t, 60.0, agg.TotalKwh)
	assert.Equal(t, 600, agg.TotalCharge)
	assert.Equal(t, 3, agg.Days)
	assert.Equal(t, 20.0, agg.AverageKwh)
}

func TestMonthlyAggregateEmpty(t *testing.T) {
	db := newTestDB(t)

	agg, err := db.MonthlyAggregate("202401")
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Days)
	assert.Equal(t, 0.0, agg.TotalKwh)
	assert.Equal(t, 0.0, agg.AverageKwh)
}

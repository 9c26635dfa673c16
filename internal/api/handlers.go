package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmorita/denkiwatch/pkg/models"
)

// Store is the read surface the API serves from
type Store interface {
	GetUsage(usageDate string) (*models.UsageRecord, error)
	GetUsageRange(fromDate, toDate string) ([]models.UsageRecord, error)
	MonthlyAggregate(yearMonth string) (*models.MonthlyAggregate, error)
}

// TokenProvider supplies a valid bearer token for manual collection
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Backfiller collects and stores a list of dates, isolating per-date
// failures
type Backfiller interface {
	Backfill(ctx context.Context, token string, dates []string) ([]models.DateResult, error)
}

// Handler handles electric usage requests
type Handler struct {
	store      Store
	tokens     TokenProvider
	backfiller Backfiller
	logger     *slog.Logger
}

// NewHandler creates the API handler
func NewHandler(store Store, tokens TokenProvider, backfiller Backfiller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      store,
		tokens:     tokens,
		backfiller: backfiller,
		logger:     logger,
	}
}

// GetDaily returns the stored record for one date
// GET /v1/electric/daily/:date
func (h *Handler) GetDaily(c *gin.Context) {
	date := c.Param("date")
	if !validDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYYMMDD"})
		return
	}

	rec, err := h.store.GetUsage(date)
	if err != nil {
		h.logger.Error("Failed to read usage record", "date", date, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read record"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Data not found"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetDailyRange returns records between two dates inclusive
// GET /v1/electric/daily/range/:from/:to
func (h *Handler) GetDailyRange(c *gin.Context) {
	from, to := c.Param("from"), c.Param("to")
	if !validDate(from) || !validDate(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYYMMDD"})
		return
	}

	records, err := h.store.GetUsageRange(from, to)
	if err != nil {
		h.logger.Error("Failed to read usage range", "from", from, "to", to, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read records"})
		return
	}
	if records == nil {
		records = []models.UsageRecord{}
	}

	c.JSON(http.StatusOK, records)
}

// GetMonthly returns the aggregate for a YYYYMM month
// GET /v1/electric/monthly/:yearMonth
func (h *Handler) GetMonthly(c *gin.Context) {
	yearMonth := c.Param("yearMonth")
	if len(yearMonth) != 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "yearMonth must be YYYYMM"})
		return
	}

	agg, err := h.store.MonthlyAggregate(yearMonth)
	if err != nil {
		h.logger.Error("Failed to aggregate month", "year_month", yearMonth, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate month"})
		return
	}

	c.JSON(http.StatusOK, agg)
}

// CollectYesterday triggers collection of the previous day
// POST /v1/electric/collect/yesterday
func (h *Handler) CollectYesterday(c *gin.Context) {
	date := models.FormatDate(time.Now().AddDate(0, 0, -1))
	h.runCollection(c, []string{date})
}

type backfillRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// CollectBackfill triggers collection of every date in a range
// POST /v1/electric/collect/backfill
func (h *Handler) CollectBackfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date and end_date required"})
		return
	}
	if !validDate(req.StartDate) || !validDate(req.EndDate) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dates must be YYYYMMDD"})
		return
	}

	from, _ := models.ParseDate(req.StartDate)
	to, _ := models.ParseDate(req.EndDate)
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date before start_date"})
		return
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, models.FormatDate(d))
	}

	h.runCollection(c, dates)
}

// runCollection performs get-or-authenticate then collect-and-store for
// each date, reporting per-date outcomes
func (h *Handler) runCollection(c *gin.Context, dates []string) {
	token, err := h.tokens.Token(c.Request.Context())
	if err != nil {
		h.logger.Error("Collection trigger failed to obtain token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results, err := h.backfiller.Backfill(c.Request.Context(), token, dates)
	if err != nil {
		h.logger.Error("Collection failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Collection failed", "results": results})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

func validDate(s string) bool {
	if len(s) != 8 {
		return false
	}
	_, err := models.ParseDate(s)
	return err == nil
}

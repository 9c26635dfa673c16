package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jmorita/denkiwatch/pkg/models"
)

const (
	defaultBaseURL = "https://kcx-api.tepco-z.com"
	portalReferer  = "https://www.app.kurashi.tepco.co.jp/"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

	requestTimeout = 30 * time.Second
)

// Contract identifies the household account on the billing API
type Contract struct {
	ContractNum   string
	AccountID     string
	ContractClass string
}

// Collector fetches daily usage records from the TEPCO billing API
type Collector struct {
	baseURL  string
	contract Contract
	client   *http.Client
	logger   *slog.Logger
}

// New creates a collector for the given contract
func New(contract Contract, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		baseURL:  defaultBaseURL,
		contract: contract,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

// NewWithBaseURL creates a collector pointed at a non-default API host
func NewWithBaseURL(baseURL string, contract Contract, logger *slog.Logger) *Collector {
	c := New(contract, logger)
	c.baseURL = baseURL
	return c
}

// dailyUsageResponse mirrors the billing API payload. The API reports
// all numbers as strings.
type dailyUsageResponse struct {
	CommonInfo struct {
		Timestamp string `json:"timestamp"`
	} `json:"commonInfo"`
	BillInfo struct {
		UsedDay              string `json:"usedDay"`
		BillingStatus        string `json:"billingStatus"`
		ElectricRateCategory string `json:"electricRateCategory"`
		TimezonePrice        string `json:"timezonePrice"`
		UsedInfo             struct {
			Charge           string `json:"charge"`
			Power            string `json:"power"`
			Unit             string `json:"unit"`
			CurrentTotalInfo struct {
				Charge string `json:"charge"`
				Power  string `json:"power"`
				Unit   string `json:"unit"`
			} `json:"currentTotalInfo"`
		} `json:"usedInfo"`
	} `json:"billInfo"`
}

// Collect fetches the finalized usage record for a date (YYYYMMDD).
// A non-success response means the data is not available yet and returns
// (nil, nil); the caller should try again on a later pass. A response
// that cannot be parsed into a record is a defect and returns an error.
func (c *Collector) Collect(ctx context.Context, token, date string) (*models.UsageRecord, error) {
	params := url.Values{}
	params.Set("contractNum", c.contract.ContractNum)
	params.Set("usedDay", date)
	params.Set("contractClass", c.contract.ContractClass)
	params.Set("readOffset", "0")
	params.Set("accountId", c.contract.AccountID)

	reqURL := fmt.Sprintf("%s/kcx/billing/day?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	trackingID := uuid.New().String()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Request-Id", trackingID)
	req.Header.Set("x-kcx-tracking-id", trackingID)
	req.Header.Set("Referer", portalReferer)
	req.Header.Set("Accept", "application/json; charset=utf-8")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("API request failed",
			"date", date,
			"status", resp.StatusCode,
			"tracking_id", trackingID,
			"body", string(body))
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return normalize(raw, time.Now())
}

// normalize transforms a raw API payload into a usage record
func normalize(raw []byte, now time.Time) (*models.UsageRecord, error) {
	var payload dailyUsageResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	bill := payload.BillInfo
	if bill.UsedDay == "" {
		return nil, fmt.Errorf("malformed response: missing billInfo.usedDay")
	}

	kwh, err := strconv.ParseFloat(bill.UsedInfo.Power, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed response: usedInfo.power %q: %w", bill.UsedInfo.Power, err)
	}
	charge, err := strconv.Atoi(bill.UsedInfo.Charge)
	if err != nil {
		return nil, fmt.Errorf("malformed response: usedInfo.charge %q: %w", bill.UsedInfo.Charge, err)
	}
	cumKwh, err := strconv.ParseFloat(bill.UsedInfo.CurrentTotalInfo.Power, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed response: currentTotalInfo.power %q: %w", bill.UsedInfo.CurrentTotalInfo.Power, err)
	}
	cumCharge, err := strconv.Atoi(bill.UsedInfo.CurrentTotalInfo.Charge)
	if err != nil {
		return nil, fmt.Errorf("malformed response: currentTotalInfo.charge %q: %w", bill.UsedInfo.CurrentTotalInfo.Charge, err)
	}

	return &models.UsageRecord{
		UsageDate:           bill.UsedDay,
		KwhUsed:             kwh,
		ChargeYen:           charge,
		CumulativeKwh:       cumKwh,
		CumulativeChargeYen: cumCharge,
		BillingStatus:       bill.BillingStatus,
		RateCategory:        bill.ElectricRateCategory,
		LastUpdated:         now,
		CollectedAt:         now,
		RawData:             string(raw),
	}, nil
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/homekeep/internal/config"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"github.com/smallbiznis/homekeep/internal/observability"
	"github.com/smallbiznis/homekeep/internal/ratelimit"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUtilityService struct {
	utilitydomain.Service

	calcReq  utilitydomain.CalculateRequest
	calcErr  error
	tiersReq utilitydomain.ReplaceTiersRequest
}

func (f *fakeUtilityService) Calculate(ctx context.Context, req utilitydomain.CalculateRequest) (*utilitydomain.CostResult, error) {
	f.calcReq = req
	if f.calcErr != nil {
		return nil, f.calcErr
	}
	return &utilitydomain.CostResult{
		UtilityType: "electricity",
		PricingMode: utilitydomain.PricingModeSimple,
		Consumption: req.Consumption,
		TotalCost:   decimal.RequireFromString("111.25"),
	}, nil
}

func (f *fakeUtilityService) ReplaceTiers(ctx context.Context, req utilitydomain.ReplaceTiersRequest) ([]utilitydomain.TierResponse, error) {
	f.tiersReq = req
	return []utilitydomain.TierResponse{}, nil
}

type fakeInventoryService struct {
	inventorydomain.Service

	changeErr error
	settings  int
}

func (f *fakeInventoryService) ChangeQuantity(ctx context.Context, req inventorydomain.ChangeQuantityRequest) (*inventorydomain.ItemResponse, error) {
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	return &inventorydomain.ItemResponse{ID: req.ItemID, HouseholdID: req.HouseholdID, Quantity: req.NewQuantity}, nil
}

func (f *fakeInventoryService) UpsertTrackingSettings(ctx context.Context, req inventorydomain.TrackingSettingsRequest) (*inventorydomain.TrackingSettings, error) {
	f.settings++
	return &inventorydomain.TrackingSettings{}, nil
}

type fakeConsumptionService struct {
	consumptiondomain.Service

	predictErr error
	wasteCalls int
}

func (f *fakeConsumptionService) PredictStockDepletion(ctx context.Context, householdID, itemID string) (*consumptiondomain.Prediction, error) {
	if f.predictErr != nil {
		return nil, f.predictErr
	}
	return &consumptiondomain.Prediction{Status: consumptiondomain.StatusSuccess, ItemID: itemID}, nil
}

func (f *fakeConsumptionService) WasteStatistics(ctx context.Context, householdID string, periodMonths int) (*consumptiondomain.WasteStatistics, error) {
	f.wasteCalls++
	return &consumptiondomain.WasteStatistics{PeriodMonths: periodMonths}, nil
}

type fakeExpiryService struct {
	expirydomain.Service

	recorded []expirydomain.RecordRequest
}

func (f *fakeExpiryService) RecordExpiryPattern(ctx context.Context, req expirydomain.RecordRequest) {
	f.recorded = append(f.recorded, req)
}

type testServer struct {
	engine      *gin.Engine
	utility     *fakeUtilityService
	inventory   *fakeInventoryService
	consumption *fakeConsumptionService
	expiry      *fakeExpiryService
}

func newTestServer(t *testing.T, limiter *ratelimit.WriteLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		engine:      NewEngine(observability.Config{Environment: "test"}, nil),
		utility:     &fakeUtilityService{},
		inventory:   &fakeInventoryService{},
		consumption: &fakeConsumptionService{},
		expiry:      &fakeExpiryService{},
	}
	NewServer(ServerParams{
		Gin:            ts.engine,
		Cfg:            config.Config{Environment: "test"},
		UtilitySvc:     ts.utility,
		InventorySvc:   ts.inventory,
		ConsumptionSvc: ts.consumption,
		ExpirySvc:      ts.expiry,
		WriteLimiter:   limiter,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCalculateUtilityCostUsesPathKeys(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/api/households/42/utilities/1/cost", map[string]any{
		"consumption":      "250",
		"consumption_unit": " kWh ",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "42", ts.utility.calcReq.HouseholdID)
	assert.Equal(t, "1", ts.utility.calcReq.UtilityTypeID)
	assert.Equal(t, "kWh", ts.utility.calcReq.ConsumptionUnit)
	assert.True(t, decimal.NewFromInt(250).Equal(ts.utility.calcReq.Consumption))

	var resp struct {
		Data utilitydomain.CostResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "111.25", resp.Data.TotalCost.String())
}

func TestCalculateUtilityCostMissingConfiguration(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.utility.calcErr = utilitydomain.ErrConfigurationMissing

	rec := ts.do(t, http.MethodPost, "/api/households/42/utilities/1/cost", map[string]any{"consumption": "1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "configuration_missing", decodeError(t, rec).Type)
}

func TestCalculateUtilityCostMalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/households/42/utilities/1/cost", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
}

func TestReplaceTiersAcceptsDateOnly(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPut, "/api/households/42/utilities/1/tiers", map[string]any{
		"valid_from": "2026-01-01",
		"tiers": []map[string]any{
			{"tier_number": 1, "tier_name": "base", "price_per_unit": "0.5"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ts.utility.tiersReq.ValidFrom)
	assert.Nil(t, ts.utility.tiersReq.ValidUntil)
	require.Len(t, ts.utility.tiersReq.Tiers, 1)

	rec = ts.do(t, http.MethodPut, "/api/households/42/utilities/1/tiers", map[string]any{"valid_from": "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_valid_from", decodeError(t, rec).Errors[0].Code)
}

func TestDomainValidationErrorsCarryCode(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.inventory.changeErr = inventorydomain.ErrInvalidChangeType

	rec := ts.do(t, http.MethodPatch, "/api/households/42/inventory/items/7/quantity", map[string]any{
		"new_quantity": "1",
		"change_type":  "eat",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_change_type", payload.Errors[0].Code)
	assert.Equal(t, "change_type", payload.Errors[0].Field)
}

func TestNotFoundMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.consumption.predictErr = consumptiondomain.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/api/households/42/inventory/items/7/prediction", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)

	rec = ts.do(t, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateReadingIsConflict(t *testing.T) {
	status, payload := mapError(utilitydomain.ErrDuplicateReading)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)

	status, payload = mapError(utilitydomain.ErrNegativeReading)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "meter_regression", payload.Errors[0].Code)

	status, _ = mapError(utilitydomain.ErrUnsupportedUtilityType)
	assert.Equal(t, http.StatusInternalServerError, status)

	status, payload = mapError(fmt.Errorf("%w: item 7", inventorydomain.ErrConcurrentUpdate))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", payload.Type)
}

func TestWasteStatisticsPeriodParsing(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/households/42/consumption/waste?period_months=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data consumptiondomain.WasteStatistics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.PeriodMonths)

	rec = ts.do(t, http.MethodGet, "/api/households/42/consumption/waste?period_months=many", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, ts.consumption.wasteCalls)
}

func TestRecordExpirySampleIsAccepted(t *testing.T) {
	ts := newTestServer(t, nil)
	days := 12
	rec := ts.do(t, http.MethodPost, "/api/households/42/expiry/samples", map[string]any{
		"barcode":         " 4006381333931 ",
		"shelf_life_days": days,
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ts.expiry.recorded, 1)
	assert.Equal(t, "42", ts.expiry.recorded[0].HouseholdID)
	assert.Equal(t, "4006381333931", ts.expiry.recorded[0].Barcode)
	require.NotNil(t, ts.expiry.recorded[0].ShelfLifeDays)
	assert.Equal(t, days, *ts.expiry.recorded[0].ShelfLifeDays)
}

func TestWriteRateLimitPerHousehold(t *testing.T) {
	limiter := ratelimit.NewWriteLimiter(ratelimit.NewLocalBucket(), 0.01, 1)
	ts := newTestServer(t, limiter)

	rec := ts.do(t, http.MethodPut, "/api/households/42/tracking-settings", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = ts.do(t, http.MethodPut, "/api/households/42/tracking-settings", map[string]any{})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)

	rec = ts.do(t, http.MethodPut, "/api/households/43/tracking-settings", map[string]any{})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ts.inventory.settings)

	rec = ts.do(t, http.MethodGet, "/api/households/42/consumption/waste", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

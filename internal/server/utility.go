package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
)

type replaceTiersBody struct {
	ValidFrom  string                    `json:"valid_from"`
	ValidUntil string                    `json:"valid_until"`
	Tiers      []utilitydomain.TierInput `json:"tiers"`
}

type recordReadingBody struct {
	ReadingDate  string          `json:"reading_date"`
	MeterReading decimal.Decimal `json:"meter_reading"`
	Notes        string          `json:"notes"`
}

func (s *Server) ListUtilityTypes(c *gin.Context) {
	resp, err := s.utilitySvc.ListUtilityTypes(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CalculateUtilityCost(c *gin.Context) {
	var req utilitydomain.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.HouseholdID = householdParam(c)
	req.UtilityTypeID = strings.TrimSpace(c.Param("utility_type_id"))
	req.ConsumptionUnit = strings.TrimSpace(req.ConsumptionUnit)

	resp, err := s.utilitySvc.Calculate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CalculateCostBetweenReadings(c *gin.Context) {
	var req utilitydomain.BetweenReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.HouseholdID = householdParam(c)
	req.UtilityTypeID = strings.TrimSpace(c.Param("utility_type_id"))

	resp, err := s.utilitySvc.CalculateBetweenReadings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetUtilitySetting(c *gin.Context) {
	resp, err := s.utilitySvc.GetSetting(c.Request.Context(), householdParam(c), strings.TrimSpace(c.Param("utility_type_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertUtilitySetting(c *gin.Context) {
	var req utilitydomain.UpsertSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.HouseholdID = householdParam(c)
	req.UtilityTypeID = strings.TrimSpace(c.Param("utility_type_id"))
	req.MeterNumber = strings.TrimSpace(req.MeterNumber)
	req.ProviderName = strings.TrimSpace(req.ProviderName)

	resp, err := s.utilitySvc.UpsertSetting(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListUtilityTiers(c *gin.Context) {
	resp, err := s.utilitySvc.ListActiveTiers(c.Request.Context(), householdParam(c), strings.TrimSpace(c.Param("utility_type_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReplaceUtilityTiers(c *gin.Context) {
	var body replaceTiersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	validFrom, err := parseOptionalTime(body.ValidFrom)
	if err != nil || validFrom == nil {
		AbortWithError(c, newValidationError("valid_from", "invalid_valid_from", "valid_from must be a date"))
		return
	}
	validUntil, err := parseOptionalTime(body.ValidUntil)
	if err != nil {
		AbortWithError(c, newValidationError("valid_until", "invalid_valid_until", "valid_until must be a date"))
		return
	}

	resp, err := s.utilitySvc.ReplaceTiers(c.Request.Context(), utilitydomain.ReplaceTiersRequest{
		HouseholdID:   householdParam(c),
		UtilityTypeID: strings.TrimSpace(c.Param("utility_type_id")),
		ValidFrom:     *validFrom,
		ValidUntil:    validUntil,
		Tiers:         body.Tiers,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMeterReadings(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a number"))
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	resp, err := s.utilitySvc.ListReadings(c.Request.Context(), householdParam(c), strings.TrimSpace(c.Param("utility_type_id")), n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordMeterReading(c *gin.Context) {
	var body recordReadingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	readingDate, err := parseOptionalTime(body.ReadingDate)
	if err != nil {
		AbortWithError(c, newValidationError("reading_date", "invalid_reading_date", "reading_date must be a date"))
		return
	}
	var date time.Time
	if readingDate != nil {
		date = *readingDate
	}

	resp, err := s.utilitySvc.RecordReading(c.Request.Context(), utilitydomain.RecordReadingRequest{
		HouseholdID:   householdParam(c),
		UtilityTypeID: strings.TrimSpace(c.Param("utility_type_id")),
		ReadingDate:   date,
		MeterReading:  body.MeterReading,
		Notes:         strings.TrimSpace(body.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func householdParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("household_id"))
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
)

func statsRequest(c *gin.Context) consumptiondomain.StatsRequest {
	return consumptiondomain.StatsRequest{
		HouseholdID: householdParam(c),
		ProductID:   strings.TrimSpace(c.Query("product_id")),
		ProductName: strings.TrimSpace(c.Query("product_name")),
	}
}

func (s *Server) InventoryConsumptionStats(c *gin.Context) {
	resp, err := s.consumptionSvc.InventoryConsumptionStats(c.Request.Context(), statsRequest(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ShoppingPatternStats(c *gin.Context) {
	resp, err := s.consumptionSvc.ShoppingPatternStats(c.Request.Context(), statsRequest(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CombinedConsumptionStats(c *gin.Context) {
	resp, err := s.consumptionSvc.CombinedConsumptionStats(c.Request.Context(), statsRequest(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PredictStockDepletion(c *gin.Context) {
	resp, err := s.consumptionSvc.PredictStockDepletion(c.Request.Context(), householdParam(c), strings.TrimSpace(c.Param("item_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AutoSuggestions(c *gin.Context) {
	resp, err := s.consumptionSvc.GenerateAutoSuggestions(c.Request.Context(), householdParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) WasteStatistics(c *gin.Context) {
	months, err := parseOptionalInt(c.Query("period_months"))
	if err != nil {
		AbortWithError(c, newValidationError("period_months", "invalid_period_months", "period_months must be a number"))
		return
	}
	period := 0
	if months != nil {
		period = *months
	}

	resp, err := s.consumptionSvc.WasteStatistics(c.Request.Context(), householdParam(c), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) TrackingFeatureStatus(c *gin.Context) {
	feature := consumptiondomain.Feature(strings.TrimSpace(c.Param("feature")))
	enabled, err := s.consumptionSvc.IsTrackingEnabled(c.Request.Context(), householdParam(c), feature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"feature": feature, "enabled": enabled}})
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
)

func (s *Server) ExpirySuggestion(c *gin.Context) {
	resp, err := s.expirySvc.GetExpirySuggestion(c.Request.Context(), expirydomain.SuggestionRequest{
		HouseholdID: householdParam(c),
		Barcode:     strings.TrimSpace(c.Query("barcode")),
		ProductName: strings.TrimSpace(c.Query("product_name")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecordExpirySample accepts a shelf-life observation. Recording never fails
// the request; rejected samples are only logged.
func (s *Server) RecordExpirySample(c *gin.Context) {
	var req expirydomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.HouseholdID = householdParam(c)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.ProductName = strings.TrimSpace(req.ProductName)

	s.expirySvc.RecordExpiryPattern(c.Request.Context(), req)
	c.Status(http.StatusAccepted)
}

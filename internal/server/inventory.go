package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
)

type addItemBody struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Barcode      string          `json:"barcode"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	PurchaseDate string          `json:"purchase_date"`
	ExpiryDate   string          `json:"expiry_date"`
}

type changeQuantityBody struct {
	NewQuantity decimal.Decimal            `json:"new_quantity"`
	ChangeType  inventorydomain.ChangeType `json:"change_type"`
}

type shoppingHistoryBody struct {
	ProductID       string                         `json:"product_id"`
	ProductName     string                         `json:"product_name"`
	Quantity        decimal.Decimal                `json:"quantity"`
	Unit            string                         `json:"unit"`
	Source          inventorydomain.ShoppingSource `json:"source"`
	AddedToListDate string                         `json:"added_to_list_date"`
}

type completeShoppingBody struct {
	CompletedDate string `json:"completed_date"`
	Removed       bool   `json:"removed"`
}

func (s *Server) AddInventoryItem(c *gin.Context) {
	var body addItemBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	purchaseDate, err := parseOptionalTime(body.PurchaseDate)
	if err != nil {
		AbortWithError(c, newValidationError("purchase_date", "invalid_purchase_date", "purchase_date must be a date"))
		return
	}
	expiryDate, err := parseOptionalTime(body.ExpiryDate)
	if err != nil {
		AbortWithError(c, newValidationError("expiry_date", "invalid_expiry_date", "expiry_date must be a date"))
		return
	}

	resp, err := s.inventorySvc.AddItem(c.Request.Context(), inventorydomain.AddItemRequest{
		HouseholdID:  householdParam(c),
		ProductID:    strings.TrimSpace(body.ProductID),
		ProductName:  strings.TrimSpace(body.ProductName),
		Barcode:      strings.TrimSpace(body.Barcode),
		Quantity:     body.Quantity,
		Unit:         strings.TrimSpace(body.Unit),
		PurchaseDate: purchaseDate,
		ExpiryDate:   expiryDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetInventoryItem(c *gin.Context) {
	resp, err := s.inventorySvc.GetItem(c.Request.Context(), householdParam(c), strings.TrimSpace(c.Param("item_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ChangeInventoryQuantity(c *gin.Context) {
	var body changeQuantityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.inventorySvc.ChangeQuantity(c.Request.Context(), inventorydomain.ChangeQuantityRequest{
		HouseholdID: householdParam(c),
		ItemID:      strings.TrimSpace(c.Param("item_id")),
		NewQuantity: body.NewQuantity,
		ChangeType:  body.ChangeType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyBulkInventoryChanges(c *gin.Context) {
	var req inventorydomain.BulkChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.HouseholdID = householdParam(c)
	for i := range req.Changes {
		req.Changes[i].HouseholdID = req.HouseholdID
		req.Changes[i].ItemID = strings.TrimSpace(req.Changes[i].ItemID)
	}

	resp, err := s.inventorySvc.ApplyBulkChanges(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordShoppingHistory(c *gin.Context) {
	var body shoppingHistoryBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	addedAt, err := parseOptionalTime(body.AddedToListDate)
	if err != nil {
		AbortWithError(c, newValidationError("added_to_list_date", "invalid_added_to_list_date", "added_to_list_date must be a date"))
		return
	}

	resp, err := s.inventorySvc.RecordShoppingHistory(c.Request.Context(), inventorydomain.ShoppingHistoryRequest{
		HouseholdID: householdParam(c),
		ProductID:   strings.TrimSpace(body.ProductID),
		ProductName: strings.TrimSpace(body.ProductName),
		Quantity:    body.Quantity,
		Unit:        strings.TrimSpace(body.Unit),
		Source:      body.Source,
		AddedAt:     addedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CompleteShoppingHistory(c *gin.Context) {
	var body completeShoppingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	completedAt, err := parseOptionalTime(body.CompletedDate)
	if err != nil {
		AbortWithError(c, newValidationError("completed_date", "invalid_completed_date", "completed_date must be a date"))
		return
	}

	if err := s.inventorySvc.CompleteShoppingHistory(c.Request.Context(), inventorydomain.CompleteShoppingRequest{
		HouseholdID: householdParam(c),
		EntryID:     strings.TrimSpace(c.Param("entry_id")),
		CompletedAt: completedAt,
		Removed:     body.Removed,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetTrackingSettings(c *gin.Context) {
	resp, err := s.inventorySvc.GetTrackingSettings(c.Request.Context(), householdParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertTrackingSettings(c *gin.Context) {
	var req inventorydomain.TrackingSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.HouseholdID = householdParam(c)
	req.ConfidenceThreshold = strings.TrimSpace(req.ConfidenceThreshold)

	resp, err := s.inventorySvc.UpsertTrackingSettings(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

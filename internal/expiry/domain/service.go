package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// MinSamplesForSuggestion is the sample count a pattern needs before it is
// offered as a suggestion.
const MinSamplesForSuggestion = 3

type Service interface {
	// RecordExpiryPattern folds one shelf-life sample into the household's
	// pattern. Failures are logged, never returned.
	RecordExpiryPattern(ctx context.Context, req RecordRequest)
	GetExpirySuggestion(ctx context.Context, req SuggestionRequest) (*Suggestion, error)
}

type RecordRequest struct {
	HouseholdID   string `json:"household_id"`
	Barcode       string `json:"barcode"`
	ProductName   string `json:"product_name"`
	ShelfLifeDays *int   `json:"shelf_life_days"`
}

type SuggestionRequest struct {
	HouseholdID string `json:"household_id"`
	Barcode     string `json:"barcode"`
	ProductName string `json:"product_name"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type Suggestion struct {
	HasPattern           bool       `json:"has_pattern"`
	AverageShelfLifeDays float64    `json:"average_shelf_life_days,omitempty"`
	SampleCount          int        `json:"sample_count,omitempty"`
	SuggestedExpiryDate  *time.Time `json:"suggested_expiry_date,omitempty"`
	Confidence           Confidence `json:"confidence,omitempty"`
	Message              string     `json:"message,omitempty"`
	MatchedBy            string     `json:"matched_by,omitempty"`
}

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrInvalidID    = fmt.Errorf("%w: invalid_id", ErrInvalidInput)
)

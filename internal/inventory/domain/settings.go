package domain

import (
	"strconv"
	"strings"

	"github.com/smallbiznis/homekeep/internal/config"
)

const (
	SettingMinDataPoints       = "min_data_points"
	SettingHistoryMonths       = "history_months"
	SettingConfidenceThreshold = "confidence_threshold"
)

// TrackingSettings is the resolved view of a household's tracking switches.
type TrackingSettings struct {
	ConsumptionTracking     bool   `json:"consumption_tracking_enabled"`
	ShoppingPatternAnalysis bool   `json:"shopping_pattern_analysis_enabled"`
	AutoSuggestions         bool   `json:"auto_suggestions_enabled"`
	MinDataPoints           int    `json:"min_data_points"`
	HistoryMonths           int    `json:"history_months"`
	ConfidenceThreshold     string `json:"confidence_threshold,omitempty"`
	Stored                  bool   `json:"stored"`
}

// ResolveTrackingSettings applies defaults. A missing row enables everything.
func ResolveTrackingSettings(row *HouseholdTrackingSettings, defaults config.TrackingConfig) TrackingSettings {
	out := TrackingSettings{
		ConsumptionTracking:     true,
		ShoppingPatternAnalysis: true,
		AutoSuggestions:         true,
		MinDataPoints:           defaults.MinDataPoints,
		HistoryMonths:           defaults.HistoryMonths,
	}
	if row == nil {
		return out
	}

	out.Stored = true
	out.ConsumptionTracking = row.ConsumptionTracking
	out.ShoppingPatternAnalysis = row.ShoppingPatternAnalysis
	out.AutoSuggestions = row.AutoSuggestions
	if v, ok := positiveInt(row.Settings[SettingMinDataPoints]); ok {
		out.MinDataPoints = v
	}
	if v, ok := positiveInt(row.Settings[SettingHistoryMonths]); ok {
		out.HistoryMonths = v
	}
	if v, ok := row.Settings[SettingConfidenceThreshold].(string); ok {
		out.ConfidenceThreshold = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// positiveInt accepts the shapes a JSON blob decodes numbers into.
func positiveInt(v any) (int, bool) {
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int64:
		n = int(t)
	case float64:
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	return n, n > 0
}

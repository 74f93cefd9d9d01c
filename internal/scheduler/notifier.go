package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	obscontext "github.com/smallbiznis/homekeep/internal/observability/context"
	obslogger "github.com/smallbiznis/homekeep/internal/observability/logger"
	"go.uber.org/zap"
)

// SuggestionNotifier receives the low-stock suggestions a sweep produced for
// one household. Hosts bind their own delivery (push, mail, webhook) with
// fx.As; without a binding the scheduler falls back to LogNotifier.
type SuggestionNotifier interface {
	NotifySuggestions(ctx context.Context, householdID snowflake.ID, suggestions []consumptiondomain.Suggestion) error
}

// LogNotifier writes each suggestion as a structured log line.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifySuggestions(ctx context.Context, householdID snowflake.ID, suggestions []consumptiondomain.Suggestion) error {
	if obscontext.HouseholdIDFromContext(ctx) == "" {
		ctx = obscontext.WithHouseholdID(ctx, householdID.String())
	}
	log := obslogger.WithContext(ctx, n.log)
	for _, suggestion := range suggestions {
		log.Info("suggestion.generated",
			zap.String("item_id", suggestion.ItemID),
			zap.String("product_name", suggestion.ProductName),
			zap.Float64("days_until_empty", suggestion.DaysUntilEmpty),
			zap.Time("predicted_empty_date", suggestion.PredictedEmptyDate),
			zap.String("confidence", string(suggestion.Confidence)),
			zap.String("method", string(suggestion.Method)),
			zap.String("message", suggestion.Message),
		)
	}
	return nil
}

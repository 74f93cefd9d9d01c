package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsHouseholdData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/households/:household_id/inventory"),
		attribute.String("household_id", "9"),
		attribute.String("product_name", "Milk"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(fmt.Errorf("invalid_input: %s", "custom name 'grandma's jam'"))
	assert.EqualError(t, err, "invalid_input")
	assert.EqualError(t, SafeError(errors.New("boom")), "boom")
}

func TestNewProviderDisabled(t *testing.T) {
	tp, err := NewProvider(nil, Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/households/:household_id/utilities", func(c *gin.Context) {
		_ = c.Error(errors.New("db down: host 10.0.0.1"))
		c.Status(http.StatusInternalServerError)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/households/3/utilities", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/households/:household_id/utilities", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

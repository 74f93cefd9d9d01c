package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/homekeep/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var seenRequestID, seenHousehold string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/households/:household_id/ping", func(c *gin.Context) {
		seenRequestID = obscontext.RequestIDFromContext(c.Request.Context())
		seenHousehold = obscontext.HouseholdIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/households/7/ping", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, seenRequestID, 26)
	assert.Equal(t, seenRequestID, w.Header().Get(requestIDHeader))
	assert.Equal(t, "7", seenHousehold)

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/households/:household_id/ping", entries[0].ContextMap()["route"])
	assert.Equal(t, "7", entries[0].ContextMap()["household_id"])
}

func TestGinMiddlewareKeepsIncomingRequestIDAndClassifiesErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "internal_error", "boom" },
	}))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set(requestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "internal_error", entries[0].ContextMap()["error_type"])
}

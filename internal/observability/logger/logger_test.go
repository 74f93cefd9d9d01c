package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/homekeep/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithContextAddsOnlyPresentFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithHouseholdID(context.Background(), "11")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "11", fields["household_id"])
	assert.NotContains(t, fields, "request_id")
	assert.NotContains(t, fields, "trace_id")
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM inventory_items":                    "SELECT",
		"  insert into product_expiry_patterns values (?)": "INSERT",
		"WITH x AS (SELECT 1) UPDATE t SET a = 1":          "SELECT",
		"":                                                 "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewGormLogger(zap.New(core), DefaultGormLoggerConfig())

	sql := func() (string, int64) { return "SELECT 1", 1 }
	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[1].Level)

	quiet := l.LogMode(gormlogger.Silent)
	quiet.Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/clock"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	"github.com/smallbiznis/homekeep/internal/expiry/repository"
	"github.com/smallbiznis/homekeep/internal/lock"
	"github.com/smallbiznis/homekeep/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (expirydomain.Service, *gorm.DB, string) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&expirydomain.ProductExpiryPattern{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)),
		Repo:   repository.Provide(),
		Locker: lock.NewLocalLocker(),
	})
	return svc, conn, node.Generate().String()
}

func days(n int) *int { return &n }

func loadPattern(t *testing.T, conn *gorm.DB, key string) expirydomain.ProductExpiryPattern {
	t.Helper()
	var p expirydomain.ProductExpiryPattern
	require.NoError(t, conn.Where("pattern_key = ?", key).First(&p).Error)
	return p
}

func TestRecordExpiryPattern_StreamingMean(t *testing.T) {
	svc, conn, hh := newTestService(t)
	ctx := context.Background()

	for _, n := range []int{5, 7, 9} {
		svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, Barcode: "4006381333931", ShelfLifeDays: days(n)})
	}
	p := loadPattern(t, conn, "barcode:4006381333931")
	assert.InDelta(t, 7.0, p.AverageShelfLifeDays, 1e-9)
	assert.Equal(t, 3, p.SampleCount)
	assert.Equal(t, 9, p.LastShelfLifeDays)

	svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, Barcode: "4006381333931", ShelfLifeDays: days(11)})
	p = loadPattern(t, conn, "barcode:4006381333931")
	assert.InDelta(t, 8.0, p.AverageShelfLifeDays, 1e-9)
	assert.Equal(t, 4, p.SampleCount)
}

func TestRecordExpiryPattern_ConcurrentSamplesAreNotLost(t *testing.T) {
	svc, conn, hh := newTestService(t)
	ctx := context.Background()

	const writers = 12
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, ProductName: "Yoghurt", ShelfLifeDays: days(10)})
		}()
	}
	wg.Wait()

	p := loadPattern(t, conn, "name:Yoghurt")
	assert.Equal(t, writers, p.SampleCount)
	assert.InDelta(t, 10.0, p.AverageShelfLifeDays, 1e-9)
}

func TestRecordExpiryPattern_NoOps(t *testing.T) {
	svc, conn, hh := newTestService(t)
	ctx := context.Background()

	svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, Barcode: "1"})
	svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, ShelfLifeDays: days(3)})
	svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, Barcode: "1", ShelfLifeDays: days(-2)})

	var count int64
	require.NoError(t, conn.Model(&expirydomain.ProductExpiryPattern{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordExpiryPattern_SwallowsStoreFailures(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	core, logs := observer.New(zapcore.WarnLevel)

	// no table: every write fails
	svc := New(Params{DB: conn, Log: zap.New(core), GenID: node, Repo: repository.Provide()})

	assert.NotPanics(t, func() {
		svc.RecordExpiryPattern(context.Background(), expirydomain.RecordRequest{
			HouseholdID: node.Generate().String(), Barcode: "42", ShelfLifeDays: days(4),
		})
	})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "expiry pattern not recorded", logs.All()[0].Message)
}

func TestGetExpirySuggestion(t *testing.T) {
	svc, _, hh := newTestService(t)
	ctx := context.Background()

	record := func(barcode, name string, samples ...int) {
		for _, n := range samples {
			svc.RecordExpiryPattern(ctx, expirydomain.RecordRequest{HouseholdID: hh, Barcode: barcode, ProductName: name, ShelfLifeDays: days(n)})
		}
	}
	record("", "Greek Yoghurt", 10, 12)

	got, err := svc.GetExpirySuggestion(ctx, expirydomain.SuggestionRequest{HouseholdID: hh, ProductName: "yoghurt"})
	require.NoError(t, err)
	assert.False(t, got.HasPattern, "two samples are not enough")

	record("", "Greek Yoghurt", 14)
	got, err = svc.GetExpirySuggestion(ctx, expirydomain.SuggestionRequest{HouseholdID: hh, ProductName: "yoghurt"})
	require.NoError(t, err)
	require.True(t, got.HasPattern)
	assert.Equal(t, "name", got.MatchedBy)
	assert.Equal(t, 3, got.SampleCount)
	assert.InDelta(t, 12.0, got.AverageShelfLifeDays, 1e-9)
	assert.Equal(t, expirydomain.ConfidenceLow, got.Confidence)
	require.NotNil(t, got.SuggestedExpiryDate)
	assert.Equal(t, time.Date(2026, 5, 16, 0, 0, 0, 0, time.UTC), *got.SuggestedExpiryDate)
	assert.Equal(t, "Usually keeps for about 12 days", got.Message)

	record("5000112637922", "Milk", 7, 7, 7, 7, 7)
	got, err = svc.GetExpirySuggestion(ctx, expirydomain.SuggestionRequest{HouseholdID: hh, Barcode: "5000112637922", ProductName: "yoghurt"})
	require.NoError(t, err)
	require.True(t, got.HasPattern)
	assert.Equal(t, "barcode", got.MatchedBy)
	assert.Equal(t, expirydomain.ConfidenceMedium, got.Confidence)
	assert.Equal(t, "Usually keeps for about 7 days", got.Message)

	_, err = svc.GetExpirySuggestion(ctx, expirydomain.SuggestionRequest{HouseholdID: hh})
	assert.ErrorIs(t, err, expirydomain.ErrInvalidInput)
	_, err = svc.GetExpirySuggestion(ctx, expirydomain.SuggestionRequest{HouseholdID: "x", Barcode: "1"})
	assert.ErrorIs(t, err, expirydomain.ErrInvalidID)
}

func TestShelfLifeMessage(t *testing.T) {
	cases := map[float64]string{
		0.4:   "Usually expires within a day",
		1:     "Usually keeps for about 1 day",
		13.4:  "Usually keeps for about 13 days",
		14:    "Usually keeps for about 2 weeks",
		59:    "Usually keeps for about 8 weeks",
		75:    "Usually keeps for about 3 months",
		364:   "Usually keeps for about 12 months",
		400:   "Usually keeps for about 1 year",
		900.5: "Usually keeps for about 2 years",
	}
	for in, want := range cases {
		assert.Equal(t, want, shelfLifeMessage(in), "%v days", in)
	}
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, expirydomain.ConfidenceLow, confidenceFor(4))
	assert.Equal(t, expirydomain.ConfidenceMedium, confidenceFor(5))
	assert.Equal(t, expirydomain.ConfidenceHigh, confidenceFor(10))
}

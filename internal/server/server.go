package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/homekeep/internal/cache"
	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/smallbiznis/homekeep/internal/consumption"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	"github.com/smallbiznis/homekeep/internal/expiry"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	"github.com/smallbiznis/homekeep/internal/inventory"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"github.com/smallbiznis/homekeep/internal/lock"
	"github.com/smallbiznis/homekeep/internal/observability"
	obsmiddleware "github.com/smallbiznis/homekeep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/homekeep/internal/observability/metrics"
	obstracing "github.com/smallbiznis/homekeep/internal/observability/tracing"
	"github.com/smallbiznis/homekeep/internal/ratelimit"
	"github.com/smallbiznis/homekeep/internal/utility"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	lock.Module,
	cache.Module,
	utility.Module,
	expiry.Module,
	inventory.Module,
	consumption.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	utilitySvc     utilitydomain.Service
	inventorySvc   inventorydomain.Service
	consumptionSvc consumptiondomain.Service
	expirySvc      expirydomain.Service
	writeLimiter   *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	UtilitySvc     utilitydomain.Service
	InventorySvc   inventorydomain.Service
	ConsumptionSvc consumptiondomain.Service
	ExpirySvc      expirydomain.Service
	WriteLimiter   *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		utilitySvc:     p.UtilitySvc,
		inventorySvc:   p.InventorySvc,
		consumptionSvc: p.ConsumptionSvc,
		expirySvc:      p.ExpirySvc,
		writeLimiter:   p.WriteLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.GET("/utility-types", s.ListUtilityTypes)

	household := api.Group("/households/:household_id")
	write := s.WriteRateLimit()

	utilities := household.Group("/utilities/:utility_type_id")
	utilities.POST("/cost", s.CalculateUtilityCost)
	utilities.POST("/cost/between-readings", s.CalculateCostBetweenReadings)
	utilities.GET("/settings", s.GetUtilitySetting)
	utilities.PUT("/settings", write, s.UpsertUtilitySetting)
	utilities.GET("/tiers", s.ListUtilityTiers)
	utilities.PUT("/tiers", write, s.ReplaceUtilityTiers)
	utilities.GET("/readings", s.ListMeterReadings)
	utilities.POST("/readings", write, s.RecordMeterReading)

	inv := household.Group("/inventory")
	inv.POST("/items", write, s.AddInventoryItem)
	inv.GET("/items/:item_id", s.GetInventoryItem)
	inv.PATCH("/items/:item_id/quantity", write, s.ChangeInventoryQuantity)
	inv.GET("/items/:item_id/prediction", s.PredictStockDepletion)
	inv.POST("/changes", write, s.ApplyBulkInventoryChanges)

	shopping := household.Group("/shopping-history")
	shopping.POST("", write, s.RecordShoppingHistory)
	shopping.POST("/:entry_id/complete", write, s.CompleteShoppingHistory)

	household.GET("/tracking-settings", s.GetTrackingSettings)
	household.PUT("/tracking-settings", write, s.UpsertTrackingSettings)

	stats := household.Group("/consumption")
	stats.GET("/inventory", s.InventoryConsumptionStats)
	stats.GET("/shopping", s.ShoppingPatternStats)
	stats.GET("/combined", s.CombinedConsumptionStats)
	stats.GET("/suggestions", s.AutoSuggestions)
	stats.GET("/waste", s.WasteStatistics)
	stats.GET("/features/:feature", s.TrackingFeatureStatus)

	exp := household.Group("/expiry")
	exp.GET("/suggestion", s.ExpirySuggestion)
	exp.POST("/samples", write, s.RecordExpirySample)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

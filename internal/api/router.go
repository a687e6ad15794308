package api

import (
	"github.com/gin-gonic/gin"

	"github.com/wjiang/picktrace/internal/api/handler"
	"github.com/wjiang/picktrace/internal/api/middleware"
	"github.com/wjiang/picktrace/internal/service"
)

// RouterConfig holds router-level settings.
type RouterConfig struct {
	Mode        string
	CORSOrigins []string
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(
	channels *service.ChannelService,
	processing *service.ProcessingService,
	prices *service.PriceService,
	runner *service.Runner,
	cfg RouterConfig,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORSOrigins,
		AllowAllOrigins: len(cfg.CORSOrigins) == 0,
	}))

	healthHandler := handler.NewHealthHandler()
	channelHandler := handler.NewChannelHandler(channels, processing, prices, runner)
	stockHandler := handler.NewStockHandler(prices)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/channels", channelHandler.Create)
		v1.GET("/channels", channelHandler.List)
		v1.GET("/channels/:id", channelHandler.Get)
		v1.DELETE("/channels/:id", channelHandler.Delete)

		v1.POST("/channels/:id/process", channelHandler.Process)
		v1.POST("/channels/:id/cancel", channelHandler.Cancel)
		v1.POST("/channels/:id/refresh-prices", channelHandler.RefreshPrices)
		v1.POST("/channels/:id/backfill-prices", channelHandler.BackfillPrices)

		v1.GET("/channels/:id/logs", channelHandler.Logs)
		v1.GET("/channels/:id/stocks", channelHandler.Stocks)
		v1.GET("/channels/:id/stocks/:ticker", channelHandler.StockDrilldown)
		v1.GET("/channels/:id/timeline", channelHandler.Timeline)

		v1.GET("/stocks/:ticker/price", stockHandler.Price)
	}

	return r
}

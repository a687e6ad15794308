package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wjiang/picktrace/internal/service"
)

// StockHandler handles instrument-level endpoints.
type StockHandler struct {
	prices *service.PriceService
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(prices *service.PriceService) *StockHandler {
	return &StockHandler{prices: prices}
}

// Price handles GET /api/v1/stocks/:ticker/price. Resolution failures are
// reported in the payload rather than as an HTTP error, so clients can
// render a placeholder without special-casing.
func (h *StockHandler) Price(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))

	price, updatedAt, err := h.prices.CurrentPrice(c.Request.Context(), ticker)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"ticker": ticker,
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticker":     ticker,
		"price":      price,
		"updated_at": updatedAt,
	})
}

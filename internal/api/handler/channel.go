package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wjiang/picktrace/internal/api/middleware"
	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/service"
)

// ChannelHandler handles channel lifecycle and read-side endpoints.
type ChannelHandler struct {
	channels   *service.ChannelService
	processing *service.ProcessingService
	prices     *service.PriceService
	runner     *service.Runner
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(
	channels *service.ChannelService,
	processing *service.ProcessingService,
	prices *service.PriceService,
	runner *service.Runner,
) *ChannelHandler {
	return &ChannelHandler{
		channels:   channels,
		processing: processing,
		prices:     prices,
		runner:     runner,
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type createChannelRequest struct {
	URL             string `json:"url" binding:"required"`
	TimeRangeMonths int    `json:"time_range_months"`
}

// Create handles POST /api/v1/channels. The new channel is queued for
// processing immediately.
func (h *ChannelHandler) Create(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	ch, err := h.channels.Create(c.Request.Context(), req.URL, req.TimeRangeMonths)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.queueProcessing(c, ch.ID)
	c.JSON(http.StatusCreated, ch)
}

// List handles GET /api/v1/channels.
func (h *ChannelHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	channels, total, err := h.channels.List(c.Request.Context(), page, perPage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":    channels,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// Get handles GET /api/v1/channels/:id.
func (h *ChannelHandler) Get(c *gin.Context) {
	ch, err := h.channels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Delete handles DELETE /api/v1/channels/:id.
func (h *ChannelHandler) Delete(c *gin.Context) {
	if err := h.channels.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Process handles POST /api/v1/channels/:id/process. The run happens
// in the background; the reset channel is returned immediately.
func (h *ChannelHandler) Process(c *gin.Context) {
	id := c.Param("id")
	ch, err := h.channels.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if ch.Status == domain.ChannelStatusProcessing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel is already processing"})
		return
	}

	h.queueProcessing(c, id)
	ch.Status = domain.ChannelStatusPending
	c.JSON(http.StatusOK, ch)
}

// Cancel handles POST /api/v1/channels/:id/cancel.
func (h *ChannelHandler) Cancel(c *gin.Context) {
	if err := h.processing.CancelChannel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// RefreshPrices handles POST /api/v1/channels/:id/refresh-prices. Known
// prices return immediately; missing ones are refreshed in the background.
func (h *ChannelHandler) RefreshPrices(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.channels.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	prices, remaining, err := h.prices.RefreshChannelPrices(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	if len(remaining) > 0 {
		log := middleware.GetLogger(c)
		if serr := h.runner.Submit(service.Task{
			Name: "price-refresh:" + id,
			Fn: func(ctx context.Context) error {
				_, err := h.prices.BatchCurrentPrices(ctx, remaining)
				return err
			},
		}); serr != nil {
			log.WithError(serr).Warn("Failed to queue background price refresh")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"prices":     prices,
		"updated_at": time.Now().UTC(),
	})
}

// BackfillPrices handles POST /api/v1/channels/:id/backfill-prices. The
// backfill runs in the background.
func (h *ChannelHandler) BackfillPrices(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.channels.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	if err := h.runner.Submit(service.Task{
		Name: "price-backfill:" + id,
		Fn: func(ctx context.Context) error {
			_, err := h.prices.BackfillHistorical(ctx, id)
			return err
		},
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// Logs handles GET /api/v1/channels/:id/logs.
func (h *ChannelHandler) Logs(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	logs, err := h.channels.Logs(c.Request.Context(), c.Param("id"), since, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": logs})
}

// Stocks handles GET /api/v1/channels/:id/stocks.
func (h *ChannelHandler) Stocks(c *gin.Context) {
	rollups, err := h.channels.ChannelStocks(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rollups})
}

// Timeline handles GET /api/v1/channels/:id/timeline.
func (h *ChannelHandler) Timeline(c *gin.Context) {
	timeline, err := h.channels.ChannelTimeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": timeline})
}

// StockDrilldown handles GET /api/v1/channels/:id/stocks/:ticker.
func (h *ChannelHandler) StockDrilldown(c *gin.Context) {
	entries, err := h.channels.StockDrilldown(c.Request.Context(), c.Param("id"), c.Param("ticker"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// queueProcessing submits a pipeline run for the channel, resetting it to
// pending first.
func (h *ChannelHandler) queueProcessing(c *gin.Context, channelID string) {
	log := middleware.GetLogger(c)
	if err := h.runner.Submit(service.Task{
		Name: "process-channel:" + channelID,
		Fn: func(ctx context.Context) error {
			return h.processing.ProcessChannel(ctx, channelID)
		},
	}); err != nil {
		log.WithError(err).Error("Failed to queue channel processing")
	}
}

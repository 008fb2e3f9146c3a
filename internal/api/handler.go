package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"pricesync-service/internal/events"
	"pricesync-service/internal/models"
	"pricesync-service/internal/syncerr"
	"pricesync-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultAuditLimit = 100

// StoreDirectory reads store configurations for the dashboard endpoints.
type StoreDirectory interface {
	GetStoreConfig(ctx context.Context, id string) (*models.StoreConfig, error)
	GetAllStoreConfigs(ctx context.Context) ([]models.StoreConfig, error)
}

// StatusReader serves sync outcomes and in-flight run tallies.
type StatusReader interface {
	GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error)
	LiveProgress(ctx context.Context, storeID string) (repriced, pending, unlisted int, lastError string, err error)
}

// ProductStatusReader lists the per-product classifications for one store.
type ProductStatusReader interface {
	GetProductStatuses(ctx context.Context, storeID string) ([]models.ProductStatusEntry, error)
}

// AuditReader lists recorded price changes, newest first.
type AuditReader interface {
	GetAuditEntries(ctx context.Context, storeID string, limit int) ([]models.AuditEntry, error)
}

// SyncTrigger launches a manual sync run.
type SyncTrigger interface {
	TriggerNow(ctx context.Context, storeID string) error
	IsRunning(storeID string) bool
}

// Handler contains HTTP handlers
type Handler struct {
	stores   StoreDirectory
	status   StatusReader
	products ProductStatusReader
	audit    AuditReader
	trigger  SyncTrigger
	hub      *events.Hub
}

// NewHandler creates a new HTTP handler
func NewHandler(
	stores StoreDirectory,
	status StatusReader,
	products ProductStatusReader,
	audit AuditReader,
	trigger SyncTrigger,
	hub *events.Hub,
) *Handler {
	return &Handler{
		stores:   stores,
		status:   status,
		products: products,
		audit:    audit,
		trigger:  trigger,
		hub:      hub,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stores", h.listStores)
		v1.GET("/stores/:id/status", h.getStoreStatus)
		v1.GET("/stores/:id/products", h.getProductStatuses)
		v1.GET("/stores/:id/audit", h.getAuditEntries)
		v1.GET("/stores/:id/events", h.streamEvents)
		v1.POST("/stores/:id/sync", h.triggerSync)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listStores returns all configured stores
func (h *Handler) listStores(c *gin.Context) {
	stores, err := h.stores.GetAllStoreConfigs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list stores",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stores": stores})
}

// getStoreStatus returns the latest sync outcome for a store
func (h *Handler) getStoreStatus(c *gin.Context) {
	cfg, ok := h.lookupStore(c)
	if !ok {
		return
	}

	outcome, err := h.status.GetLatestOutcome(c.Request.Context(), cfg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load sync status",
			"details": err.Error(),
		})
		return
	}

	syncing := h.trigger.IsRunning(cfg.ID)
	resp := gin.H{
		"store_id": cfg.ID,
		"syncing":  syncing,
	}
	if outcome != nil {
		resp["last_run"] = outcome
	}
	if syncing {
		repriced, pending, unlisted, lastError, err := h.status.LiveProgress(c.Request.Context(), cfg.ID)
		if err == nil {
			progress := gin.H{
				"repriced": repriced,
				"pending":  pending,
				"unlisted": unlisted,
			}
			if lastError != "" {
				progress["last_error"] = lastError
			}
			resp["progress"] = progress
		}
	}
	c.JSON(http.StatusOK, resp)
}

// getProductStatuses returns per-product sync classifications for a store
func (h *Handler) getProductStatuses(c *gin.Context) {
	cfg, ok := h.lookupStore(c)
	if !ok {
		return
	}

	statuses, err := h.products.GetProductStatuses(c.Request.Context(), cfg.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load product statuses",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"store_id": cfg.ID,
		"products": statuses,
	})
}

// getAuditEntries returns recent price changes for a store
func (h *Handler) getAuditEntries(c *gin.Context) {
	cfg, ok := h.lookupStore(c)
	if !ok {
		return
	}

	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit",
			})
			return
		}
		limit = parsed
	}

	entries, err := h.audit.GetAuditEntries(c.Request.Context(), cfg.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load audit entries",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"store_id": cfg.ID,
		"entries":  entries,
	})
}

// triggerSync launches a manual sync run for a store
func (h *Handler) triggerSync(c *gin.Context) {
	cfg, ok := h.lookupStore(c)
	if !ok {
		return
	}

	if err := h.trigger.TriggerNow(c.Request.Context(), cfg.ID); err != nil {
		var se *syncerr.Error
		if errors.As(err, &se) && se.Kind == syncerr.KindValidation {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Sync already running",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to trigger sync",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"store_id": cfg.ID,
		"status":   "started",
	})
}

// streamEvents pushes sync progress events for a store over SSE
func (h *Handler) streamEvents(c *gin.Context) {
	cfg, ok := h.lookupStore(c)
	if !ok {
		return
	}

	ch, cancel := h.hub.Subscribe(cfg.ID)
	defer cancel()

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("sync", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// lookupStore resolves the :id path param, writing the error response itself.
func (h *Handler) lookupStore(c *gin.Context) (*models.StoreConfig, bool) {
	cfg, err := h.stores.GetStoreConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load store",
			"details": err.Error(),
		})
		return nil, false
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Store not found",
		})
		return nil, false
	}
	return cfg, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

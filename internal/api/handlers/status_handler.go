package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/iotguard/guardd/internal/config"
	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/services"
)

// StatusHandler serves the dashboard read endpoints: active policy, engine
// stats, recent decisions and tracked sources.
type StatusHandler struct {
	store   *config.Store
	engine  *engine.Engine
	actions *services.ActionService
}

func NewStatusHandler(store *config.Store, e *engine.Engine, actions *services.ActionService) *StatusHandler {
	return &StatusHandler{store: store, engine: e, actions: actions}
}

// GetStatus returns the active decision policy and engine counters.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	snap := h.store.Current()
	c.JSON(http.StatusOK, gin.H{
		"policy": gin.H{
			"threshold":     snap.Threshold,
			"grace":         snap.Grace,
			"window":        snap.Window,
			"cooldown_sec":  snap.CooldownSec,
			"instant_block": snap.InstantBlock,
			"dry_run":       snap.DryRun,
			"hook":          snap.Hook,
		},
		"engine": h.engine.Stats(),
	})
}

// ListDecisions returns recent action records, newest first.
func (h *StatusHandler) ListDecisions(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.actions.ListRecent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list decisions"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// ListSources returns every source with live decision state.
func (h *StatusHandler) ListSources(c *gin.Context) {
	sources := h.engine.Sources()
	if sources == nil {
		sources = []engine.SourceInfo{}
	}
	c.JSON(http.StatusOK, sources)
}

// ListBlocked returns the blocked-source registry.
func (h *StatusHandler) ListBlocked(c *gin.Context) {
	blocked, err := h.actions.ListBlocked()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list blocked sources"})
		return
	}
	c.JSON(http.StatusOK, blocked)
}

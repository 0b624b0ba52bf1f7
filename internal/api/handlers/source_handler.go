package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/services"
	"github.com/iotguard/guardd/internal/util"
)

// SourceHandler handles manual source operations (unblock).
type SourceHandler struct {
	engine  *engine.Engine
	actions *services.ActionService
}

func NewSourceHandler(e *engine.Engine, actions *services.ActionService) *SourceHandler {
	return &SourceHandler{engine: e, actions: actions}
}

// Unblock resets a source's decision state back to monitoring and removes it
// from the blocked registry. The firewall rule itself must be removed with
// the platform's unblock tooling; the engine only forgets its belief.
func (h *SourceHandler) Unblock(c *gin.Context) {
	sourceID := c.Param("id")
	if sourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source id required"})
		return
	}

	existed := h.engine.Unblock(sourceID)
	if err := h.actions.ClearBlocked(sourceID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear blocked registry"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source_id": util.SanitizeForLog(sourceID),
		"tracked":   existed,
		"status":    "monitoring",
	})
}

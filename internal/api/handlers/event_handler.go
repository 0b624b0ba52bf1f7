package handlers

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/iotguard/guardd/internal/engine"
)

// EventHandler ingests score events from the classifier collaborator.
type EventHandler struct {
	engine *engine.Engine
}

func NewEventHandler(e *engine.Engine) *EventHandler {
	return &EventHandler{engine: e}
}

type eventRequest struct {
	SourceID    string   `json:"source_id" binding:"required"`
	WindowIndex int64    `json:"window_index"`
	Score       *float64 `json:"score" binding:"required"`
}

// Ingest queues one (source, window, score) observation. The decision runs
// asynchronously on the source's shard; a malformed event is rejected here
// and never reaches the engine.
func (h *EventHandler) Ingest(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_id and score required"})
		return
	}

	score := *req.Score
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score must be in [0,1]"})
		return
	}

	h.engine.Submit(engine.Event{
		SourceID:    req.SourceID,
		WindowIndex: req.WindowIndex,
		Score:       score,
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

package worker

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/models"
)

// EnqueueScheduleHandler queues a scheduled edition for the worker instead of
// running it in the request.
func EnqueueScheduleHandler(client *Client, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			EditionType string   `json:"edition_type" binding:"required"`
			Regions     []string `json:"regions"`
			Languages   []string `json:"languages"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "edition_type is required"})
			return
		}
		editionType, err := models.ParseEditionType(req.EditionType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := client.EnqueueScheduledEdition(c.Request.Context(), ScheduledEditionPayload{
			EditionType: editionType,
			Regions:     req.Regions,
			Languages:   req.Languages,
		})
		if err != nil {
			logger.Error("Failed to enqueue scheduled edition", "edition_type", editionType, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": id})
	}
}

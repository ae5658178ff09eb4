package schedule

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/models"
)

// TriggerRequest is the body of an external schedule trigger. Empty region
// or language lists fall back to the configured defaults.
type TriggerRequest struct {
	EditionType   string     `json:"edition_type" binding:"required"`
	Regions       []string   `json:"regions"`
	Languages     []string   `json:"languages"`
	ScheduledTime *time.Time `json:"scheduled_time"`
}

// Defaults are the regions and languages a trigger covers unless it names
// its own.
type Defaults struct {
	Regions   []string
	Languages []string
}

// Trigger resolves req against defaults.
func (d Defaults) Trigger(req TriggerRequest) (Trigger, error) {
	editionType, err := models.ParseEditionType(req.EditionType)
	if err != nil {
		return Trigger{}, err
	}
	t := Trigger{EditionType: editionType, Regions: req.Regions, Languages: req.Languages}
	if len(t.Regions) == 0 {
		t.Regions = d.Regions
	}
	if len(t.Languages) == 0 {
		t.Languages = d.Languages
	}
	if req.ScheduledTime != nil {
		t.ScheduledTime = *req.ScheduledTime
	}
	return t, nil
}

// TriggerHandler runs a scheduled edition synchronously and returns its
// summary.
func TriggerHandler(driver *Driver, defaults Defaults) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "edition_type is required"})
			return
		}
		trigger, err := defaults.Trigger(req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		summary, err := driver.Run(c.Request.Context(), trigger)
		if errors.Is(err, ErrEmptyTrigger) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil && summary == nil {
			driver.logger.Error("Scheduled run failed to start", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
			return
		}
		if err != nil {
			driver.logger.Error("Scheduled run log not finalized", "run_id", summary.RunID, "error", err)
		}
		c.JSON(http.StatusOK, summary)
	}
}

// RunsHandler lists recent runs.
func RunsHandler(driver *Driver) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		runs, err := driver.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": runs})
	}
}

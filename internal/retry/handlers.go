package retry

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/models"
)

// RecordData is a failed generation as shown to operators.
type RecordData struct {
	ID           uint    `json:"id"`
	Key          string  `json:"key"`
	State        string  `json:"state"`
	RetryCount   int     `json:"retryCount"`
	ErrorMessage string  `json:"errorMessage"`
	NextRetryAt  string  `json:"nextRetryAt"`
	ResolvedAt   *string `json:"resolvedAt,omitempty"`
}

func newRecordData(rec *models.FailedGeneration, maxRetries int) RecordData {
	d := RecordData{
		ID:           rec.ID,
		Key:          rec.Key().String(),
		State:        rec.State(maxRetries),
		RetryCount:   rec.RetryCount,
		ErrorMessage: rec.ErrorMessage,
		NextRetryAt:  rec.NextRetryAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if rec.ResolvedAt != nil {
		s := rec.ResolvedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		d.ResolvedAt = &s
	}
	return d
}

// ListHandler lists failed generations, optionally filtered by ?state=.
func ListHandler(queue *Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		recs, err := queue.List(c.Request.Context(), c.Query("state"), limit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data := make([]RecordData, 0, len(recs))
		for i := range recs {
			data = append(data, newRecordData(&recs[i], queue.MaxRetries()))
		}
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}

// ResolveHandler marks a record resolved by hand, whatever its state.
func ResolveHandler(queue *Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		rec, err := queue.Resolve(c.Request.Context(), uint(id))
		if errors.Is(err, ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		if err != nil {
			queue.logger.Error("Failed to resolve retry record", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve"})
			return
		}
		queue.logger.Info("Retry record resolved by operator", "id", rec.ID, "key", rec.Key().String())
		c.JSON(http.StatusOK, gin.H{"data": newRecordData(rec, queue.MaxRetries())})
	}
}

// SweepHandler runs one sweep synchronously and returns its summary.
func SweepHandler(sweeper *Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := sweeper.SweepDue(c.Request.Context())
		if err != nil {
			sweeper.logger.Error("Retry sweep failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

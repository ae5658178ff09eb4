package editions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/auth"
	"github.com/jimdaga/newscast/internal/plans"
	"github.com/jimdaga/newscast/internal/quota"
)

// GenerateHandler serves or generates today's edition for the signed-in user.
func GenerateHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.UserFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		plan, err := plans.Parse(user.Plan)
		if err != nil {
			svc.logger.Error("User has unknown plan", "user_id", user.ID, "plan", user.Plan)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "account plan misconfigured"})
			return
		}

		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "editionType, region and language are required"})
			return
		}

		result, err := svc.Generate(c.Request.Context(), Requester{UserID: user.ID, Plan: plan}, req)
		if err != nil {
			WriteError(c, err)
			return
		}

		c.JSON(http.StatusOK, GenerateResponse{
			Cached:   result.Cached,
			Shared:   result.Shared,
			Degraded: result.Edition.Degraded(),
			Data:     NewEditionData(result.Edition),
			Stages:   result.Stages(),
		})
	}
}

// GetHandler returns a stored edition by id.
func GetHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edition id"})
			return
		}
		edition, err := svc.Edition(c.Request.Context(), uint(id))
		if err != nil {
			WriteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": NewEditionData(edition), "stages": StagesOf(edition)})
	}
}

// UsageHandler reports today's usage against the user's plan limits.
func UsageHandler(ledger *quota.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.UserFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		plan, err := plans.Parse(user.Plan)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "account plan misconfigured"})
			return
		}
		limits, _ := plans.LimitsFor(plan)
		usage, err := ledger.Usage(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"plan":     plan,
			"date":     usage.UsageDate,
			"editions": gin.H{"used": usage.EditionsCount, "limit": limits.DailyEditions},
			"research": gin.H{"used": usage.ResearchCount, "limit": limits.DailyResearch},
			"voices":   gin.H{"used": usage.VoiceCount, "limit": limits.DailyVoices},
		})
	}
}

// WriteError maps orchestration errors to HTTP responses. Quota and plan
// errors carry an upgrade hint; generation errors only expose their
// human-readable message.
func WriteError(c *gin.Context, err error) {
	var limitErr *quota.LimitExceededError
	var planErr *PlanRestrictionError
	var genErr *GenerationError

	switch {
	case errors.As(err, &limitErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":   "quota_exceeded",
			"upgrade": true,
			"limit":   limitErr.Limit,
			"used":    limitErr.Used,
			"message": "You have reached your daily limit. Upgrade your plan for more.",
		})
	case errors.As(err, &planErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "plan_restricted",
			"upgrade": true,
			"message": planErr.Error(),
		})
	case errors.Is(err, ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.As(err, &genErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           "generation_failed",
			"stage":           genErr.Stage,
			"message":         genErr.Message,
			"retry_scheduled": genErr.RetryScheduled,
		})
	case errors.Is(err, plans.ErrUnknownPlan):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account plan misconfigured"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

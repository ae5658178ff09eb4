package voices

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/auth"
	"github.com/jimdaga/newscast/internal/coalesce"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/plans"
)

// ProfilesHandler lists the available voice profiles.
func ProfilesHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"profiles": store.Profiles()})
	}
}

// CreateHandler returns the requested voice variant of an edition, rendering
// it on first request.
func CreateHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.UserFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		plan, err := plans.Parse(user.Plan)
		if err != nil {
			store.logger.Error("User has unknown plan", "user_id", user.ID, "plan", user.Plan)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "account plan misconfigured"})
			return
		}
		editionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edition id"})
			return
		}

		variant, created, err := store.Request(c.Request.Context(), user.ID, plan, uint(editionID), c.Param("profile"))
		if err != nil {
			writeError(c, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"created": created, "data": variant})
	}
}

// ListHandler returns the rendered variants of an edition.
func ListHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		editionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid edition id"})
			return
		}
		variants, err := store.List(c.Request.Context(), uint(editionID))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list voice variants"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": variants})
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnknownProfile):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_profile", "message": err.Error()})
	case errors.Is(err, ErrEditionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, ErrScriptNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "script_not_ready", "message": "The edition script is still being written. Try again shortly."})
	case errors.Is(err, ErrPlanRestricted):
		c.JSON(http.StatusForbidden, gin.H{"error": "plan_restricted", "upgrade": true, "message": err.Error()})
	case errors.Is(err, ErrSynthesisFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation_failed", "stage": "audio", "message": "We could not render this voice right now."})
	case errors.Is(err, coalesce.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "generation_timeout"})
	default:
		editions.WriteError(c, err)
	}
}

package share

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/newscast/internal/auth"
	"github.com/jimdaga/newscast/internal/editions"
	"github.com/jimdaga/newscast/internal/models"
	"github.com/jimdaga/newscast/internal/plans"
)

// LinkData is the client-facing share link.
type LinkData struct {
	ID          uint   `json:"id"`
	Token       string `json:"token"`
	URL         string `json:"url"`
	EditionID   uint   `json:"editionId"`
	CreatedAt   string `json:"createdAt"`
	ExpiresAt   string `json:"expiresAt"`
	AccessCount int64  `json:"accessCount"`
}

func newLinkData(l *models.ShareLink) LinkData {
	return LinkData{
		ID:          l.ID,
		Token:       l.ShareToken,
		URL:         "/s/" + l.ShareToken,
		EditionID:   l.EditionID,
		CreatedAt:   l.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:   l.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		AccessCount: l.AccessCount,
	}
}

// VoiceData is one narration available to a share link listener.
type VoiceData struct {
	Profile  string `json:"profile"`
	AudioURL string `json:"audioUrl"`
}

// ResolveResponse is the public body of a resolved share link.
type ResolveResponse struct {
	Data      editions.EditionData `json:"data"`
	Voices    []VoiceData          `json:"voices"`
	AudioURLs map[string]string    `json:"audioUrls"`
	ExpiresAt string               `json:"expiresAt"`
}

func newResolveResponse(res *Resolution) ResolveResponse {
	out := ResolveResponse{
		Data:      editions.NewEditionData(res.Edition),
		Voices:    []VoiceData{},
		AudioURLs: map[string]string{},
		ExpiresAt: res.Link.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	// Internal ids stay private on the public route.
	out.Data.ID = 0
	if res.Edition.AudioURL != nil {
		out.AudioURLs["default"] = *res.Edition.AudioURL
	}
	for _, v := range res.Voices {
		out.Voices = append(out.Voices, VoiceData{Profile: v.VoiceProfileID, AudioURL: v.AudioURL})
		out.AudioURLs[v.VoiceProfileID] = v.AudioURL
	}
	return out
}

// CreateHandler issues a share link to an edition.
func CreateHandler(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, plan, ok := requireUser(c, reg)
		if !ok {
			return
		}
		editionID, ok := parseID(c, "id")
		if !ok {
			return
		}

		link, err := reg.CreateFor(c.Request.Context(), user.ID, plan, editionID)
		if err != nil {
			writeError(c, reg, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": newLinkData(link)})
	}
}

// ListHandler lists the caller's links to an edition.
func ListHandler(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _, ok := requireUser(c, reg)
		if !ok {
			return
		}
		editionID, ok := parseID(c, "id")
		if !ok {
			return
		}

		links, err := reg.ListForEdition(c.Request.Context(), editionID, user.ID)
		if err != nil {
			writeError(c, reg, err)
			return
		}
		data := make([]LinkData, 0, len(links))
		for i := range links {
			data = append(data, newLinkData(&links[i]))
		}
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}

// RevokeHandler deletes one of the caller's links.
func RevokeHandler(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _, ok := requireUser(c, reg)
		if !ok {
			return
		}
		shareID, ok := parseID(c, "id")
		if !ok {
			return
		}

		if err := reg.Revoke(c.Request.Context(), shareID, user.ID); err != nil {
			writeError(c, reg, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ResolveHandler serves a share link to anyone holding the token.
func ResolveHandler(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := reg.Resolve(c.Request.Context(), c.Param("token"), Access{
			Address:   c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			writeError(c, reg, err)
			return
		}
		c.JSON(http.StatusOK, newResolveResponse(res))
	}
}

func requireUser(c *gin.Context, reg *Registry) (*models.User, plans.Plan, bool) {
	user, ok := auth.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, "", false
	}
	plan, err := plans.Parse(user.Plan)
	if err != nil {
		reg.logger.Error("User has unknown plan", "user_id", user.ID, "plan", user.Plan)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account plan misconfigured"})
		return nil, "", false
	}
	return user, plan, true
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func writeError(c *gin.Context, reg *Registry, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrEditionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, ErrExpired):
		c.JSON(http.StatusGone, gin.H{"error": "expired", "message": "This share link has expired."})
	case errors.Is(err, ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, ErrPlanRestricted):
		c.JSON(http.StatusForbidden, gin.H{"error": "plan_restricted", "upgrade": true, "message": err.Error()})
	default:
		reg.logger.Error("Share request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

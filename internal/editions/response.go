package editions

import "github.com/jimdaga/newscast/internal/models"

// EditionData is the client-facing edition payload.
type EditionData struct {
	ID           uint                   `json:"id,omitempty"`
	EditionType  models.EditionType     `json:"editionType"`
	Region       string                 `json:"region"`
	Language     string                 `json:"language"`
	Date         string                 `json:"date"`
	Text         string                 `json:"text"`
	Script       string                 `json:"script"`
	Audio        *string                `json:"audio"`
	ImageURL     *string                `json:"imageUrl"`
	Links        []models.GroundingLink `json:"links"`
	FlashSummary *string                `json:"flashSummary"`
	GeneratedAt  string                 `json:"generatedAt"`
	ExpiresAt    string                 `json:"expiresAt"`
}

// NewEditionData converts a stored edition.
func NewEditionData(e *models.Edition) EditionData {
	links := []models.GroundingLink(e.GroundingLinks)
	if links == nil {
		links = []models.GroundingLink{}
	}
	return EditionData{
		ID:           e.ID,
		EditionType:  e.EditionType,
		Region:       e.Region,
		Language:     e.Language,
		Date:         e.EditionDate,
		Text:         e.Content,
		Script:       e.Script,
		Audio:        e.AudioURL,
		ImageURL:     e.ImageURL,
		Links:        links,
		FlashSummary: e.FlashSummary,
		GeneratedAt:  e.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		ExpiresAt:    e.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// GenerateResponse is the body of a successful generation request.
type GenerateResponse struct {
	Cached   bool          `json:"cached"`
	Shared   bool          `json:"shared,omitempty"`
	Degraded bool          `json:"degraded"`
	Data     EditionData   `json:"data"`
	Stages   []StageResult `json:"stages"`
}

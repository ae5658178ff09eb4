// Package generator is the client for the external generative AI pipeline
// that searches the news, writes a two-host script, renders speech and
// draws cover art.
package generator

import "github.com/jimdaga/newscast/internal/models"

// Stage names, used in logs and stage results
const (
	StageSearch = "search"
	StageScript = "script"
	StageAudio  = "audio"
	StageImage  = "image"
)

// SearchResult is the grounded news summary for an edition.
type SearchResult struct {
	Content      string                 `json:"content"`
	Links        []models.GroundingLink `json:"links"`
	FlashSummary string                 `json:"flash_summary"`
}

// Audio is a rendered narration.
type Audio struct {
	URL          string  `json:"url"`
	DurationMs   int64   `json:"duration_ms"`
	CostEstimate float64 `json:"cost_estimate"`
}

type searchRequest struct {
	EditionType string `json:"edition_type"`
	Region      string `json:"region"`
	Language    string `json:"language"`
	Date        string `json:"date"`
}

type scriptRequest struct {
	searchRequest
	Content string   `json:"content"`
	Hosts   []string `json:"hosts"`
}

type scriptResponse struct {
	Script string `json:"script"`
}

type audioRequest struct {
	Script string `json:"script"`
	Voice  string `json:"voice"`
}

type imageRequest struct {
	searchRequest
	Content string `json:"content"`
}

type imageResponse struct {
	ImageURL string `json:"image_url"`
}

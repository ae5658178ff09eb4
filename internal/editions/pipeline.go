package editions

import (
	"context"

	"github.com/jimdaga/newscast/internal/generator"
	"github.com/jimdaga/newscast/internal/models"
)

// StageResult is the outcome of one pipeline stage.
type StageResult struct {
	Stage   string `json:"stage"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

var stageMessages = map[string]string{
	generator.StageScript: "script generation failed; text is available without narration",
	generator.StageAudio:  "audio generation failed; text and script are available",
	generator.StageImage:  "cover image generation failed",
}

// StagesOf reports the stage outcomes recorded on an edition. The search
// stage is always ok for a stored edition.
func StagesOf(e *models.Edition) []StageResult {
	if e == nil {
		return nil
	}
	return []StageResult{
		{Stage: generator.StageSearch, Status: models.StageStatusOK},
		stage(generator.StageScript, e.ScriptStatus),
		stage(generator.StageAudio, e.AudioStatus),
		stage(generator.StageImage, e.ImageStatus),
	}
}

func stage(name, status string) StageResult {
	r := StageResult{Stage: name, Status: statusOrOK(status)}
	switch r.Status {
	case models.StageStatusFailed:
		r.Message = stageMessages[name]
	case models.StageStatusSkipped:
		r.Message = "skipped because the script is unavailable"
	}
	return r
}

// pipeline runs search, script, audio and cover art for key. Only a search
// failure fails the run; later stages degrade to a recorded status.
func (s *Service) pipeline(ctx context.Context, key models.EditionKey) (Payload, error) {
	search, err := s.gen.Search(ctx, key)
	if err != nil {
		s.logger.Error("Generation stage failed", "key", key.String(), "stage", generator.StageSearch, "error", err)
		return Payload{}, &GenerationError{Key: key, Stage: generator.StageSearch, Message: "news search failed", cause: err}
	}

	payload := Payload{
		Content:      search.Content,
		Links:        search.Links,
		ScriptStatus: models.StageStatusOK,
		AudioStatus:  models.StageStatusOK,
		ImageStatus:  models.StageStatusOK,
	}
	if search.FlashSummary != "" {
		summary := search.FlashSummary
		payload.FlashSummary = &summary
	}

	script, err := s.gen.WriteScript(ctx, key, search.Content, s.hosts)
	if err != nil {
		s.logger.Warn("Generation stage degraded", "key", key.String(), "stage", generator.StageScript, "error", err)
		payload.ScriptStatus = models.StageStatusFailed
	} else {
		payload.Script = script
	}

	if payload.Script == "" {
		payload.AudioStatus = models.StageStatusSkipped
	} else if audio, err := s.gen.SynthesizeAudio(ctx, payload.Script, s.voice); err != nil {
		s.logger.Warn("Generation stage degraded", "key", key.String(), "stage", generator.StageAudio, "error", err)
		payload.AudioStatus = models.StageStatusFailed
	} else {
		url := audio.URL
		payload.AudioURL = &url
	}

	if imageURL, err := s.gen.RenderCover(ctx, key, search.Content); err != nil {
		s.logger.Warn("Generation stage degraded", "key", key.String(), "stage", generator.StageImage, "error", err)
		payload.ImageStatus = models.StageStatusFailed
	} else {
		payload.ImageURL = &imageURL
	}

	return payload, nil
}

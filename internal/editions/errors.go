package editions

import (
	"errors"
	"fmt"

	"github.com/jimdaga/newscast/internal/models"
)

// ErrInvalidRequest is returned for malformed generation requests.
var ErrInvalidRequest = errors.New("invalid edition request")

// PlanRestrictionError is returned when a region or language is outside the
// caller's plan.
type PlanRestrictionError struct {
	Field string
	Value string
}

func (e *PlanRestrictionError) Error() string {
	return fmt.Sprintf("%s %q is not included in your plan", e.Field, e.Value)
}

// GenerationError is a pipeline failure as presented to callers. Message is
// human readable and never contains provider output; the underlying cause is
// only reachable through errors.Unwrap for logging.
type GenerationError struct {
	Key     models.EditionKey
	Stage   string
	Message string
	// RetryScheduled is true when the failure left a pending retry record.
	RetryScheduled bool
	cause          error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s (%s stage)", e.Message, e.Stage)
}

func (e *GenerationError) Unwrap() error { return e.cause }

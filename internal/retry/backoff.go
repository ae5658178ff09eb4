package retry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultMaxRetries is the number of sweep attempts before a record is
// exhausted.
const DefaultMaxRetries = 3

// DefaultBatchSize bounds how many records one sweep attempts.
const DefaultBatchSize = 50

// Backoff is a lookup table of retry delays indexed by attempt number.
type Backoff struct {
	delays []time.Duration
}

// DefaultBackoff waits 2, 5 and then 10 minutes.
func DefaultBackoff() Backoff {
	return Backoff{delays: []time.Duration{2 * time.Minute, 5 * time.Minute, 10 * time.Minute}}
}

// NewBackoff validates that delays are positive and strictly increasing.
func NewBackoff(delays ...time.Duration) (Backoff, error) {
	if len(delays) == 0 {
		return Backoff{}, errors.New("backoff table is empty")
	}
	for i, d := range delays {
		if d <= 0 {
			return Backoff{}, fmt.Errorf("backoff delay %d must be positive, got %s", i+1, d)
		}
		if i > 0 && d <= delays[i-1] {
			return Backoff{}, fmt.Errorf("backoff delays must increase: %s after %s", d, delays[i-1])
		}
	}
	return Backoff{delays: append([]time.Duration(nil), delays...)}, nil
}

// ParseBackoff parses a comma separated list of durations such as "2m,5m,10m".
func ParseBackoff(s string) (Backoff, error) {
	var delays []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return Backoff{}, fmt.Errorf("invalid backoff delay %q: %w", part, err)
		}
		delays = append(delays, d)
	}
	return NewBackoff(delays...)
}

// Delay returns the wait before attempt (1-based). Attempts past the end of
// the table reuse the last delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if len(b.delays) == 0 {
		return DefaultBackoff().Delay(attempt)
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(b.delays) {
		return b.delays[len(b.delays)-1]
	}
	return b.delays[attempt-1]
}

// String renders the table in ParseBackoff's format.
func (b Backoff) String() string {
	parts := make([]string, len(b.delays))
	for i, d := range b.delays {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

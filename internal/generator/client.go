package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jimdaga/newscast/internal/models"
)

// DefaultHosts are the speaker labels scripts are written with.
var DefaultHosts = []string{"Alex", "Sam"}

// Client handles communication with the generation service
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	stubMode   bool
	stubDelay  time.Duration
	validator  *responseValidator
}

// NewClient creates a new generation client. In stub mode no requests are
// made and canned content is returned after stubDelay.
func NewClient(baseURL, secret string, timeout time.Duration, stubMode bool, stubDelay time.Duration) (*Client, error) {
	validator, err := newResponseValidator()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		stubMode:   stubMode,
		stubDelay:  stubDelay,
		validator:  validator,
	}, nil
}

// Search runs the grounded news search for an edition.
func (c *Client) Search(ctx context.Context, key models.EditionKey) (*SearchResult, error) {
	if c.stubMode {
		if err := c.pause(ctx); err != nil {
			return nil, err
		}
		return stubSearch(key), nil
	}

	body, err := c.post(ctx, "/search", newSearchRequest(key))
	if err != nil {
		return nil, err
	}
	if err := c.validator.validateSearch(body); err != nil {
		return nil, err
	}

	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &result, nil
}

// WriteScript turns the searched content into a dialogue between hosts.
func (c *Client) WriteScript(ctx context.Context, key models.EditionKey, content string, hosts []string) (string, error) {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	if c.stubMode {
		if err := c.pause(ctx); err != nil {
			return "", err
		}
		return stubScript(key, hosts), nil
	}

	body, err := c.post(ctx, "/script", scriptRequest{
		searchRequest: newSearchRequest(key),
		Content:       content,
		Hosts:         hosts,
	})
	if err != nil {
		return "", err
	}

	var resp scriptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode script response: %w", err)
	}
	if strings.TrimSpace(resp.Script) == "" {
		return "", fmt.Errorf("script response was empty")
	}
	return resp.Script, nil
}

// SynthesizeAudio renders script with the named voice.
func (c *Client) SynthesizeAudio(ctx context.Context, script, voice string) (*Audio, error) {
	if c.stubMode {
		if err := c.pause(ctx); err != nil {
			return nil, err
		}
		words := len(strings.Fields(script))
		return &Audio{
			URL:          fmt.Sprintf("https://cdn.example.com/audio/%s/%d.mp3", voice, words),
			DurationMs:   int64(words) * 400,
			CostEstimate: float64(len(script)) * 0.000015,
		}, nil
	}

	body, err := c.post(ctx, "/audio", audioRequest{Script: script, Voice: voice})
	if err != nil {
		return nil, err
	}

	var audio Audio
	if err := json.Unmarshal(body, &audio); err != nil {
		return nil, fmt.Errorf("failed to decode audio response: %w", err)
	}
	if audio.URL == "" {
		return nil, fmt.Errorf("audio response missing url")
	}
	return &audio, nil
}

// RenderCover generates cover art for an edition and returns its URL.
func (c *Client) RenderCover(ctx context.Context, key models.EditionKey, content string) (string, error) {
	if c.stubMode {
		if err := c.pause(ctx); err != nil {
			return "", err
		}
		return fmt.Sprintf("https://cdn.example.com/covers/%s-%s-%s-%s.png", key.Type, key.Region, key.Language, key.Date), nil
	}

	body, err := c.post(ctx, "/image", imageRequest{searchRequest: newSearchRequest(key), Content: content})
	if err != nil {
		return "", err
	}

	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode image response: %w", err)
	}
	if resp.ImageURL == "" {
		return "", fmt.Errorf("image response missing image_url")
	}
	return resp.ImageURL, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Generator-Secret", c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) pause(ctx context.Context) error {
	if c.stubDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.stubDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newSearchRequest(key models.EditionKey) searchRequest {
	return searchRequest{
		EditionType: string(key.Type),
		Region:      key.Region,
		Language:    key.Language,
		Date:        key.Date,
	}
}

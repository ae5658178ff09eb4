package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/newscast/internal/models"
)

// Task type constants
const (
	TaskScheduledEdition = "edition:scheduled"
	TaskRetrySweep       = "retry:sweep"
)

// ScheduledEditionPayload is the payload of a scheduled edition task. Empty
// region or language lists use the configured defaults.
type ScheduledEditionPayload struct {
	EditionType models.EditionType `json:"edition_type"`
	Regions     []string           `json:"regions,omitempty"`
	Languages   []string           `json:"languages,omitempty"`
}

// NewScheduledEditionTask builds the task for one edition trigger. The
// scheduled run does not retry inline; failed combinations go to the retry
// queue, so the task itself is retried only when the run cannot start.
func NewScheduledEditionTask(payload ScheduledEditionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskScheduledEdition,
		data,
		asynq.MaxRetry(2),
		asynq.Timeout(2*time.Hour),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Hour),
	), nil
}

// NewRetrySweepTask builds the periodic retry sweep task.
func NewRetrySweepTask() *asynq.Task {
	return asynq.NewTask(
		TaskRetrySweep,
		nil,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Unique(4*time.Minute),
	)
}

// Client enqueues worker tasks.
type Client struct {
	client *asynq.Client
}

// NewClient connects an enqueue client to Redis.
func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// EnqueueScheduledEdition queues an edition trigger for the worker.
func (c *Client) EnqueueScheduledEdition(ctx context.Context, payload ScheduledEditionPayload) (string, error) {
	task, err := NewScheduledEditionTask(payload)
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue scheduled edition: %w", err)
	}
	return info.ID, nil
}

// EnqueueRetrySweep queues an immediate retry sweep.
func (c *Client) EnqueueRetrySweep(ctx context.Context) (string, error) {
	info, err := c.client.EnqueueContext(ctx, NewRetrySweepTask())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue retry sweep: %w", err)
	}
	return info.ID, nil
}

// Close closes the Asynq client connection gracefully.
func (c *Client) Close() error {
	return c.client.Close()
}

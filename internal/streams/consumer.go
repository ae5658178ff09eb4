package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// EventConsumer consumes analytics events from Redis Streams
type EventConsumer struct {
	rdb          *redis.Client
	groupName    string
	consumerName string
	logger       *slog.Logger
}

// NewEventConsumer creates a new EventConsumer instance
func NewEventConsumer(redisURL, consumerName string, logger *slog.Logger) (*EventConsumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XReadGroup Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second

	client := redis.NewClient(opts)

	// Start ID "0" means read from beginning if group is new
	err = client.XGroupCreateMkStream(context.Background(), StreamAnalyticsEvents, GroupRecorders, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &EventConsumer{
		rdb:          client,
		groupName:    GroupRecorders,
		consumerName: consumerName,
		logger:       logger,
	}, nil
}

// Consume runs a blocking loop consuming events from the stream
func (c *EventConsumer) Consume(ctx context.Context, handler func(context.Context, Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.groupName,
			Consumer: c.consumerName,
			Streams:  []string{StreamAnalyticsEvents, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()

		if err == redis.Nil {
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Blocking reads return a timeout when no messages arrive
			// within the Block duration, which is normal.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			c.logger.Error("Failed to read from stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.process(ctx, message, handler)
			}
		}
	}
}

func (c *EventConsumer) process(ctx context.Context, message redis.XMessage, handler func(context.Context, Event) error) {
	payloadStr, ok := message.Values["payload"].(string)
	if !ok {
		c.logger.Error("Invalid message payload", "message_id", message.ID)
		c.ack(ctx, message.ID)
		return
	}

	var event Event
	if err := json.Unmarshal([]byte(payloadStr), &event); err != nil {
		c.logger.Error("Failed to unmarshal event", "error", err, "message_id", message.ID)
		c.ack(ctx, message.ID)
		return
	}

	if err := handler(ctx, event); err != nil {
		c.logger.Error("Event handler failed", "error", err, "event_type", event.Type, "message_id", message.ID)
		// Message stays in PEL for retry, don't ACK
		return
	}

	c.ack(ctx, message.ID)
}

func (c *EventConsumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, StreamAnalyticsEvents, c.groupName, id).Err(); err != nil {
		c.logger.Error("Failed to ACK message", "error", err, "message_id", id)
	}
}

// Close closes the Redis client connection
func (c *EventConsumer) Close() error {
	return c.rdb.Close()
}

// StartEventConsumer starts an EventConsumer persisting into db in a
// background goroutine and returns a stop function
func StartEventConsumer(redisURL string, db *gorm.DB, logger *slog.Logger) (stop func(), err error) {
	consumer, err := NewEventConsumer(redisURL, "recorder-"+uuid.NewString()[:8], logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := consumer.Consume(ctx, HandleEvent(db)); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumer stopped with error", "error", err)
		}
	}()

	logger.Info("Event consumer started", "stream", StreamAnalyticsEvents, "group", GroupRecorders)

	return func() {
		cancel()
		consumer.Close()
	}, nil
}

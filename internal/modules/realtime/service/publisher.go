package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"anoa.com/kudosfeed/internal/model"
	"github.com/redis/go-redis/v9"
)

// localSendTimeout bounds how long a request waits on a full local queue.
const localSendTimeout = 50 * time.Millisecond

// ErrEventDropped means the local merger queue stayed full. The periodic resync repairs what was missed.
var ErrEventDropped = errors.New("change event dropped: merger queue full")

// Publisher sends change events on a Redis channel. Without Redis it hands
// them straight to the local merger.
type Publisher struct {
	redisClient *redis.Client
	channel     string
	local       chan<- model.ChangeEvent
}

func NewPublisher(redisClient *redis.Client, channel string, local chan<- model.ChangeEvent) *Publisher {
	return &Publisher{redisClient: redisClient, channel: channel, local: local}
}

func (p *Publisher) Publish(ctx context.Context, event model.ChangeEvent) error {
	if p.redisClient == nil {
		if p.local == nil {
			return nil
		}
		select {
		case p.local <- event:
			return nil
		default:
		}
		timer := time.NewTimer(localSendTimeout)
		defer timer.Stop()
		select {
		case p.local <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrEventDropped
		}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := p.redisClient.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

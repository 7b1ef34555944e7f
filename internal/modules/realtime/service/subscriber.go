package service

import (
	"context"
	"encoding/json"
	"fmt"

	"anoa.com/kudosfeed/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Subscriber decodes change events from a Redis channel.
type Subscriber struct {
	redisClient *redis.Client
	channel     string
	logger      *zap.Logger
}

func NewSubscriber(redisClient *redis.Client, channel string, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{redisClient: redisClient, channel: channel, logger: logger}
}

// Run forwards events to out until ctx ends. ready, when non-nil, is closed once
// the subscription is confirmed.
func (s *Subscriber) Run(ctx context.Context, out chan<- model.ChangeEvent, ready chan<- struct{}) error {
	pubsub := s.redisClient.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	s.logger.Info("listening for change events", zap.String("channel", s.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event model.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("skipping malformed change event", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherFallsBackToLocalChannel(t *testing.T) {
	local := make(chan model.ChangeEvent, 1)
	pub := NewPublisher(nil, "feed_changes", local)

	event := model.ChangeEvent{Table: entity.TableKudos, Operation: model.OpInsert, RowID: uuid.New()}
	require.NoError(t, pub.Publish(context.Background(), event))
	assert.Equal(t, event, <-local)
}

func TestPublisherDropsWhenLocalQueueIsFull(t *testing.T) {
	local := make(chan model.ChangeEvent, 1)
	pub := NewPublisher(nil, "feed_changes", local)
	event := model.ChangeEvent{Table: entity.TableKudos, Operation: model.OpInsert, RowID: uuid.New()}
	require.NoError(t, pub.Publish(context.Background(), event))

	started := time.Now()
	err := pub.Publish(context.WithoutCancel(context.Background()), event)
	assert.ErrorIs(t, err, ErrEventDropped)
	assert.Less(t, time.Since(started), time.Second)

	<-local
	assert.NoError(t, pub.Publish(context.Background(), event), "room frees up once the merger drains")
}

func TestRedisRoundTripSkipsMalformedPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.ChangeEvent, 4)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- NewSubscriber(rdb, "feed_changes", nil).Run(ctx, out, ready) }()
	<-ready

	require.NoError(t, rdb.Publish(ctx, "feed_changes", "not json").Err())

	postID := uuid.New()
	event := model.ChangeEvent{Table: entity.TableReactions, Operation: model.OpDelete, RowID: uuid.New(), PostID: &postID}
	require.NoError(t, NewPublisher(rdb, "feed_changes", nil).Publish(ctx, event))

	select {
	case got := <-out:
		assert.Equal(t, event, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.NoError(t, <-done)
}

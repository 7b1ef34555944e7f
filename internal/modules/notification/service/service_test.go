package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"anoa.com/kudosfeed/internal/gateway/gatewaytest"
	"anoa.com/kudosfeed/internal/model"
	notifRepo "anoa.com/kudosfeed/internal/modules/notification/repository"
	"anoa.com/kudosfeed/pkg/apperror"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// brokenWrites fails every read-state write while reads still reach the store.
type brokenWrites struct {
	notifRepo.NotificationRepository
}

func (brokenWrites) MarkAsRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return apperror.ErrTransient
}

func (brokenWrites) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error {
	return apperror.ErrTransient
}

func newRepo(t *testing.T) notifRepo.NotificationRepository {
	gw, _ := gatewaytest.New(t)
	return notifRepo.NewNotificationRepository(gw)
}

func seedNotification(t *testing.T, repo notifRepo.NotificationRepository, recipient uuid.UUID, at time.Time) model.Notification {
	t.Helper()
	n := model.Notification{
		RecipientID: recipient,
		SenderID:    uuid.New(),
		Type:        model.NotificationKudos,
		ResourceID:  uuid.New(),
		CreatedAt:   at,
	}
	require.NoError(t, repo.Create(context.Background(), &n))
	return n
}

func TestListIsNewestFirst(t *testing.T) {
	repo := newRepo(t)
	svc := NewNotificationService(repo, nil, nil, clockwork.NewFakeClockAt(start), nil)
	recipient := uuid.New()

	var seeded []model.Notification
	for i := 0; i < 5; i++ {
		seeded = append(seeded, seedNotification(t, repo, recipient, start.Add(time.Duration(i)*time.Minute)))
	}
	seedNotification(t, repo, uuid.New(), start)

	got, err := svc.List(context.Background(), recipient, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, seeded[4].ID, got[0].ID)
	assert.Equal(t, seeded[2].ID, got[2].ID)
}

func TestMarkAllReadKeepsOptimisticStateOnFailure(t *testing.T) {
	repo := newRepo(t)
	clk := clockwork.NewFakeClockAt(start.Add(time.Hour))
	svc := NewNotificationService(brokenWrites{repo}, nil, nil, clk, nil)
	recipient := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedNotification(t, repo, recipient, start.Add(time.Duration(i)*time.Minute))
	}
	_, err := svc.List(ctx, recipient, 0)
	require.NoError(t, err)

	err = svc.MarkAllRead(ctx, recipient)
	require.True(t, errors.Is(err, apperror.ErrTransient))

	for _, n := range svc.Loaded(recipient) {
		assert.True(t, n.IsRead, "local state is not rolled back")
	}
	count, err := svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Zero(t, count)

	listed, err := svc.List(ctx, recipient, 0)
	require.NoError(t, err)
	for _, n := range listed {
		assert.True(t, n.IsRead, "store still says unread but the inbox never goes back")
	}

	seedNotification(t, repo, recipient, start.Add(2*time.Hour))
	count, err = svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "notifications after the watermark are unread")
}

func TestMarkAllReadWritesThrough(t *testing.T) {
	repo := newRepo(t)
	svc := NewNotificationService(repo, nil, nil, clockwork.NewFakeClockAt(start.Add(time.Hour)), nil)
	recipient := uuid.New()
	ctx := context.Background()

	seedNotification(t, repo, recipient, start)
	require.NoError(t, svc.MarkAllRead(ctx, recipient))

	unread, err := repo.ListUnread(ctx, recipient)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMarkReadFailureKeepsFlip(t *testing.T) {
	repo := newRepo(t)
	svc := NewNotificationService(brokenWrites{repo}, nil, nil, clockwork.NewFakeClockAt(start), nil)
	recipient := uuid.New()
	ctx := context.Background()

	a := seedNotification(t, repo, recipient, start)
	seedNotification(t, repo, recipient, start.Add(time.Minute))

	assert.Error(t, svc.MarkRead(ctx, recipient, a.ID))

	count, err := svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMergeIsIdempotentAndMonotonic(t *testing.T) {
	svc := NewNotificationService(newRepo(t), nil, nil, clockwork.NewFakeClockAt(start), nil)
	recipient := uuid.New()
	n := model.Notification{ID: uuid.New(), RecipientID: recipient, Type: model.NotificationComment, IsRead: true, CreatedAt: start}

	svc.Merge(n)
	n.IsRead = false
	svc.Merge(n)

	loaded := svc.Loaded(recipient)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].IsRead)
}

func TestInboxKeepsNewestAndStaysBounded(t *testing.T) {
	repo := newRepo(t)
	svc := NewNotificationService(brokenWrites{repo}, nil, nil, clockwork.NewFakeClockAt(start), nil)
	recipient := uuid.New()
	ctx := context.Background()

	var newest model.Notification
	for i := 0; i < 5000; i++ {
		newest = model.Notification{ID: uuid.New(), RecipientID: recipient, Type: model.NotificationKudos, CreatedAt: start.Add(time.Duration(i) * time.Second)}
		svc.Merge(newest)
		if i%10 == 0 {
			assert.Error(t, svc.MarkRead(ctx, recipient, newest.ID))
		}
	}

	loaded := svc.Loaded(recipient)
	require.Len(t, loaded, MaxListLimit)
	assert.Equal(t, newest.ID, loaded[0].ID)
	for i := 1; i < len(loaded); i++ {
		assert.True(t, loaded[i-1].CreatedAt.After(loaded[i].CreatedAt))
	}

	// a late row older than everything held is not kept
	svc.Merge(model.Notification{ID: uuid.New(), RecipientID: recipient, Type: model.NotificationKudos, CreatedAt: start.Add(-time.Hour)})
	assert.Len(t, svc.Loaded(recipient), MaxListLimit)

	require.Error(t, svc.MarkAllRead(ctx, recipient))
	impl := svc.(*notificationService)
	impl.mu.Lock()
	defer impl.mu.Unlock()
	b := impl.inboxes[recipient]
	assert.LessOrEqual(t, len(b.flipped), MaxListLimit)
	for id := range b.flipped {
		assert.False(t, slices.ContainsFunc(b.items, func(n model.Notification) bool { return n.ID == id }),
			"flips the watermark covers are dropped")
	}
}

func TestMergeByIDLoadsFromStore(t *testing.T) {
	repo := newRepo(t)
	svc := NewNotificationService(repo, nil, nil, clockwork.NewFakeClockAt(start), nil)
	recipient := uuid.New()
	n := seedNotification(t, repo, recipient, start)

	require.NoError(t, svc.MergeByID(context.Background(), n.ID))
	require.NoError(t, svc.MergeByID(context.Background(), n.ID))
	assert.Len(t, svc.Loaded(recipient), 1)

	err := svc.MergeByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestNotifySkipsSelfAndPushesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := newRepo(t)
	svc := NewNotificationService(repo, rdb, nil, clockwork.NewFakeClockAt(start), nil)
	recipient, sender := uuid.New(), uuid.New()
	ctx := context.Background()

	pubsub := rdb.Subscribe(ctx, UserChannel(recipient))
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	svc.Notify(sender, sender, model.NotificationKudos, uuid.New())
	resource := uuid.New()
	svc.Notify(recipient, sender, model.NotificationReaction, resource)
	svc.Wait()

	select {
	case msg := <-pubsub.Channel():
		var got model.Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, resource, got.ResourceID)
		assert.Equal(t, model.NotificationReaction, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not pushed")
	}

	mine, err := repo.ListByRecipient(ctx, sender, 0)
	require.NoError(t, err)
	assert.Empty(t, mine, "self notifications are skipped")

	count, err := svc.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotifyFailureStaysInBackground(t *testing.T) {
	repo := newRepo(t)
	svc := NewNotificationService(failingCreate{repo}, nil, nil, clockwork.NewFakeClockAt(start), nil)

	assert.NotPanics(t, func() {
		svc.Notify(uuid.New(), uuid.New(), model.NotificationMention, uuid.New())
		svc.Wait()
	})
}

type failingCreate struct {
	notifRepo.NotificationRepository
}

func (failingCreate) Create(ctx context.Context, n *model.Notification) error {
	return apperror.ErrTransient
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/model"
	notifRepo "anoa.com/kudosfeed/internal/modules/notification/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100

	notifyTimeout = 10 * time.Second
)

// UserChannel is the Redis channel carrying new notifications for one recipient.
func UserChannel(recipientID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", recipientID.String())
}

// ChangePublisher announces new notification rows to other processes.
type ChangePublisher interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
}

type NotificationService interface {
	List(ctx context.Context, recipientID uuid.UUID, limit int) ([]model.Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) error
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	Notify(recipient, sender uuid.UUID, typ model.NotificationType, resourceID uuid.UUID)
	Merge(n model.Notification)
	MergeByID(ctx context.Context, id uuid.UUID) error
	Loaded(recipientID uuid.UUID) []model.Notification
	Wait()
}

// inbox is the locally held state of one recipient. Read state only moves forward:
// anything flipped or created at or before watermark stays read whatever the store says.
type inbox struct {
	items     []model.Notification
	watermark time.Time
	flipped   map[uuid.UUID]struct{}
}

func (b *inbox) read(n model.Notification) bool {
	if n.IsRead {
		return true
	}
	if _, ok := b.flipped[n.ID]; ok {
		return true
	}
	return !b.watermark.IsZero() && !n.CreatedAt.After(b.watermark)
}

func (b *inbox) overlay(items []model.Notification) []model.Notification {
	out := make([]model.Notification, len(items))
	for i, n := range items {
		n.IsRead = b.read(n)
		out[i] = n
	}
	return out
}

// merge upserts items in newest-first order and keeps only the MaxListLimit newest.
func (b *inbox) merge(items ...model.Notification) {
	for _, n := range items {
		if at := slices.IndexFunc(b.items, func(x model.Notification) bool { return x.ID == n.ID }); at >= 0 {
			n.IsRead = n.IsRead || b.items[at].IsRead
			b.items = slices.Delete(b.items, at, at+1)
		}
		at, _ := slices.BinarySearchFunc(b.items, n, newerFirst)
		b.items = slices.Insert(b.items, at, n)
	}
	if len(b.items) > MaxListLimit {
		b.items = slices.Clip(b.items[:MaxListLimit])
	}
	b.items = b.overlay(b.items)
	b.prune()
}

// prune drops flipped ids the watermark already covers. Ids for notifications not
// held are kept up to MaxListLimit, since their rows may still arrive.
func (b *inbox) prune() {
	held := make(map[uuid.UUID]time.Time, len(b.items))
	for _, n := range b.items {
		held[n.ID] = n.CreatedAt
	}
	stray := 0
	for id := range b.flipped {
		createdAt, ok := held[id]
		switch {
		case ok && !b.watermark.IsZero() && !createdAt.After(b.watermark):
			delete(b.flipped, id)
		case !ok:
			stray++
			if stray > MaxListLimit {
				delete(b.flipped, id)
			}
		}
	}
}

func newerFirst(a, b model.Notification) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return slices.Compare(b.ID[:], a.ID[:])
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	redisClient *redis.Client
	publisher   ChangePublisher
	clock       clockwork.Clock
	logger      *zap.Logger

	mu      sync.Mutex
	inboxes map[uuid.UUID]*inbox
	pending sync.WaitGroup
}

func NewNotificationService(repo notifRepo.NotificationRepository, redisClient *redis.Client, publisher ChangePublisher, clk clockwork.Clock, logger *zap.Logger) NotificationService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationService{
		repo:        repo,
		redisClient: redisClient,
		publisher:   publisher,
		clock:       clk,
		logger:      logger,
		inboxes:     make(map[uuid.UUID]*inbox),
	}
}

// inboxOf must be called with mu held.
func (s *notificationService) inboxOf(recipientID uuid.UUID) *inbox {
	b, ok := s.inboxes[recipientID]
	if !ok {
		b = &inbox{flipped: make(map[uuid.UUID]struct{})}
		s.inboxes[recipientID] = b
	}
	return b
}

func (s *notificationService) List(ctx context.Context, recipientID uuid.UUID, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	fetched, err := s.repo.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.inboxOf(recipientID)
	b.merge(fetched...)
	return b.overlay(fetched), nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	unread, err := s.repo.ListUnread(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.inboxOf(recipientID)
	count := 0
	for _, n := range unread {
		if !b.read(n) {
			count++
		}
	}
	return count, nil
}

// MarkAllRead flips the local inbox first and then writes through. A failed write is
// reported but the local state is kept.
func (s *notificationService) MarkAllRead(ctx context.Context, recipientID uuid.UUID) error {
	s.mu.Lock()
	b := s.inboxOf(recipientID)
	mark := s.clock.Now()
	for _, n := range b.items {
		if n.CreatedAt.After(mark) {
			mark = n.CreatedAt
		}
	}
	if mark.After(b.watermark) {
		b.watermark = mark
	}
	b.items = b.overlay(b.items)
	b.prune()
	s.mu.Unlock()

	if err := s.repo.MarkAllAsRead(ctx, recipientID); err != nil {
		s.logger.Warn("mark all read failed, keeping local state", zap.String("recipient_id", recipientID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	s.mu.Lock()
	b := s.inboxOf(recipientID)
	b.flipped[id] = struct{}{}
	b.items = b.overlay(b.items)
	s.mu.Unlock()

	if err := s.repo.MarkAsRead(ctx, recipientID, id); err != nil {
		s.logger.Warn("mark read failed, keeping local state",
			zap.String("recipient_id", recipientID.String()), zap.String("notification_id", id.String()), zap.Error(err))
		return err
	}
	return nil
}

// Notify records a notification in the background. Failures are logged and never
// reach the caller. Notifying yourself is a no-op.
func (s *notificationService) Notify(recipient, sender uuid.UUID, typ model.NotificationType, resourceID uuid.UUID) {
	if recipient == sender || recipient == uuid.Nil || !typ.Valid() {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		n := model.Notification{
			RecipientID: recipient,
			SenderID:    sender,
			Type:        typ,
			ResourceID:  resourceID,
			CreatedAt:   s.clock.Now(),
		}
		if err := s.repo.Create(ctx, &n); err != nil {
			s.logger.Error("failed to create notification",
				zap.String("recipient_id", recipient.String()), zap.String("type", string(typ)), zap.Error(err))
			return
		}
		s.Merge(n)

		if s.redisClient != nil {
			payload, err := json.Marshal(n)
			if err == nil {
				err = s.redisClient.Publish(ctx, UserChannel(recipient), payload).Err()
			}
			if err != nil {
				s.logger.Warn("failed to push notification", zap.String("recipient_id", recipient.String()), zap.Error(err))
			}
		}
		if s.publisher != nil {
			event := model.ChangeEvent{Table: entity.TableNotifications, Operation: model.OpInsert, RowID: n.ID}
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Warn("failed to publish notification event", zap.String("notification_id", n.ID.String()), zap.Error(err))
			}
		}
	}()
}

func (s *notificationService) Merge(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxOf(n.RecipientID).merge(n)
}

func (s *notificationService) MergeByID(ctx context.Context, id uuid.UUID) error {
	n, err := s.repo.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("merge notification %s: %w", id, err)
	}
	s.Merge(n)
	return nil
}

// Loaded returns the locally held inbox without touching the store.
func (s *notificationService) Loaded(recipientID uuid.UUID) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.inboxes[recipientID]
	if !ok {
		return nil
	}
	return slices.Clone(b.items)
}

// Wait blocks until every pending Notify has finished.
func (s *notificationService) Wait() {
	s.pending.Wait()
}

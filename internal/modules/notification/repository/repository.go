package repository

import (
	"context"
	"fmt"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway"
	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	Find(ctx context.Context, id uuid.UUID) (model.Notification, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]model.Notification, error)
	ListUnread(ctx context.Context, recipientID uuid.UUID) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error
}

var newestFirst = []gateway.Order{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}}

type notificationRepository struct {
	gw gateway.Gateway
}

func NewNotificationRepository(gw gateway.Gateway) NotificationRepository {
	return &notificationRepository{gw: gw}
}

func (r *notificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	row := entity.Notification{
		ID:          notification.ID,
		RecipientID: notification.RecipientID,
		SenderID:    notification.SenderID,
		Type:        string(notification.Type),
		ResourceID:  notification.ResourceID,
		IsRead:      notification.IsRead,
		CreatedAt:   notification.CreatedAt,
	}
	if _, err := r.gw.Mutate(ctx, gateway.Mutation{Op: gateway.Insert, Collection: entity.TableNotifications, Payload: &row}); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	notification.ID = row.ID
	notification.CreatedAt = row.CreatedAt
	return nil
}

func (r *notificationRepository) Find(ctx context.Context, id uuid.UUID) (model.Notification, error) {
	var row entity.Notification
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableNotifications,
		Equals:     map[string]any{"id": id},
		Single:     true,
	}, &row); err != nil {
		return model.Notification{}, fmt.Errorf("find notification: %w", err)
	}
	return toModel(row), nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]model.Notification, error) {
	q := gateway.Query{
		Collection: entity.TableNotifications,
		Equals:     map[string]any{"recipient_id": recipientID},
		OrderBy:    newestFirst,
		RangeEnd:   limit - 1,
	}
	if limit <= 0 {
		q.RangeEnd = -1
	}
	var rows []entity.Notification
	if err := r.gw.Query(ctx, q, &rows); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return toModels(rows), nil
}

func (r *notificationRepository) ListUnread(ctx context.Context, recipientID uuid.UUID) ([]model.Notification, error) {
	var rows []entity.Notification
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableNotifications,
		Equals:     map[string]any{"recipient_id": recipientID, "is_read": false},
		OrderBy:    newestFirst,
		RangeEnd:   -1,
	}, &rows); err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	return toModels(rows), nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, recipientID, id uuid.UUID) error {
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Update,
		Collection:   entity.TableNotifications,
		Where:        map[string]any{"id": id, "recipient_id": recipientID},
		Values:       map[string]any{"is_read": true},
		RequireMatch: true,
	})
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error {
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:         gateway.Update,
		Collection: entity.TableNotifications,
		Where:      map[string]any{"recipient_id": recipientID, "is_read": false},
		Values:     map[string]any{"is_read": true},
	})
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func toModel(row entity.Notification) model.Notification {
	return model.Notification{
		ID:          row.ID,
		RecipientID: row.RecipientID,
		SenderID:    row.SenderID,
		Type:        model.NotificationType(row.Type),
		ResourceID:  row.ResourceID,
		IsRead:      row.IsRead,
		CreatedAt:   row.CreatedAt,
	}
}

func toModels(rows []entity.Notification) []model.Notification {
	out := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, toModel(row))
	}
	return out
}

package repository

import (
	"context"
	"fmt"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway"
	"github.com/google/uuid"
)

type ProfileRepository interface {
	CountSent(ctx context.Context, userID uuid.UUID) (int64, error)
	// CountReceived counts kudos received at or after since. A zero since counts everything.
	CountReceived(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	// SentTimestamps returns when the user sent kudos, newest first.
	SentTimestamps(ctx context.Context, userID uuid.UUID) ([]time.Time, error)
}

type profileRepository struct {
	gw gateway.Gateway
}

func NewProfileRepository(gw gateway.Gateway) ProfileRepository {
	return &profileRepository{gw: gw}
}

func (r *profileRepository) CountSent(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := r.gw.Count(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"sender_id": userID},
	})
	if err != nil {
		return 0, fmt.Errorf("count sent kudos: %w", err)
	}
	return n, nil
}

func (r *profileRepository) CountReceived(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	q := gateway.Query{
		Collection: entity.TableKudosReceivers,
		Equals:     map[string]any{"user_id": userID},
	}
	if !since.IsZero() {
		q.Ranges = []gateway.Range{{Column: "created_at", Op: gateway.OpGte, Value: since}}
	}
	n, err := r.gw.Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count received kudos: %w", err)
	}
	return n, nil
}

func (r *profileRepository) SentTimestamps(ctx context.Context, userID uuid.UUID) ([]time.Time, error) {
	var rows []entity.Kudos
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"sender_id": userID},
		OrderBy:    []gateway.Order{{Column: "created_at", Desc: true}},
		RangeEnd:   -1,
	}, &rows); err != nil {
		return nil, fmt.Errorf("list sent kudos: %w", err)
	}
	out := make([]time.Time, len(rows))
	for i, row := range rows {
		out[i] = row.CreatedAt
	}
	return out, nil
}

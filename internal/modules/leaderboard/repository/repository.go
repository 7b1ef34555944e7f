package repository

import (
	"context"
	"fmt"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway"
	"github.com/google/uuid"
)

type Mode string

const (
	ModeGivers    Mode = "givers"
	ModeReceivers Mode = "receivers"
)

func (m Mode) Valid() bool {
	return m == ModeGivers || m == ModeReceivers
}

type LeaderboardRepository interface {
	// Interactions returns one user id per qualifying row created in [from, to), newest first.
	// A zero from or to leaves that side open.
	Interactions(ctx context.Context, mode Mode, from, to time.Time) ([]uuid.UUID, error)
}

type leaderboardRepository struct {
	gw gateway.Gateway
}

func NewLeaderboardRepository(gw gateway.Gateway) LeaderboardRepository {
	return &leaderboardRepository{gw: gw}
}

func (r *leaderboardRepository) Interactions(ctx context.Context, mode Mode, from, to time.Time) ([]uuid.UUID, error) {
	q := gateway.Query{RangeEnd: -1}
	if !from.IsZero() {
		q.Ranges = append(q.Ranges, gateway.Range{Column: "created_at", Op: gateway.OpGte, Value: from})
	}
	if !to.IsZero() {
		q.Ranges = append(q.Ranges, gateway.Range{Column: "created_at", Op: gateway.OpLt, Value: to})
	}

	switch mode {
	case ModeGivers:
		q.Collection = entity.TableKudos
		q.OrderBy = []gateway.Order{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}}
		var rows []entity.Kudos
		if err := r.gw.Query(ctx, q, &rows); err != nil {
			return nil, fmt.Errorf("list sent kudos: %w", err)
		}
		ids := make([]uuid.UUID, len(rows))
		for i, row := range rows {
			ids[i] = row.SenderID
		}
		return ids, nil

	case ModeReceivers:
		q.Collection = entity.TableKudosReceivers
		q.OrderBy = []gateway.Order{{Column: "created_at", Desc: true}, {Column: "kudos_id", Desc: true}, {Column: "user_id", Desc: true}}
		var rows []entity.KudosReceiver
		if err := r.gw.Query(ctx, q, &rows); err != nil {
			return nil, fmt.Errorf("list received kudos: %w", err)
		}
		ids := make([]uuid.UUID, len(rows))
		for i, row := range rows {
			ids[i] = row.UserID
		}
		return ids, nil
	}
	return nil, fmt.Errorf("unknown leaderboard mode %q", mode)
}

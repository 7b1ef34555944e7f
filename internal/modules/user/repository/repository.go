package repository

import (
	"context"
	"fmt"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway"
	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
)

type UserRepository interface {
	// FindSummaries loads display data for ids in one batch. Unknown ids are absent from the map.
	FindSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.UserSummary, error)
	FindByUsernames(ctx context.Context, usernames []string) ([]entity.User, error)
}

type userRepository struct {
	gw gateway.Gateway
}

func NewUserRepository(gw gateway.Gateway) UserRepository {
	return &userRepository{gw: gw}
}

func (r *userRepository) FindSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.UserSummary, error) {
	out := make(map[uuid.UUID]model.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []entity.User
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableUsers,
		Equals:     map[string]any{"id": ids},
		RangeEnd:   -1,
	}, &users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	var profiles []entity.Profile
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableProfiles,
		Equals:     map[string]any{"user_id": ids},
		RangeEnd:   -1,
	}, &profiles); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	byUser := make(map[uuid.UUID]entity.Profile, len(profiles))
	for _, p := range profiles {
		byUser[p.UserID] = p
	}

	for _, u := range users {
		summary := model.UserSummary{
			ID:        u.ID,
			Username:  u.Username,
			Name:      u.Username,
			AvatarURL: u.AvatarURL,
		}
		if p, ok := byUser[u.ID]; ok {
			if p.FullName != "" {
				summary.Name = p.FullName
			}
			summary.Department = p.Department
		}
		out[u.ID] = summary
	}
	return out, nil
}

func (r *userRepository) FindByUsernames(ctx context.Context, usernames []string) ([]entity.User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}
	var users []entity.User
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableUsers,
		Equals:     map[string]any{"username": usernames},
		RangeEnd:   -1,
	}, &users); err != nil {
		return nil, fmt.Errorf("load users by username: %w", err)
	}
	return users, nil
}

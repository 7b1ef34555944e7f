package profile

import (
	"context"
	"fmt"
	"time"

	"anoa.com/kudosfeed/internal/model"
	profileDto "anoa.com/kudosfeed/internal/modules/profile/dto"
	profileRepo "anoa.com/kudosfeed/internal/modules/profile/repository"
	userRepo "anoa.com/kudosfeed/internal/modules/user/repository"
	"anoa.com/kudosfeed/pkg/apperror"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type ProfileService interface {
	GetStats(ctx context.Context, userID uuid.UUID) (*profileDto.StatsResponse, error)
}

type profileService struct {
	repo     profileRepo.ProfileRepository
	userRepo userRepo.UserRepository
	clock    clockwork.Clock
	location *time.Location
	logger   *zap.Logger
}

func NewProfileService(repo profileRepo.ProfileRepository, userRepo userRepo.UserRepository, clk clockwork.Clock, location *time.Location, logger *zap.Logger) ProfileService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &profileService{
		repo:     repo,
		userRepo: userRepo,
		clock:    clk,
		location: location,
		logger:   logger,
	}
}

// GetStats recomputes the user's counters on every call. Counter and streak
// failures are logged and reported as zero.
func (s *profileService) GetStats(ctx context.Context, userID uuid.UUID) (*profileDto.StatsResponse, error) {
	users, err := s.userRepo.FindSummaries(ctx, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	user, ok := users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, apperror.ErrNotFound)
	}

	now := s.clock.Now()
	log := s.logger.With(zap.String("user_id", userID.String()))

	sent, err := s.repo.CountSent(ctx, userID)
	if err != nil {
		log.Warn("failed to count sent kudos", zap.Error(err))
		sent = 0
	}
	received, err := s.repo.CountReceived(ctx, userID, time.Time{})
	if err != nil {
		log.Warn("failed to count received kudos", zap.Error(err))
		received = 0
	}
	weekly, err := s.repo.CountReceived(ctx, userID, now.AddDate(0, 0, -7))
	if err != nil {
		log.Warn("failed to count weekly kudos", zap.Error(err))
		weekly = 0
	}

	streak := model.StreakState{}
	timestamps, err := s.repo.SentTimestamps(ctx, userID)
	if err != nil {
		log.Warn("failed to load streak history", zap.Error(err))
	} else {
		streak.CurrentStreak = CurrentStreak(timestamps, now, s.location)
	}

	return &profileDto.StatsResponse{
		User:          user,
		KudosSent:     int(sent),
		KudosReceived: int(received),
		Streak:        streak,
		Level:         LevelFor(int(received), int(weekly)),
	}, nil
}

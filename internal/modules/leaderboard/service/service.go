package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anoa.com/kudosfeed/internal/model"
	leaderboardRepo "anoa.com/kudosfeed/internal/modules/leaderboard/repository"
	userRepo "anoa.com/kudosfeed/internal/modules/user/repository"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Window string

const (
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
	WindowAll   Window = "all"
)

func (w Window) Valid() bool {
	return w == WindowWeek || w == WindowMonth || w == WindowAll
}

// Start returns the inclusive lower bound of the window ending at now. WindowAll has none.
func (w Window) Start(now time.Time) time.Time {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, -1, 0)
	}
	return time.Time{}
}

// previousStart is the start of the window of equal length just before start.
func (w Window) previousStart(start time.Time) time.Time {
	if w == WindowWeek {
		return start.AddDate(0, 0, -7)
	}
	return start.AddDate(0, -1, 0)
}

var (
	Windows = []Window{WindowWeek, WindowMonth, WindowAll}
	Modes   = []leaderboardRepo.Mode{leaderboardRepo.ModeGivers, leaderboardRepo.ModeReceivers}
)

type LeaderboardService interface {
	Get(ctx context.Context, window Window, mode leaderboardRepo.Mode) model.Leaderboard
	Warm(ctx context.Context) error
}

type leaderboardService struct {
	repo        leaderboardRepo.LeaderboardRepository
	userRepo    userRepo.UserRepository
	redisClient *redis.Client
	cacheTTL    time.Duration
	clock       clockwork.Clock
	logger      *zap.Logger
}

func NewLeaderboardService(repo leaderboardRepo.LeaderboardRepository, userRepo userRepo.UserRepository, redisClient *redis.Client, cacheTTL time.Duration, clk clockwork.Clock, logger *zap.Logger) LeaderboardService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &leaderboardService{
		repo:        repo,
		userRepo:    userRepo,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
		clock:       clk,
		logger:      logger,
	}
}

func cacheKey(window Window, mode leaderboardRepo.Mode) string {
	return fmt.Sprintf("leaderboard:%s:%s", window, mode)
}

func empty(window Window, mode leaderboardRepo.Mode) model.Leaderboard {
	return model.Leaderboard{
		Window: string(window),
		Mode:   string(mode),
		Top3:   []model.LeaderboardEntry{},
		Others: []model.LeaderboardEntry{},
	}
}

// Get never fails: a store error yields an empty leaderboard.
func (s *leaderboardService) Get(ctx context.Context, window Window, mode leaderboardRepo.Mode) model.Leaderboard {
	if cached, ok := s.cached(ctx, window, mode); ok {
		return cached
	}
	board, err := s.compute(ctx, window, mode)
	if err != nil {
		s.logger.Warn("leaderboard unavailable", zap.String("window", string(window)), zap.String("mode", string(mode)), zap.Error(err))
		return empty(window, mode)
	}
	s.store(ctx, board)
	return board
}

// Warm recomputes every window and mode and refreshes the cache.
func (s *leaderboardService) Warm(ctx context.Context) error {
	for _, window := range Windows {
		for _, mode := range Modes {
			if err := ctx.Err(); err != nil {
				return err
			}
			board, err := s.compute(ctx, window, mode)
			if err != nil {
				s.logger.Warn("leaderboard warm-up failed", zap.String("window", string(window)), zap.String("mode", string(mode)), zap.Error(err))
				continue
			}
			s.store(ctx, board)
		}
	}
	return nil
}

func (s *leaderboardService) compute(ctx context.Context, window Window, mode leaderboardRepo.Mode) (model.Leaderboard, error) {
	if !window.Valid() || !mode.Valid() {
		return model.Leaderboard{}, fmt.Errorf("unknown leaderboard %s/%s", window, mode)
	}

	now := s.clock.Now()
	start := window.Start(now)
	ids, err := s.repo.Interactions(ctx, mode, start, time.Time{})
	if err != nil {
		return model.Leaderboard{}, err
	}
	ranked := Rank(ids)
	if len(ranked) == 0 {
		return empty(window, mode), nil
	}

	userIDs := make([]uuid.UUID, len(ranked))
	for i, t := range ranked {
		userIDs[i] = t.UserID
	}
	profiles, err := s.userRepo.FindSummaries(ctx, userIDs)
	if err != nil {
		return model.Leaderboard{}, err
	}

	var previous map[uuid.UUID]int
	if window != WindowAll {
		before, err := s.repo.Interactions(ctx, mode, window.previousStart(start), start)
		if err != nil {
			s.logger.Warn("previous window unavailable, reporting flat trends", zap.Error(err))
		} else {
			previous = positions(Rank(before))
		}
	}

	entries := make([]model.LeaderboardEntry, len(ranked))
	for i, t := range ranked {
		p := profiles[t.UserID]
		entries[i] = model.LeaderboardEntry{
			UserID:     t.UserID,
			Name:       p.Name,
			Department: p.Department,
			AvatarURL:  p.AvatarURL,
			Score:      t.Score,
			Rank:       i + 1,
			Trend:      trendOf(i+1, previous, t.UserID),
		}
	}

	board := model.Leaderboard{Window: string(window), Mode: string(mode)}
	board.Top3, board.Others = split(entries)
	return board, nil
}

func (s *leaderboardService) cached(ctx context.Context, window Window, mode leaderboardRepo.Mode) (model.Leaderboard, bool) {
	if s.redisClient == nil || s.cacheTTL <= 0 {
		return model.Leaderboard{}, false
	}
	raw, err := s.redisClient.Get(ctx, cacheKey(window, mode)).Bytes()
	if err != nil {
		return model.Leaderboard{}, false
	}
	var board model.Leaderboard
	if err := json.Unmarshal(raw, &board); err != nil {
		return model.Leaderboard{}, false
	}
	return board, true
}

func (s *leaderboardService) store(ctx context.Context, board model.Leaderboard) {
	if s.redisClient == nil || s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(board)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, cacheKey(Window(board.Window), leaderboardRepo.Mode(board.Mode)), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("leaderboard cache write failed", zap.Error(err))
	}
}

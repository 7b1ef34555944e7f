package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway/gatewaytest"
	"anoa.com/kudosfeed/internal/model"
	leaderboardRepo "anoa.com/kudosfeed/internal/modules/leaderboard/repository"
	userRepo "anoa.com/kudosfeed/internal/modules/user/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

func repeat(id uuid.UUID, n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = id
	}
	return out
}

func TestRankTiesKeepFetchOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	var ids []uuid.UUID
	ids = append(ids, a)
	ids = append(ids, b)
	ids = append(ids, c)
	ids = append(ids, repeat(a, 4)...)
	ids = append(ids, repeat(b, 4)...)
	ids = append(ids, c)

	ranked := Rank(ids)

	require.Len(t, ranked, 3)
	assert.Equal(t, []Tally{{a, 5}, {b, 5}, {c, 2}}, ranked)

	entries := make([]model.LeaderboardEntry, len(ranked))
	for i, r := range ranked {
		entries[i] = model.LeaderboardEntry{UserID: r.UserID, Rank: i + 1}
	}
	top3, others := split(entries)
	assert.Len(t, top3, 3)
	assert.NotNil(t, others)
	assert.Empty(t, others)
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, now.AddDate(0, 0, -7), WindowWeek.Start(now))
	assert.Equal(t, time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC), WindowMonth.Start(now))
	assert.True(t, WindowAll.Start(now).IsZero())
}

func TestTrend(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	previous := map[uuid.UUID]int{a: 2, b: 1}

	assert.Equal(t, model.TrendUp, trendOf(1, previous, a))
	assert.Equal(t, model.TrendDown, trendOf(2, previous, b))
	assert.Equal(t, model.TrendSame, trendOf(2, previous, a))
	assert.Equal(t, model.TrendNew, trendOf(3, previous, uuid.New()))
	assert.Equal(t, model.TrendSame, trendOf(1, nil, a))
}

type world struct {
	db  *gorm.DB
	svc LeaderboardService
}

func newWorld(t *testing.T, rdb *redis.Client) *world {
	t.Helper()
	gw, db := gatewaytest.New(t)
	svc := NewLeaderboardService(
		leaderboardRepo.NewLeaderboardRepository(gw),
		userRepo.NewUserRepository(gw),
		rdb, time.Minute, clockwork.NewFakeClockAt(now), nil,
	)
	return &world{db: db, svc: svc}
}

func (w *world) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := entity.User{ID: uuid.New(), Username: name, Email: name + "@example.com"}
	require.NoError(t, w.db.Create(&u).Error)
	require.NoError(t, w.db.Create(&entity.Profile{UserID: u.ID, FullName: "Full " + name, Department: "Eng"}).Error)
	return u.ID
}

func (w *world) kudos(t *testing.T, sender, receiver uuid.UUID, at time.Time) {
	t.Helper()
	k := entity.Kudos{ID: uuid.New(), SenderID: sender, Message: "thanks", Tags: []string{}, ImageURLs: []string{}, CreatedAt: at}
	require.NoError(t, w.db.Create(&k).Error)
	require.NoError(t, w.db.Create(&entity.KudosReceiver{KudosID: k.ID, UserID: receiver, CreatedAt: at}).Error)
}

func TestGetGiversWeek(t *testing.T) {
	w := newWorld(t, nil)
	ann, bob, cat := w.user(t, "ann"), w.user(t, "bob"), w.user(t, "cat")

	// previous week: bob ahead of ann
	w.kudos(t, bob, cat, now.AddDate(0, 0, -10))
	w.kudos(t, bob, cat, now.AddDate(0, 0, -10))
	w.kudos(t, ann, cat, now.AddDate(0, 0, -11))

	// this week: ann 3, bob 1, cat 1
	for i := 0; i < 3; i++ {
		w.kudos(t, ann, bob, now.Add(-time.Duration(i+1)*time.Hour))
	}
	w.kudos(t, bob, ann, now.Add(-5*time.Hour))
	w.kudos(t, cat, ann, now.Add(-6*time.Hour))

	board := w.svc.Get(context.Background(), WindowWeek, leaderboardRepo.ModeGivers)

	require.Len(t, board.Top3, 3)
	assert.Empty(t, board.Others)
	assert.Equal(t, ann, board.Top3[0].UserID)
	assert.Equal(t, "Full ann", board.Top3[0].Name)
	assert.Equal(t, 3, board.Top3[0].Score)
	assert.Equal(t, model.TrendUp, board.Top3[0].Trend)
	assert.Equal(t, bob, board.Top3[1].UserID, "bob gave more recently than cat")
	assert.Equal(t, model.TrendDown, board.Top3[1].Trend)
	assert.Equal(t, model.TrendNew, board.Top3[2].Trend)
	for i, e := range board.Top3 {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestGetReceiversAllTimeSplitsOthers(t *testing.T) {
	w := newWorld(t, nil)
	sender := w.user(t, "sender")
	for i := 0; i < 5; i++ {
		r := w.user(t, fmt.Sprintf("r%d", i))
		for j := 0; j <= i; j++ {
			w.kudos(t, sender, r, now.AddDate(-1, 0, -j))
		}
	}

	board := w.svc.Get(context.Background(), WindowAll, leaderboardRepo.ModeReceivers)

	require.Len(t, board.Top3, 3)
	require.Len(t, board.Others, 2)
	assert.Equal(t, 5, board.Top3[0].Score)
	assert.Equal(t, 4, board.Others[0].Rank)
	assert.Equal(t, model.TrendSame, board.Others[1].Trend)
}

func TestGetEmptyWindow(t *testing.T) {
	w := newWorld(t, nil)

	board := w.svc.Get(context.Background(), WindowMonth, leaderboardRepo.ModeReceivers)

	assert.NotNil(t, board.Top3)
	assert.Empty(t, board.Top3)
	assert.Empty(t, board.Others)
}

type brokenRepo struct{}

func (brokenRepo) Interactions(context.Context, leaderboardRepo.Mode, time.Time, time.Time) ([]uuid.UUID, error) {
	return nil, errors.New("store down")
}

func TestGetFailsClosed(t *testing.T) {
	svc := NewLeaderboardService(brokenRepo{}, nil, nil, 0, clockwork.NewFakeClockAt(now), nil)

	board := svc.Get(context.Background(), WindowWeek, leaderboardRepo.ModeGivers)

	assert.Equal(t, "week", board.Window)
	assert.Empty(t, board.Top3)
	assert.Empty(t, board.Others)
}

func TestGetServesFromRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := newWorld(t, rdb)
	ann, bob := w.user(t, "ann"), w.user(t, "bob")
	w.kudos(t, ann, bob, now.Add(-time.Hour))

	first := w.svc.Get(context.Background(), WindowWeek, leaderboardRepo.ModeGivers)
	require.Len(t, first.Top3, 1)
	assert.True(t, mr.Exists("leaderboard:week:givers"))

	w.kudos(t, bob, ann, now.Add(-time.Minute))
	second := w.svc.Get(context.Background(), WindowWeek, leaderboardRepo.ModeGivers)
	assert.Equal(t, first, second)

	mr.FastForward(2 * time.Minute)
	third := w.svc.Get(context.Background(), WindowWeek, leaderboardRepo.ModeGivers)
	assert.Len(t, third.Top3, 2)
}

func TestWarmFillsEveryBoard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := newWorld(t, rdb)
	require.NoError(t, w.svc.Warm(context.Background()))

	for _, window := range Windows {
		for _, mode := range Modes {
			assert.True(t, mr.Exists(cacheKey(window, mode)), "%s/%s", window, mode)
		}
	}
}

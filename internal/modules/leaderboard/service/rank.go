package service

import (
	"slices"

	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
)

// Tally is one user's interaction count inside a window.
type Tally struct {
	UserID uuid.UUID
	Score  int
}

// Rank counts ids in first-seen order and sorts by count descending. Ties keep
// first-seen order, so position i gets sequential rank i+1.
func Rank(ids []uuid.UUID) []Tally {
	index := make(map[uuid.UUID]int)
	var out []Tally
	for _, id := range ids {
		if at, ok := index[id]; ok {
			out[at].Score++
			continue
		}
		index[id] = len(out)
		out = append(out, Tally{UserID: id, Score: 1})
	}
	slices.SortStableFunc(out, func(a, b Tally) int { return b.Score - a.Score })
	return out
}

// positions maps each user to their 1-based rank.
func positions(ranked []Tally) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(ranked))
	for i, t := range ranked {
		out[t.UserID] = i + 1
	}
	return out
}

func trendOf(rank int, previous map[uuid.UUID]int, id uuid.UUID) model.Trend {
	if previous == nil {
		return model.TrendSame
	}
	before, ok := previous[id]
	switch {
	case !ok:
		return model.TrendNew
	case rank < before:
		return model.TrendUp
	case rank > before:
		return model.TrendDown
	default:
		return model.TrendSame
	}
}

// split puts ranks 1-3 in top3 and the rest in others. Both are non-nil.
func split(entries []model.LeaderboardEntry) (top3, others []model.LeaderboardEntry) {
	n := min(3, len(entries))
	top3 = append([]model.LeaderboardEntry{}, entries[:n]...)
	others = append([]model.LeaderboardEntry{}, entries[n:]...)
	return top3, others
}

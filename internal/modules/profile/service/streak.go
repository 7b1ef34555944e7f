package profile

import (
	"slices"
	"time"
)

// CurrentStreak counts consecutive calendar days in loc, ending today or yesterday,
// that hold at least one timestamp. Days after today are ignored.
func CurrentStreak(timestamps []time.Time, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	today := civilDay(now, loc)

	seen := make(map[int64]struct{}, len(timestamps))
	days := make([]int64, 0, len(timestamps))
	for _, ts := range timestamps {
		d := civilDay(ts, loc)
		if d > today {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	if len(days) == 0 {
		return 0
	}
	slices.Sort(days)
	slices.Reverse(days)

	if days[0] != today && days[0] != today-1 {
		return 0
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] != 1 {
			break
		}
		streak++
	}
	return streak
}

// civilDay numbers the calendar date of t in loc, one per day with no DST drift.
func civilDay(t time.Time, loc *time.Location) int64 {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

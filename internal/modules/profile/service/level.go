package profile

import profileDto "anoa.com/kudosfeed/internal/modules/profile/dto"

type tier struct {
	name      string
	threshold int
}

// Tiers in ascending order of kudos received.
var tiers = []tier{
	{"Newcomer", 0},
	{"Appreciated", 5},
	{"Valued", 20},
	{"Respected", 50},
	{"Champion", 120},
	{"Legend", 300},
}

const (
	weeklyOnFire   = 10
	weeklyTrending = 5
	weeklyActive   = 2
)

// LevelFor places received kudos on the tier ladder.
func LevelFor(received, weekly int) profileDto.RecognitionLevel {
	level := profileDto.RecognitionLevel{Received: received, WeeklyCount: weekly}

	at := 0
	for i, t := range tiers {
		if received >= t.threshold {
			at = i
		}
	}
	level.Name = tiers[at].name
	if at == len(tiers)-1 {
		level.NextLevel = "Max Level"
		level.Target = tiers[at].threshold
		level.Progress = 100
	} else {
		next := tiers[at+1]
		level.NextLevel = next.name
		level.Target = next.threshold
		level.Progress = float64(received*10000/next.threshold) / 100
	}

	switch {
	case weekly >= weeklyOnFire:
		level.WeeklyLabel = "On Fire"
	case weekly >= weeklyTrending:
		level.WeeklyLabel = "Trending"
	case weekly >= weeklyActive:
		level.WeeklyLabel = "Active"
	}
	return level
}

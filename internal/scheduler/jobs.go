package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	FeedResyncJob      = "feed-resync"
	LeaderboardWarmJob = "leaderboard-warm"
)

// FeedResyncer is the part of the paginator the resync job drives.
type FeedResyncer interface {
	Keys() []string
	Resync(ctx context.Context, key string) error
}

// Warmer precomputes derived views.
type Warmer interface {
	Warm(ctx context.Context) error
}

// NewFeedResync merges a fresh first page into every cached search and then calls
// onChange. Keys with a fetch already in flight are skipped until the next run.
func NewFeedResync(spec string, feed FeedResyncer, skip error, onChange func(), logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return FuncJob{
		JobName: FeedResyncJob,
		Spec:    spec,
		Timeout: time.Minute,
		Fn: func(ctx context.Context) error {
			var errs []error
			for _, key := range feed.Keys() {
				err := feed.Resync(ctx, key)
				switch {
				case err == nil:
				case skip != nil && errors.Is(err, skip):
					logger.Debug("resync skipped, fetch in flight", zap.String("search", key))
				default:
					errs = append(errs, err)
				}
			}
			if onChange != nil {
				onChange()
			}
			return errors.Join(errs...)
		},
	}
}

func NewLeaderboardWarm(spec string, warmer Warmer) Job {
	return FuncJob{
		JobName: LeaderboardWarmJob,
		Spec:    spec,
		Timeout: time.Minute,
		Fn:      warmer.Warm,
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"anoa.com/kudosfeed/internal/model"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Snapshot is what a live client sees after each change to its active search.
type Snapshot struct {
	SearchKey string           `json:"search_key"`
	Pages     []model.FeedPage `json:"pages"`
	End       bool             `json:"end"`
	Error     string           `json:"error,omitempty"`
}

// Session tracks one client's active search key. Key changes are debounced and
// responses for keys that are no longer active are dropped.
type Session struct {
	ctx       context.Context
	paginator *Paginator
	clock     clockwork.Clock
	debounce  time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	activeKey string
	timer     clockwork.Timer
	closed    bool

	updates chan Snapshot
}

func NewSession(ctx context.Context, paginator *Paginator, clk clockwork.Clock, debounce time.Duration, logger *zap.Logger) *Session {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ctx:       ctx,
		paginator: paginator,
		clock:     clk,
		debounce:  debounce,
		logger:    logger,
		updates:   make(chan Snapshot, 1),
	}
}

// Updates delivers snapshots. Only the latest undelivered snapshot is kept.
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Session) ActiveKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeKey
}

// Start loads the first page of the unfiltered feed.
func (s *Session) Start() {
	s.load(s.ActiveKey(), func(key string, accept func() bool) (model.FeedPage, error) {
		return s.paginator.Load(s.ctx, key, 0, accept)
	})
}

// ChangeSearchKey schedules a switch to key once no further change arrives within the debounce window.
func (s *Session) ChangeSearchKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.activate(key) })
}

func (s *Session) activate(key string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.activeKey = key
	s.timer = nil
	s.mu.Unlock()

	s.load(key, func(key string, accept func() bool) (model.FeedPage, error) {
		return s.paginator.Load(s.ctx, key, 0, accept)
	})
}

// LoadMore requests the next page of the active search.
func (s *Session) LoadMore() {
	s.load(s.ActiveKey(), func(key string, accept func() bool) (model.FeedPage, error) {
		return s.paginator.Next(s.ctx, key, accept)
	})
}

// Refresh refetches the first page of the active search.
func (s *Session) Refresh() {
	s.load(s.ActiveKey(), func(key string, accept func() bool) (model.FeedPage, error) {
		return s.paginator.Refresh(s.ctx, key, accept)
	})
}

// Push emits the current state of the active search, for changes made elsewhere.
func (s *Session) Push() {
	s.emit(s.snapshot(s.ActiveKey(), nil))
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) isActive(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.activeKey == key
}

func (s *Session) load(key string, fetch func(key string, accept func() bool) (model.FeedPage, error)) {
	accept := func() bool { return s.isActive(key) }

	_, err := fetch(key, accept)
	switch {
	case errors.Is(err, ErrStaleResponse):
		s.logger.Debug("dropped stale feed page", zap.String("search", key))
		return
	case errors.Is(err, ErrEndOfFeed), errors.Is(err, ErrFetchInFlight):
		// a refresh running elsewhere reaches this session through the hub once it lands
		err = nil
	}

	if !s.isActive(key) {
		return
	}
	s.emit(s.snapshot(key, err))
}

func (s *Session) snapshot(key string, err error) Snapshot {
	snap := Snapshot{
		SearchKey: key,
		Pages:     s.paginator.cache.GetPages(key),
		End:       s.paginator.End(key),
	}
	if err != nil {
		snap.Error = err.Error()
	}
	return snap
}

func (s *Session) emit(snap Snapshot) {
	for {
		select {
		case s.updates <- snap:
			return
		default:
		}
		// replace the undelivered snapshot with the newer one
		select {
		case <-s.updates:
		default:
		}
	}
}

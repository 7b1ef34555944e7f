package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/modules/feed/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrFetchInFlight = errors.New("a page fetch is already in flight for this search")
	ErrEndOfFeed     = errors.New("end of feed reached")
	ErrPageGap       = errors.New("previous page is missing or not full")
	ErrStaleResponse = errors.New("response arrived for an inactive search")
)

// PageSource reads one page of posts. more reports whether rows exist past the page.
type PageSource interface {
	FetchPage(ctx context.Context, searchKey string, pageIndex int) (items []model.Post, more bool, err error)
}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseEnd      Phase = "end"
)

// PageState is the externally visible pagination state of one search key.
type PageState struct {
	Phase Phase `json:"phase"`
	// Page is the page being fetched while Fetching, otherwise the next page to request.
	Page int `json:"page"`
}

type keyState struct {
	loading    map[int]bool
	refreshing bool
	end        bool
	full       map[int]bool // as fetched, before deduplication
}

func (st *keyState) fetchingPage() (int, bool) {
	if st.refreshing {
		return 0, true
	}
	first, ok := 0, false
	for page := range st.loading {
		if !ok || page < first {
			first, ok = page, true
		}
	}
	return first, ok
}

// Paginator drives the per search key fetch state machine and fills the feed cache.
// It is shared by every client: concurrent requests for the same page join one fetch.
type Paginator struct {
	source  PageSource
	cache   *cache.FeedCache
	logger  *zap.Logger
	flights singleflight.Group

	mu     sync.Mutex
	states map[string]*keyState
	onPage func()
}

func NewPaginator(source PageSource, feedCache *cache.FeedCache, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{
		source: source,
		cache:  feedCache,
		logger: logger,
		states: make(map[string]*keyState),
	}
}

// OnPage registers fn to run after a fetched page lands in the cache, so clients that
// did not ask for it still see it.
func (p *Paginator) OnPage(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPage = fn
}

func (p *Paginator) landed() {
	p.mu.Lock()
	fn := p.onPage
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *Paginator) state(key string) *keyState {
	st, ok := p.states[key]
	if !ok {
		st = &keyState{loading: make(map[int]bool), full: make(map[int]bool)}
		p.states[key] = st
	}
	return st
}

// State reports the pagination phase of key.
func (p *Paginator) State(key string) PageState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(key)
	if page, ok := st.fetchingPage(); ok {
		return PageState{Phase: PhaseFetching, Page: page}
	}
	if st.end {
		return PageState{Phase: PhaseEnd, Page: p.nextIndex(key)}
	}
	return PageState{Phase: PhaseIdle, Page: p.nextIndex(key)}
}

func (p *Paginator) nextIndex(key string) int {
	pages := p.cache.GetPages(key)
	if len(pages) == 0 {
		return 0
	}
	return pages[len(pages)-1].PageIndex + 1
}

// Next loads the page after the last cached one.
func (p *Paginator) Next(ctx context.Context, key string, accept func() bool) (model.FeedPage, error) {
	p.mu.Lock()
	next := p.nextIndex(key)
	p.mu.Unlock()
	return p.Load(ctx, key, next, accept)
}

// Load returns page pageIndex of key, fetching it when it is not cached. A request for
// a page already being fetched waits for that fetch. The page is cached whatever accept
// says; accept only decides whether this caller gets it or ErrStaleResponse.
func (p *Paginator) Load(ctx context.Context, key string, pageIndex int, accept func() bool) (model.FeedPage, error) {
	p.mu.Lock()
	st := p.state(key)
	if page, ok := p.cache.Page(key, pageIndex); ok {
		p.mu.Unlock()
		return page, nil
	}
	if !st.loading[pageIndex] {
		if err := p.checkLoad(key, st, pageIndex); err != nil {
			p.mu.Unlock()
			return model.FeedPage{}, err
		}
	}
	p.mu.Unlock()

	_, err, _ := p.flights.Do(flightKey(key, "load", pageIndex), func() (any, error) {
		return nil, p.fetch(ctx, key, pageIndex)
	})
	if err != nil {
		return model.FeedPage{}, err
	}
	return p.deliver(key, pageIndex, accept)
}

// checkLoad applies the End and gap rules. Caller holds mu.
func (p *Paginator) checkLoad(key string, st *keyState, pageIndex int) error {
	if st.end {
		return ErrEndOfFeed
	}
	if pageIndex < 0 {
		return ErrPageGap
	}
	if pageIndex > 0 {
		prev, ok := p.cache.Page(key, pageIndex-1)
		if !ok || !(st.full[pageIndex-1] || prev.Full()) {
			return ErrPageGap
		}
		if st.refreshing {
			return ErrFetchInFlight
		}
	}
	return nil
}

func (p *Paginator) fetch(ctx context.Context, key string, pageIndex int) error {
	p.mu.Lock()
	st := p.state(key)
	if _, ok := p.cache.Page(key, pageIndex); ok {
		p.mu.Unlock()
		return nil
	}
	st.loading[pageIndex] = true
	p.mu.Unlock()

	// shared by every caller that joined; one leaving must not fail the rest
	items, more, err := p.source.FetchPage(context.WithoutCancel(ctx), key, pageIndex)

	p.mu.Lock()
	st = p.state(key)
	delete(st.loading, pageIndex)
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("feed page fetch failed", zap.String("search", key), zap.Int("page", pageIndex), zap.Error(err))
		return err
	}
	p.cache.AppendPage(key, pageIndex, items, false)
	st.full[pageIndex] = len(items) >= model.PageSize
	if !more {
		st.end = true
	}
	p.mu.Unlock()

	p.landed()
	return nil
}

func (p *Paginator) deliver(key string, pageIndex int, accept func() bool) (model.FeedPage, error) {
	if accept != nil && !accept() {
		return model.FeedPage{}, ErrStaleResponse
	}
	page, ok := p.cache.Page(key, pageIndex)
	if !ok {
		// replaced by a refresh while this caller waited
		return model.FeedPage{}, ErrStaleResponse
	}
	return page, nil
}

// Refresh refetches page 0 of key, drops every other cached page and leaves End.
// Concurrent refreshes of one key share a fetch.
func (p *Paginator) Refresh(ctx context.Context, key string, accept func() bool) (model.FeedPage, error) {
	_, err, _ := p.flights.Do(flightKey(key, "refresh", 0), func() (any, error) {
		p.mu.Lock()
		st := p.state(key)
		if page, ok := st.fetchingPage(); ok && page > 0 {
			p.mu.Unlock()
			return nil, ErrFetchInFlight
		}
		st.refreshing = true
		p.mu.Unlock()

		items, more, err := p.source.FetchPage(context.WithoutCancel(ctx), key, 0)

		p.mu.Lock()
		st = p.state(key)
		st.refreshing = false
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.cache.ReplacePages(key, items)
		st.full = map[int]bool{0: len(items) >= model.PageSize}
		st.end = !more
		p.mu.Unlock()

		p.landed()
		return nil, nil
	})
	if err != nil {
		return model.FeedPage{}, err
	}
	return p.deliver(key, 0, accept)
}

// Resync merges a fresh copy of page 0 into the cached first page. Later pages are
// kept, so it repairs posts missed by push events without resetting pagination.
// Cached posts the fresh page should contain but does not are dropped.
func (p *Paginator) Resync(ctx context.Context, key string) error {
	p.mu.Lock()
	if p.state(key).refreshing {
		p.mu.Unlock()
		return ErrFetchInFlight
	}
	p.mu.Unlock()

	_, err, _ := p.flights.Do(flightKey(key, "resync", 0), func() (any, error) {
		return nil, p.resync(ctx, key)
	})
	return err
}

func (p *Paginator) resync(ctx context.Context, key string) error {
	items, more, err := p.source.FetchPage(ctx, key, 0)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state(key)
	if st.refreshing {
		return ErrFetchInFlight
	}
	current, ok := p.cache.Page(key, 0)
	if !ok {
		return nil
	}

	merged := make([]model.Post, 0, len(items)+len(current.Items))
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		seen[item.ID] = struct{}{}
		merged = append(merged, item)
	}
	for _, item := range current.Items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		if vanished(item, items, more) {
			p.logger.Debug("dropping post missing from store", zap.String("search", key), zap.String("id", item.ID.String()))
			continue
		}
		merged = append(merged, item)
	}
	p.cache.AppendPage(key, 0, merged, true)
	if len(merged) >= model.PageSize {
		st.full[0] = true
	}
	return nil
}

// vanished reports whether a cached post absent from fresh, a newest-first first page,
// falls inside the span that page covers. Posts newer than the whole page may have been
// created after the fetch and are kept.
func vanished(item model.Post, fresh []model.Post, more bool) bool {
	if len(fresh) == 0 {
		return false
	}
	if model.NewerFirst(fresh[0], item) > 0 {
		return false
	}
	return !more || model.NewerFirst(item, fresh[len(fresh)-1]) < 0
}

// End reports whether key has reached its terminal page.
func (p *Paginator) End(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state(key).end
}

// Keys lists the search keys with cached pages.
func (p *Paginator) Keys() []string {
	return p.cache.Keys()
}

func flightKey(key, op string, pageIndex int) string {
	return op + ":" + strconv.Itoa(pageIndex) + ":" + key
}

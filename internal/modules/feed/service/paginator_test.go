package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/modules/feed/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySource serves posts from a slice with one row of lookahead.
type memorySource struct {
	mu      sync.Mutex
	items   []model.Post
	fetches []string
	gate    map[string]chan struct{}
	started chan string
}

func newMemorySource(n int) *memorySource {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	items := make([]model.Post, n)
	for i := range items {
		items[i] = model.Post{
			ID:        uuid.New(),
			Message:   fmt.Sprintf("post %d", i),
			CreatedAt: base.Add(-time.Duration(i) * time.Minute),
			Reactions: map[uuid.UUID]string{},
		}
	}
	return &memorySource{items: items, gate: map[string]chan struct{}{}, started: make(chan string, 16)}
}

func (s *memorySource) FetchPage(ctx context.Context, searchKey string, pageIndex int) ([]model.Post, bool, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, fmt.Sprintf("%s#%d", searchKey, pageIndex))
	gate := s.gate[searchKey]
	s.mu.Unlock()

	s.started <- searchKey
	if gate != nil {
		<-gate
	}

	var matching []model.Post
	for _, p := range s.items {
		if MatchesSearch(p, searchKey) {
			matching = append(matching, p)
		}
	}
	start := pageIndex * model.PageSize
	if start >= len(matching) {
		return []model.Post{}, false, nil
	}
	end := min(start+model.PageSize, len(matching))
	return matching[start:end], len(matching) > end, nil
}

func (s *memorySource) block(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gate[key] = ch
	return ch
}

func (s *memorySource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

func (s *memorySource) fetchLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetches...)
}

func TestPaginationTermination(t *testing.T) {
	for _, n := range []int{1, 9, 10, 11, 25, 30} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			src := newMemorySource(n)
			c := cache.New()
			p := NewPaginator(src, c, nil)

			for {
				_, err := p.Next(context.Background(), "", nil)
				if errors.Is(err, ErrEndOfFeed) {
					break
				}
				require.NoError(t, err)
				require.LessOrEqual(t, src.fetchCount(), n/model.PageSize+1, "runaway pagination")
			}

			wantFetches := (n + model.PageSize - 1) / model.PageSize
			assert.Equal(t, wantFetches, src.fetchCount())
			assert.Equal(t, PhaseEnd, p.State("").Phase)

			pages := c.GetPages("")
			last := pages[len(pages)-1]
			wantLast := n % model.PageSize
			if wantLast == 0 {
				wantLast = model.PageSize
			}
			assert.Len(t, last.Items, wantLast)
		})
	}
}

func TestPaginationEmptyStoreEndsAfterOneFetch(t *testing.T) {
	src := newMemorySource(0)
	p := NewPaginator(src, cache.New(), nil)

	page, err := p.Next(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = p.Next(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrEndOfFeed)
	assert.Equal(t, 1, src.fetchCount())
}

func TestLoadRejectsGaps(t *testing.T) {
	src := newMemorySource(30)
	p := NewPaginator(src, cache.New(), nil)
	ctx := context.Background()

	_, err := p.Load(ctx, "", 2, nil)
	assert.ErrorIs(t, err, ErrPageGap)
	_, err = p.Load(ctx, "", -1, nil)
	assert.ErrorIs(t, err, ErrPageGap)

	_, err = p.Load(ctx, "", 0, nil)
	require.NoError(t, err)
	_, err = p.Load(ctx, "", 2, nil)
	assert.ErrorIs(t, err, ErrPageGap)
	assert.Equal(t, 1, src.fetchCount())
}

func TestLoadServesCachedPageWithoutFetch(t *testing.T) {
	src := newMemorySource(5)
	p := NewPaginator(src, cache.New(), nil)

	first, err := p.Load(context.Background(), "", 0, nil)
	require.NoError(t, err)
	again, err := p.Load(context.Background(), "", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 1, src.fetchCount())
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	src := newMemorySource(30)
	gate := src.block("")
	p := NewPaginator(src, cache.New(), nil)
	var landed atomic.Int32
	p.OnPage(func() { landed.Add(1) })

	first := make(chan error, 1)
	go func() {
		_, err := p.Load(context.Background(), "", 0, nil)
		first <- err
	}()
	<-src.started
	assert.Equal(t, PageState{Phase: PhaseFetching, Page: 0}, p.State(""))

	second := make(chan model.FeedPage, 1)
	go func() {
		page, err := p.Load(context.Background(), "", 0, nil)
		assert.NoError(t, err)
		second <- page
	}()

	close(gate)
	require.NoError(t, <-first)
	page := <-second
	assert.Len(t, page.Items, model.PageSize)
	assert.Equal(t, 1, src.fetchCount())
	assert.Equal(t, int32(1), landed.Load())
	assert.Equal(t, PageState{Phase: PhaseIdle, Page: 1}, p.State(""))
}

func TestLoadCachesPageForRejectedCaller(t *testing.T) {
	src := newMemorySource(5)
	c := cache.New()
	p := NewPaginator(src, c, nil)

	_, err := p.Load(context.Background(), "", 0, func() bool { return false })
	assert.ErrorIs(t, err, ErrStaleResponse)
	require.Len(t, c.GetPages(""), 1)
	assert.Len(t, c.GetPages("")[0].Items, 5)
	assert.Equal(t, PhaseEnd, p.State("").Phase)
}

func TestNextPageRejectedWhileRefreshing(t *testing.T) {
	src := newMemorySource(30)
	c := cache.New()
	p := NewPaginator(src, c, nil)
	ctx := context.Background()

	_, err := p.Load(ctx, "", 0, nil)
	require.NoError(t, err)
	<-src.started

	gate := src.block("")
	done := make(chan error, 1)
	go func() {
		_, err := p.Refresh(ctx, "", nil)
		done <- err
	}()
	<-src.started

	_, err = p.Next(ctx, "", nil)
	assert.ErrorIs(t, err, ErrFetchInFlight)
	// the cached page stays readable while the refresh runs
	assert.Len(t, c.GetPages(""), 1)

	close(gate)
	require.NoError(t, <-done)
}

func TestRefreshResetsEnd(t *testing.T) {
	src := newMemorySource(3)
	c := cache.New()
	p := NewPaginator(src, c, nil)
	ctx := context.Background()

	_, err := p.Next(ctx, "", nil)
	require.NoError(t, err)
	require.True(t, p.End(""))

	src.mu.Lock()
	extra := make([]model.Post, 0, 12)
	for i := 0; i < 12; i++ {
		extra = append(extra, model.Post{ID: uuid.New(), CreatedAt: time.Date(2027, 1, 1, 0, i, 0, 0, time.UTC)})
	}
	src.items = append(extra, src.items...)
	src.mu.Unlock()

	page, err := p.Refresh(ctx, "", nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, model.PageSize)
	assert.False(t, p.End(""))

	_, err = p.Next(ctx, "", nil)
	require.NoError(t, err)
	assert.True(t, p.End(""))
}

func TestResyncMergesFirstPageAndKeepsLaterPages(t *testing.T) {
	src := newMemorySource(15)
	feedCache := cache.New()
	p := NewPaginator(src, feedCache, nil)
	ctx := context.Background()

	_, err := p.Load(ctx, "", 0, nil)
	require.NoError(t, err)
	_, err = p.Load(ctx, "", 1, nil)
	require.NoError(t, err)

	missed := model.Post{ID: uuid.New(), Message: "missed by push", CreatedAt: src.items[0].CreatedAt.Add(time.Minute)}
	src.mu.Lock()
	src.items = append([]model.Post{missed}, src.items...)
	src.mu.Unlock()

	require.NoError(t, p.Resync(ctx, ""))

	pages := feedCache.GetPages("")
	require.Len(t, pages, 2)
	assert.Equal(t, missed.ID, pages[0].Items[0].ID)
	assert.Len(t, pages[0].Items, model.PageSize+1)
	assert.Len(t, pages[1].Items, 5)

	seen := map[uuid.UUID]bool{}
	for _, page := range pages {
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], "duplicate id %s", item.ID)
			seen[item.ID] = true
		}
	}
	assert.Equal(t, PhaseEnd, p.State("").Phase)
}

func TestResyncDropsPostsDeletedFromStore(t *testing.T) {
	src := newMemorySource(15)
	feedCache := cache.New()
	p := NewPaginator(src, feedCache, nil)
	ctx := context.Background()

	_, err := p.Load(ctx, "", 0, nil)
	require.NoError(t, err)

	gone := src.items[3]
	src.mu.Lock()
	src.items = append(src.items[:3:3], src.items[4:]...)
	src.mu.Unlock()

	late := model.Post{ID: uuid.New(), Message: "pushed after the fetch", CreatedAt: src.items[0].CreatedAt.Add(time.Hour)}
	require.True(t, feedCache.PrependItem("", late))

	require.NoError(t, p.Resync(ctx, ""))

	page, ok := feedCache.Page("", 0)
	require.True(t, ok)
	ids := make([]uuid.UUID, 0, len(page.Items))
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}
	assert.NotContains(t, ids, gone.ID)
	assert.Contains(t, ids, late.ID, "posts newer than the fresh page are kept")
	assert.Equal(t, late.ID, ids[0])
}

func TestResyncSkipsUncachedKey(t *testing.T) {
	src := newMemorySource(3)
	feedCache := cache.New()
	p := NewPaginator(src, feedCache, nil)

	require.NoError(t, p.Resync(context.Background(), "nothing"))
	assert.Empty(t, feedCache.GetPages("nothing"))
}

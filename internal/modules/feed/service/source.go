package service

import (
	"context"
	"strings"

	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/modules/feed/cache"
	feedRepo "anoa.com/kudosfeed/internal/modules/feed/repository"
	searchService "anoa.com/kudosfeed/internal/modules/search/service"
	"go.uber.org/zap"
)

type pageSource struct {
	repo   feedRepo.FeedRepository
	search searchService.SearchService
	logger *zap.Logger
}

// NewPageSource reads unfiltered pages from the store and searched pages from the
// search index when one is configured, falling back to the store's text filter.
func NewPageSource(repo feedRepo.FeedRepository, search searchService.SearchService, logger *zap.Logger) PageSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pageSource{repo: repo, search: search, logger: logger}
}

func (s *pageSource) FetchPage(ctx context.Context, searchKey string, pageIndex int) ([]model.Post, bool, error) {
	term := strings.TrimSpace(searchKey)
	if term == "" || s.search == nil || !s.search.Enabled() {
		return s.repo.ListPage(ctx, searchKey, pageIndex)
	}

	ids, err := s.search.SearchPostIDs(ctx, term, pageIndex*model.PageSize, model.PageSize+1)
	if err != nil {
		s.logger.Warn("search index unavailable, using store filter", zap.String("search", term), zap.Error(err))
		return s.repo.ListPage(ctx, searchKey, pageIndex)
	}

	more := len(ids) > model.PageSize
	if more {
		ids = ids[:model.PageSize]
	}
	items, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, false, err
	}
	return items, more, nil
}

// MatchesSearch reports whether post belongs under searchKey. The empty key matches everything.
// It mirrors the store's text filter: a case-insensitive substring of the message or of a
// single tag. Pages served by the search index use its tokenized matching instead, so a
// pushed post can appear under a key the index would not return for it; the next refresh
// or resync of that key settles the difference.
func MatchesSearch(post model.Post, searchKey string) bool {
	term := strings.ToLower(strings.TrimSpace(searchKey))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(post.Message), term) {
		return true
	}
	for _, tag := range post.Tags {
		if strings.Contains(strings.ToLower(strings.ReplaceAll(tag, "\n", " ")), term) {
			return true
		}
	}
	return false
}

// PrependMatching inserts post at the head of every cached search whose key it matches.
// It reports the keys that changed.
func PrependMatching(feedCache *cache.FeedCache, post model.Post) []string {
	var changed []string
	for _, key := range feedCache.Keys() {
		if !MatchesSearch(post, key) {
			continue
		}
		if feedCache.PrependItem(key, post) {
			changed = append(changed, key)
		}
	}
	return changed
}

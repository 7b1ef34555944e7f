// Package cache holds the process-local feed pages for every search key.
//
// Readers load an immutable snapshot and never block. Writers serialize on a
// mutex, copy what they touch and publish a new snapshot.
package cache

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
)

type snapshot struct {
	keys map[string][]model.FeedPage // pages sorted by PageIndex
}

// tombstoneLimit bounds how many removed post and comment ids are remembered.
const tombstoneLimit = 4096

type FeedCache struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	// removed ids are refused by later inserts, so a fetch that started before a
	// delete cannot bring the row back. Guarded by mu.
	removed    map[uuid.UUID]struct{}
	removedLog []uuid.UUID
}

func New() *FeedCache {
	c := &FeedCache{removed: make(map[uuid.UUID]struct{})}
	c.snap.Store(&snapshot{keys: map[string][]model.FeedPage{}})
	return c
}

// bury records id as removed, evicting the oldest record past tombstoneLimit.
func (c *FeedCache) bury(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.removed[id]; ok {
		return
	}
	c.removed[id] = struct{}{}
	c.removedLog = append(c.removedLog, id)
	if len(c.removedLog) > tombstoneLimit {
		delete(c.removed, c.removedLog[0])
		c.removedLog = slices.Delete(c.removedLog, 0, 1)
	}
}

// isRemoved reports whether id was removed from the cache. Caller holds mu.
func (c *FeedCache) isRemoved(id uuid.UUID) bool {
	_, ok := c.removed[id]
	return ok
}

// GetPages returns a copy of the pages cached for searchKey, ordered by page index.
func (c *FeedCache) GetPages(searchKey string) []model.FeedPage {
	pages := c.snap.Load().keys[searchKey]
	out := make([]model.FeedPage, len(pages))
	for i, p := range pages {
		out[i] = p.Clone()
	}
	return out
}

// Page returns a copy of one cached page.
func (c *FeedCache) Page(searchKey string, pageIndex int) (model.FeedPage, bool) {
	for _, p := range c.snap.Load().keys[searchKey] {
		if p.PageIndex == pageIndex {
			return p.Clone(), true
		}
	}
	return model.FeedPage{}, false
}

// Keys lists every search key with at least one cached page.
func (c *FeedCache) Keys() []string {
	keys := make([]string, 0)
	for k, pages := range c.snap.Load().keys {
		if len(pages) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// FindItem returns a copy of the first cached post with id.
func (c *FeedCache) FindItem(id uuid.UUID) (model.Post, bool) {
	for _, pages := range c.snap.Load().keys {
		for _, p := range pages {
			for _, item := range p.Items {
				if item.ID == id {
					return item.Clone(), true
				}
			}
		}
	}
	return model.Post{}, false
}

// AppendPage stores a page for searchKey. An existing page is kept unless replace is set.
// Items already present on another page of the same key are dropped, since offset
// pagination shifts rows after newer posts are inserted.
func (c *FeedCache) AppendPage(searchKey string, pageIndex int, items []model.Post, replace bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	pages := cur.keys[searchKey]
	at := slices.IndexFunc(pages, func(p model.FeedPage) bool { return p.PageIndex == pageIndex })
	if at >= 0 && !replace {
		return false
	}

	seen := make(map[uuid.UUID]struct{})
	for _, p := range pages {
		if p.PageIndex == pageIndex {
			continue
		}
		for _, item := range p.Items {
			seen[item.ID] = struct{}{}
		}
	}

	page := model.FeedPage{PageIndex: pageIndex, SearchKey: searchKey, Items: c.admit(items, seen)}
	next := slices.Clone(pages)
	if at >= 0 {
		next[at] = page
	} else {
		next = append(next, page)
		slices.SortFunc(next, func(a, b model.FeedPage) int { return a.PageIndex - b.PageIndex })
	}

	c.publish(cur, searchKey, next)
	return true
}

// admit clones the items that are neither in seen nor removed, newest first. Caller holds mu.
func (c *FeedCache) admit(items []model.Post, seen map[uuid.UUID]struct{}) []model.Post {
	kept := make([]model.Post, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup || c.isRemoved(item.ID) {
			continue
		}
		seen[item.ID] = struct{}{}
		item = item.Clone()
		item.Comments = slices.DeleteFunc(item.Comments, func(x model.Comment) bool { return c.isRemoved(x.ID) })
		kept = append(kept, item)
	}
	slices.SortStableFunc(kept, model.NewerFirst)
	return kept
}

// ReplacePages makes items the only page of searchKey in one snapshot, so readers never
// observe the key without pages.
func (c *FeedCache) ReplacePages(searchKey string, items []model.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()

	page := model.FeedPage{PageIndex: 0, SearchKey: searchKey, Items: c.admit(items, make(map[uuid.UUID]struct{}))}
	c.publish(c.snap.Load(), searchKey, []model.FeedPage{page})
}

// PrependItem inserts item at the head of the earliest cached page for searchKey.
// It is a no-op when the key has no pages, already holds the id or the id was removed.
func (c *FeedCache) PrependItem(searchKey string, item model.Post) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	pages := cur.keys[searchKey]
	if len(pages) == 0 || c.isRemoved(item.ID) {
		return false
	}
	for _, p := range pages {
		if slices.ContainsFunc(p.Items, func(x model.Post) bool { return x.ID == item.ID }) {
			return false
		}
	}

	next := slices.Clone(pages)
	first := next[0]
	items := make([]model.Post, 0, len(first.Items)+1)
	items = append(items, item.Clone())
	items = append(items, first.Items...)
	next[0] = model.FeedPage{PageIndex: first.PageIndex, SearchKey: first.SearchKey, Items: items}

	c.publish(cur, searchKey, next)
	return true
}

// PatchItem merges patch into every cached copy of the post with id.
func (c *FeedCache) PatchItem(id uuid.UUID, patch model.PostPatch) bool {
	return c.rewrite(func(p model.Post) (model.Post, bool, bool) {
		if p.ID != id {
			return p, false, true
		}
		cp := p.Clone()
		patch.Apply(&cp)
		return cp, true, true
	})
}

// UpdateItem applies fn to a private copy of every cached post with id.
func (c *FeedCache) UpdateItem(id uuid.UUID, fn func(*model.Post)) bool {
	return c.rewrite(func(p model.Post) (model.Post, bool, bool) {
		if p.ID != id {
			return p, false, true
		}
		cp := p.Clone()
		fn(&cp)
		return cp, true, true
	})
}

// RemoveItem drops the post with id from every page of every key. The id is not
// accepted again.
func (c *FeedCache) RemoveItem(id uuid.UUID) bool {
	c.bury(id)
	return c.rewrite(func(p model.Post) (model.Post, bool, bool) {
		if p.ID != id {
			return p, false, true
		}
		return p, true, false
	})
}

// AppendComment attaches comment to its post unless a comment with the same id is already there.
func (c *FeedCache) AppendComment(comment model.Comment) bool {
	return c.rewrite(func(p model.Post) (model.Post, bool, bool) {
		if p.ID != comment.PostID || p.HasComment(comment.ID) || c.isRemoved(comment.ID) {
			return p, false, true
		}
		cp := p.Clone()
		cp.Comments = append(cp.Comments, comment)
		model.SortComments(cp.Comments)
		return cp, true, true
	})
}

// PatchComment replaces the content of a cached comment.
func (c *FeedCache) PatchComment(commentID uuid.UUID, content string) bool {
	return c.rewrite(func(p model.Post) (model.Post, bool, bool) {
		i := slices.IndexFunc(p.Comments, func(x model.Comment) bool { return x.ID == commentID })
		if i < 0 || p.Comments[i].Content == content {
			return p, false, true
		}
		cp := p.Clone()
		cp.Comments[i].Content = content
		return cp, true, true
	})
}

// RemoveComment drops a cached comment. The id is not accepted again.
func (c *FeedCache) RemoveComment(commentID uuid.UUID) bool {
	c.bury(commentID)
	return c.rewrite(func(p model.Post) (model.Post, bool, bool) {
		if !p.HasComment(commentID) {
			return p, false, true
		}
		cp := p.Clone()
		cp.Comments = slices.DeleteFunc(cp.Comments, func(x model.Comment) bool { return x.ID == commentID })
		return cp, true, true
	})
}

// Clear forgets every page of searchKey.
func (c *FeedCache) Clear(searchKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	if _, ok := cur.keys[searchKey]; !ok {
		return
	}
	c.publish(cur, searchKey, nil)
}

// publish stores a snapshot that differs from cur only in searchKey. Caller holds mu.
func (c *FeedCache) publish(cur *snapshot, searchKey string, pages []model.FeedPage) {
	keys := make(map[string][]model.FeedPage, len(cur.keys)+1)
	for k, v := range cur.keys {
		keys[k] = v
	}
	if pages == nil {
		delete(keys, searchKey)
	} else {
		keys[searchKey] = pages
	}
	c.snap.Store(&snapshot{keys: keys})
}

// rewrite passes every cached post through fn, which returns the replacement,
// whether it changed and whether to keep it. fn must not modify its argument and
// runs with mu held.
func (c *FeedCache) rewrite(fn func(model.Post) (model.Post, bool, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.snap.Load()
	keys := make(map[string][]model.FeedPage, len(cur.keys))
	touched := false

	for key, pages := range cur.keys {
		var nextPages []model.FeedPage
		for pi, page := range pages {
			var items []model.Post
			for ii, item := range page.Items {
				out, changed, keep := fn(item)
				if !changed {
					if items != nil {
						items = append(items, item)
					}
					continue
				}
				if items == nil {
					items = make([]model.Post, 0, len(page.Items))
					items = append(items, page.Items[:ii]...)
				}
				if keep {
					items = append(items, out)
				}
			}
			if items == nil {
				continue
			}
			if nextPages == nil {
				nextPages = slices.Clone(pages)
			}
			nextPages[pi] = model.FeedPage{PageIndex: page.PageIndex, SearchKey: page.SearchKey, Items: items}
		}
		if nextPages != nil {
			keys[key] = nextPages
			touched = true
		} else {
			keys[key] = pages
		}
	}

	if touched {
		c.snap.Store(&snapshot{keys: keys})
	}
	return touched
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway/gatewaytest"
	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/modules/feed/cache"
	feedRepo "anoa.com/kudosfeed/internal/modules/feed/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInbox struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *recordingInbox) MergeByID(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type mergerFixture struct {
	repo    feedRepo.FeedRepository
	cache   *cache.FeedCache
	inbox   *recordingInbox
	merger  *Merger
	changes int
}

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newMergerFixture(t *testing.T) *mergerFixture {
	t.Helper()
	gw, _ := gatewaytest.New(t)
	f := &mergerFixture{
		repo:  feedRepo.NewFeedRepository(gw),
		cache: cache.New(),
		inbox: &recordingInbox{},
	}
	f.merger = NewMerger(f.repo, f.cache, f.inbox, func() { f.changes++ }, 1, nil)
	return f
}

func (f *mergerFixture) createPost(t *testing.T, message string, at time.Time) model.Post {
	t.Helper()
	p := model.Post{
		ID:          uuid.New(),
		SenderID:    uuid.New(),
		Message:     message,
		Tags:        []string{},
		CreatedAt:   at,
		ReceiverIDs: []uuid.UUID{uuid.New()},
	}
	require.NoError(t, f.repo.CreatePost(context.Background(), p))
	return p
}

func TestMergerPrependsInsertedPostOnce(t *testing.T) {
	f := newMergerFixture(t)
	ctx := context.Background()

	old := f.createPost(t, "older", base)
	f.cache.AppendPage("", 0, []model.Post{old}, true)
	f.cache.AppendPage("design", 0, []model.Post{}, true)

	fresh := f.createPost(t, "shipped the Design review", base.Add(time.Hour))
	event := model.ChangeEvent{Table: entity.TableKudos, Operation: model.OpInsert, RowID: fresh.ID}

	require.NoError(t, f.merger.Handle(ctx, event))
	require.NoError(t, f.merger.Handle(ctx, event))

	pages := f.cache.GetPages("")
	require.Len(t, pages[0].Items, 2)
	assert.Equal(t, fresh.ID, pages[0].Items[0].ID)

	design := f.cache.GetPages("design")
	require.Len(t, design[0].Items, 1, "matching search key receives the post")
}

func TestMergerIgnoresVanishedRows(t *testing.T) {
	f := newMergerFixture(t)
	f.cache.AppendPage("", 0, []model.Post{}, true)

	err := f.merger.Handle(context.Background(), model.ChangeEvent{
		Table: entity.TableKudos, Operation: model.OpInsert, RowID: uuid.New(),
	})

	require.NoError(t, err)
	assert.Empty(t, f.cache.GetPages("")[0].Items)
	assert.Zero(t, f.changes)
}

func TestMergerUpdateAndDelete(t *testing.T) {
	f := newMergerFixture(t)
	ctx := context.Background()

	p := f.createPost(t, "first draft", base)
	f.cache.AppendPage("", 0, []model.Post{p}, true)

	require.NoError(t, f.repo.UpdatePost(ctx, p.ID, "final text", []string{"ship"}))
	require.NoError(t, f.merger.Handle(ctx, model.ChangeEvent{Table: entity.TableKudos, Operation: model.OpUpdate, RowID: p.ID}))

	got, ok := f.cache.FindItem(p.ID)
	require.True(t, ok)
	assert.Equal(t, "final text", got.Message)
	assert.Equal(t, []string{"ship"}, got.Tags)

	require.NoError(t, f.merger.Handle(ctx, model.ChangeEvent{Table: entity.TableKudos, Operation: model.OpDelete, RowID: p.ID}))
	_, ok = f.cache.FindItem(p.ID)
	assert.False(t, ok)
}

func TestMergerComments(t *testing.T) {
	f := newMergerFixture(t)
	ctx := context.Background()

	p := f.createPost(t, "thanks", base)
	f.cache.AppendPage("", 0, []model.Post{p}, true)

	c := model.Comment{ID: uuid.New(), PostID: p.ID, AuthorID: uuid.New(), Content: "agreed", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, f.repo.CreateComment(ctx, c))

	insert := model.ChangeEvent{Table: entity.TableComments, Operation: model.OpInsert, RowID: c.ID}
	require.NoError(t, f.merger.Handle(ctx, insert))
	require.NoError(t, f.merger.Handle(ctx, insert))

	got, _ := f.cache.FindItem(p.ID)
	require.Len(t, got.Comments, 1)

	require.NoError(t, f.repo.UpdateComment(ctx, c.ID, "strongly agreed"))
	require.NoError(t, f.merger.Handle(ctx, model.ChangeEvent{Table: entity.TableComments, Operation: model.OpUpdate, RowID: c.ID}))
	got, _ = f.cache.FindItem(p.ID)
	assert.Equal(t, "strongly agreed", got.Comments[0].Content)

	require.NoError(t, f.merger.Handle(ctx, model.ChangeEvent{Table: entity.TableComments, Operation: model.OpDelete, RowID: c.ID}))
	got, _ = f.cache.FindItem(p.ID)
	assert.Empty(t, got.Comments)
}

func TestMergerResyncsReactions(t *testing.T) {
	f := newMergerFixture(t)
	ctx := context.Background()

	p := f.createPost(t, "thanks", base)
	f.cache.AppendPage("", 0, []model.Post{p}, true)

	user := uuid.New()
	require.NoError(t, f.repo.SetReaction(ctx, p.ID, user, "fire"))
	postID := p.ID
	require.NoError(t, f.merger.Handle(ctx, model.ChangeEvent{
		Table: entity.TableReactions, Operation: model.OpInsert, RowID: uuid.New(), PostID: &postID,
	}))

	got, _ := f.cache.FindItem(p.ID)
	assert.Equal(t, map[uuid.UUID]string{user: "fire"}, got.Reactions)

	require.NoError(t, f.repo.DeleteReaction(ctx, p.ID, user))
	require.NoError(t, f.merger.Handle(ctx, model.ChangeEvent{
		Table: entity.TableReactions, Operation: model.OpDelete, RowID: uuid.New(), PostID: &postID,
	}))

	got, _ = f.cache.FindItem(p.ID)
	assert.Empty(t, got.Reactions)
}

func TestMergerForwardsNotificationInserts(t *testing.T) {
	f := newMergerFixture(t)
	id := uuid.New()

	require.NoError(t, f.merger.Handle(context.Background(), model.ChangeEvent{
		Table: entity.TableNotifications, Operation: model.OpInsert, RowID: id,
	}))
	require.NoError(t, f.merger.Handle(context.Background(), model.ChangeEvent{
		Table: entity.TableNotifications, Operation: model.OpUpdate, RowID: id,
	}))

	assert.Equal(t, []uuid.UUID{id}, f.inbox.ids)
}

func TestMergerRunDrainsChannel(t *testing.T) {
	gw, _ := gatewaytest.New(t)
	repo := feedRepo.NewFeedRepository(gw)
	feedCache := cache.New()
	feedCache.AppendPage("", 0, []model.Post{}, true)
	merger := NewMerger(repo, feedCache, nil, nil, 3, nil)

	events := make(chan model.ChangeEvent, 8)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		p := model.Post{
			ID: uuid.New(), SenderID: uuid.New(), Message: "hi", Tags: []string{},
			CreatedAt: base.Add(time.Duration(i) * time.Minute), ReceiverIDs: []uuid.UUID{uuid.New()},
		}
		require.NoError(t, repo.CreatePost(context.Background(), p))
		ids = append(ids, p.ID)
		events <- model.ChangeEvent{Table: entity.TableKudos, Operation: model.OpInsert, RowID: p.ID}
	}
	close(events)

	require.NoError(t, merger.Run(context.Background(), events))
	items := feedCache.GetPages("")[0].Items
	require.Len(t, items, 5)
	assert.Equal(t, ids[4], items[0].ID, "newest first regardless of arrival order")
}

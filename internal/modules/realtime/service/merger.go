package service

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/modules/feed/cache"
	feed "anoa.com/kudosfeed/internal/modules/feed/service"
	"anoa.com/kudosfeed/pkg/apperror"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecordReader fetches the rows a change event points at.
type RecordReader interface {
	FindPost(ctx context.Context, id uuid.UUID) (model.Post, error)
	FindComment(ctx context.Context, id uuid.UUID) (model.Comment, error)
	FindReaction(ctx context.Context, id uuid.UUID) (entity.Reaction, error)
	ReactionsOf(ctx context.Context, postID uuid.UUID) (map[uuid.UUID]string, error)
}

// InboxMerger loads a notification by id and adds it to its recipient's inbox.
type InboxMerger interface {
	MergeByID(ctx context.Context, id uuid.UUID) error
}

// Merger applies change events to the feed cache and notification inboxes.
// Every cache operation it uses is idempotent on id, so duplicate and
// out-of-order delivery converge on the same state.
type Merger struct {
	records  RecordReader
	cache    *cache.FeedCache
	inbox    InboxMerger
	onChange func()
	workers  int
	logger   *zap.Logger
}

func NewMerger(records RecordReader, feedCache *cache.FeedCache, inbox InboxMerger, onChange func(), workers int, logger *zap.Logger) *Merger {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		records:  records,
		cache:    feedCache,
		inbox:    inbox,
		onChange: onChange,
		workers:  workers,
		logger:   logger,
	}
}

// Run handles events with a fixed pool of workers until events is closed or ctx ends.
func (m *Merger) Run(ctx context.Context, events <-chan model.ChangeEvent) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case e, ok := <-events:
					if !ok {
						return nil
					}
					if err := m.Handle(ctx, e); err != nil {
						m.logger.Warn("dropped change event",
							zap.String("table", e.Table),
							zap.String("op", string(e.Operation)),
							zap.String("row_id", e.RowID.String()),
							zap.Error(err))
					}
				}
			}
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle applies one event. A row that no longer exists is not an error.
func (m *Merger) Handle(ctx context.Context, e model.ChangeEvent) error {
	err := m.apply(ctx, e)
	if errors.Is(err, apperror.ErrNotFound) {
		m.logger.Debug("change event row vanished", zap.String("table", e.Table), zap.String("row_id", e.RowID.String()))
		return nil
	}
	if err != nil {
		return err
	}
	if m.onChange != nil {
		m.onChange()
	}
	return nil
}

func (m *Merger) apply(ctx context.Context, e model.ChangeEvent) error {
	switch e.Table {
	case entity.TableKudos:
		return m.applyKudos(ctx, e)
	case entity.TableComments:
		return m.applyComment(ctx, e)
	case entity.TableReactions:
		return m.applyReaction(ctx, e)
	case entity.TableNotifications:
		if e.Operation != model.OpInsert || m.inbox == nil {
			return nil
		}
		return m.inbox.MergeByID(ctx, e.RowID)
	}
	return fmt.Errorf("unknown table %q", e.Table)
}

func (m *Merger) applyKudos(ctx context.Context, e model.ChangeEvent) error {
	switch e.Operation {
	case model.OpInsert:
		post, err := m.records.FindPost(ctx, e.RowID)
		if err != nil {
			return err
		}
		feed.PrependMatching(m.cache, post)
	case model.OpUpdate:
		post, err := m.records.FindPost(ctx, e.RowID)
		if err != nil {
			return err
		}
		m.cache.PatchItem(post.ID, model.PostPatch{Message: &post.Message, Tags: post.Tags})
	case model.OpDelete:
		m.cache.RemoveItem(e.RowID)
	}
	return nil
}

func (m *Merger) applyComment(ctx context.Context, e model.ChangeEvent) error {
	switch e.Operation {
	case model.OpInsert:
		c, err := m.records.FindComment(ctx, e.RowID)
		if err != nil {
			return err
		}
		m.cache.AppendComment(c)
	case model.OpUpdate:
		c, err := m.records.FindComment(ctx, e.RowID)
		if err != nil {
			return err
		}
		m.cache.PatchComment(c.ID, c.Content)
	case model.OpDelete:
		m.cache.RemoveComment(e.RowID)
	}
	return nil
}

// applyReaction resyncs the whole reaction map of the post from the store.
func (m *Merger) applyReaction(ctx context.Context, e model.ChangeEvent) error {
	var postID uuid.UUID
	switch {
	case e.PostID != nil:
		postID = *e.PostID
	case e.Operation != model.OpDelete:
		r, err := m.records.FindReaction(ctx, e.RowID)
		if err != nil {
			return err
		}
		postID = r.KudosID
	default:
		return fmt.Errorf("reaction delete without post id: %w", apperror.ErrNotFound)
	}

	reactions, err := m.records.ReactionsOf(ctx, postID)
	if err != nil {
		return err
	}
	m.cache.PatchItem(postID, model.PostPatch{Reactions: reactions})
	return nil
}

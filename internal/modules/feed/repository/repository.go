package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/gateway"
	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
)

// searchColumns are matched by the fallback text filter. tag_text keeps one tag per
// line, so a term spanning lines is matched against the message only.
var searchColumns = []string{"message", "tag_text"}

var newestFirst = []gateway.Order{{Column: "created_at", Desc: true}, {Column: "id", Desc: true}}

type FeedRepository interface {
	// ListPage reads page pageIndex for searchKey. more reports whether the store holds rows past it.
	ListPage(ctx context.Context, searchKey string, pageIndex int) (items []model.Post, more bool, err error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Post, error)
	FindPost(ctx context.Context, id uuid.UUID) (model.Post, error)
	FindComment(ctx context.Context, id uuid.UUID) (model.Comment, error)
	FindReaction(ctx context.Context, id uuid.UUID) (entity.Reaction, error)
	ReactionsOf(ctx context.Context, postID uuid.UUID) (map[uuid.UUID]string, error)

	CreatePost(ctx context.Context, post model.Post) error
	UpdatePost(ctx context.Context, id uuid.UUID, message string, tags []string) error
	DeletePost(ctx context.Context, id uuid.UUID) error
	SetReaction(ctx context.Context, postID, userID uuid.UUID, reactionType string) error
	DeleteReaction(ctx context.Context, postID, userID uuid.UUID) error
	CreateComment(ctx context.Context, comment model.Comment) error
	UpdateComment(ctx context.Context, id uuid.UUID, content string) error
	DeleteComment(ctx context.Context, id uuid.UUID) error
}

type feedRepository struct {
	gw gateway.Gateway
}

func NewFeedRepository(gw gateway.Gateway) FeedRepository {
	return &feedRepository{gw: gw}
}

func (r *feedRepository) ListPage(ctx context.Context, searchKey string, pageIndex int) ([]model.Post, bool, error) {
	start := pageIndex * model.PageSize
	q := gateway.Query{
		Collection: entity.TableKudos,
		OrderBy:    newestFirst,
		RangeStart: start,
		// one row of lookahead tells a short page from a full last page
		RangeEnd: start + model.PageSize,
	}
	if term := strings.TrimSpace(searchKey); term != "" {
		columns := searchColumns
		if strings.Contains(term, "\n") {
			columns = searchColumns[:1]
		}
		q.Text = &gateway.TextFilter{Columns: columns, Term: term}
	}

	var rows []entity.Kudos
	if err := r.gw.Query(ctx, q, &rows); err != nil {
		return nil, false, fmt.Errorf("list feed page %d: %w", pageIndex, err)
	}

	more := len(rows) > model.PageSize
	if more {
		rows = rows[:model.PageSize]
	}

	items, err := r.assemble(ctx, rows)
	if err != nil {
		return nil, false, err
	}
	return items, more, nil
}

// ListByIDs returns the posts for ids in the order given. Missing ids are skipped.
func (r *feedRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []entity.Kudos
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"id": ids},
		RangeEnd:   -1,
	}, &rows); err != nil {
		return nil, fmt.Errorf("list posts by id: %w", err)
	}

	posts, err := r.assemble(ctx, rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]model.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]model.Post, 0, len(posts))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func (r *feedRepository) FindPost(ctx context.Context, id uuid.UUID) (model.Post, error) {
	var row entity.Kudos
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudos,
		Equals:     map[string]any{"id": id},
		Single:     true,
	}, &row); err != nil {
		return model.Post{}, fmt.Errorf("find post %s: %w", id, err)
	}

	posts, err := r.assemble(ctx, []entity.Kudos{row})
	if err != nil {
		return model.Post{}, err
	}
	return posts[0], nil
}

func (r *feedRepository) FindComment(ctx context.Context, id uuid.UUID) (model.Comment, error) {
	var row entity.Comment
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableComments,
		Equals:     map[string]any{"id": id},
		Single:     true,
	}, &row); err != nil {
		return model.Comment{}, fmt.Errorf("find comment %s: %w", id, err)
	}
	return toComment(row), nil
}

func (r *feedRepository) FindReaction(ctx context.Context, id uuid.UUID) (entity.Reaction, error) {
	var row entity.Reaction
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableReactions,
		Equals:     map[string]any{"id": id},
		Single:     true,
	}, &row); err != nil {
		return entity.Reaction{}, fmt.Errorf("find reaction %s: %w", id, err)
	}
	return row, nil
}

func (r *feedRepository) ReactionsOf(ctx context.Context, postID uuid.UUID) (map[uuid.UUID]string, error) {
	var rows []entity.Reaction
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableReactions,
		Equals:     map[string]any{"kudos_id": postID},
		RangeEnd:   -1,
	}, &rows); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	out := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		out[row.UserID] = row.Type
	}
	return out, nil
}

func (r *feedRepository) CreatePost(ctx context.Context, post model.Post) error {
	row := entity.Kudos{
		ID:        post.ID,
		SenderID:  post.SenderID,
		Message:   post.Message,
		Tags:      post.Tags,
		ImageURLs: post.ImageURLs,
		CreatedAt: post.CreatedAt,
	}
	if _, err := r.gw.Mutate(ctx, gateway.Mutation{Op: gateway.Insert, Collection: entity.TableKudos, Payload: &row}); err != nil {
		return fmt.Errorf("insert kudos: %w", err)
	}

	if len(post.ReceiverIDs) == 0 {
		return nil
	}
	receivers := make([]entity.KudosReceiver, 0, len(post.ReceiverIDs))
	for _, id := range post.ReceiverIDs {
		receivers = append(receivers, entity.KudosReceiver{KudosID: row.ID, UserID: id, CreatedAt: row.CreatedAt})
	}
	if _, err := r.gw.Mutate(ctx, gateway.Mutation{Op: gateway.Insert, Collection: entity.TableKudosReceivers, Payload: &receivers}); err != nil {
		// no transactions across the gateway; undo the parent row
		_ = r.DeletePost(ctx, row.ID)
		return fmt.Errorf("insert receivers: %w", err)
	}
	return nil
}

func (r *feedRepository) UpdatePost(ctx context.Context, id uuid.UUID, message string, tags []string) error {
	values := map[string]any{"message": message}
	if tags != nil {
		encoded, err := encodeTags(tags)
		if err != nil {
			return err
		}
		values["tags"] = encoded
		values["tag_text"] = entity.JoinTags(tags)
	}
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Update,
		Collection:   entity.TableKudos,
		Where:        map[string]any{"id": id},
		Values:       values,
		RequireMatch: true,
	})
	if err != nil {
		return fmt.Errorf("update kudos: %w", err)
	}
	return nil
}

func (r *feedRepository) DeletePost(ctx context.Context, id uuid.UUID) error {
	children := []struct {
		collection string
		row        any
	}{
		{entity.TableComments, &entity.Comment{}},
		{entity.TableReactions, &entity.Reaction{}},
		{entity.TableKudosReceivers, &entity.KudosReceiver{}},
	}
	for _, child := range children {
		if _, err := r.gw.Mutate(ctx, gateway.Mutation{
			Op:         gateway.Delete,
			Collection: child.collection,
			Payload:    child.row,
			Where:      map[string]any{"kudos_id": id},
		}); err != nil {
			return fmt.Errorf("delete %s: %w", child.collection, err)
		}
	}

	if _, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Delete,
		Collection:   entity.TableKudos,
		Payload:      &entity.Kudos{},
		Where:        map[string]any{"id": id},
		RequireMatch: true,
	}); err != nil {
		return fmt.Errorf("delete kudos: %w", err)
	}
	return nil
}

func (r *feedRepository) SetReaction(ctx context.Context, postID, userID uuid.UUID, reactionType string) error {
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:              gateway.Upsert,
		Collection:      entity.TableReactions,
		Payload:         &entity.Reaction{KudosID: postID, UserID: userID, Type: reactionType},
		ConflictColumns: []string{"kudos_id", "user_id"},
		Values:          map[string]any{"type": reactionType},
	})
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

func (r *feedRepository) DeleteReaction(ctx context.Context, postID, userID uuid.UUID) error {
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:         gateway.Delete,
		Collection: entity.TableReactions,
		Payload:    &entity.Reaction{},
		Where:      map[string]any{"kudos_id": postID, "user_id": userID},
	})
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

func (r *feedRepository) CreateComment(ctx context.Context, comment model.Comment) error {
	row := entity.Comment{
		ID:        comment.ID,
		KudosID:   comment.PostID,
		AuthorID:  comment.AuthorID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	}
	if _, err := r.gw.Mutate(ctx, gateway.Mutation{Op: gateway.Insert, Collection: entity.TableComments, Payload: &row}); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (r *feedRepository) UpdateComment(ctx context.Context, id uuid.UUID, content string) error {
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Update,
		Collection:   entity.TableComments,
		Where:        map[string]any{"id": id},
		Values:       map[string]any{"content": content},
		RequireMatch: true,
	})
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return nil
}

func (r *feedRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	_, err := r.gw.Mutate(ctx, gateway.Mutation{
		Op:           gateway.Delete,
		Collection:   entity.TableComments,
		Payload:      &entity.Comment{},
		Where:        map[string]any{"id": id},
		RequireMatch: true,
	})
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

// assemble joins kudos rows with their receivers, reactions and comments.
func (r *feedRepository) assemble(ctx context.Context, rows []entity.Kudos) ([]model.Post, error) {
	if len(rows) == 0 {
		return []model.Post{}, nil
	}

	ids := make([]uuid.UUID, len(rows))
	posts := make([]model.Post, len(rows))
	index := make(map[uuid.UUID]int, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		index[row.ID] = i
		posts[i] = model.Post{
			ID:          row.ID,
			SenderID:    row.SenderID,
			Message:     row.Message,
			Tags:        nonNil(row.Tags),
			ImageURLs:   nonNil(row.ImageURLs),
			CreatedAt:   row.CreatedAt,
			ReceiverIDs: []uuid.UUID{},
			Reactions:   map[uuid.UUID]string{},
			Comments:    []model.Comment{},
		}
	}

	var receivers []entity.KudosReceiver
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableKudosReceivers,
		Equals:     map[string]any{"kudos_id": ids},
		RangeEnd:   -1,
	}, &receivers); err != nil {
		return nil, fmt.Errorf("load receivers: %w", err)
	}
	for _, rec := range receivers {
		p := &posts[index[rec.KudosID]]
		p.ReceiverIDs = append(p.ReceiverIDs, rec.UserID)
	}

	var reactions []entity.Reaction
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableReactions,
		Equals:     map[string]any{"kudos_id": ids},
		RangeEnd:   -1,
	}, &reactions); err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	for _, re := range reactions {
		posts[index[re.KudosID]].Reactions[re.UserID] = re.Type
	}

	var comments []entity.Comment
	if err := r.gw.Query(ctx, gateway.Query{
		Collection: entity.TableComments,
		Equals:     map[string]any{"kudos_id": ids},
		OrderBy:    []gateway.Order{{Column: "created_at"}, {Column: "id"}},
		RangeEnd:   -1,
	}, &comments); err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	for _, c := range comments {
		p := &posts[index[c.KudosID]]
		p.Comments = append(p.Comments, toComment(c))
	}

	for i := range posts {
		slices.SortFunc(posts[i].ReceiverIDs, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	}
	return posts, nil
}

func toComment(row entity.Comment) model.Comment {
	return model.Comment{
		ID:        row.ID,
		PostID:    row.KudosID,
		AuthorID:  row.AuthorID,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

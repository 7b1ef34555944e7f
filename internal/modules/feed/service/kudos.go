package service

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"anoa.com/kudosfeed/internal/entity"
	"anoa.com/kudosfeed/internal/model"
	"anoa.com/kudosfeed/internal/modules/feed/cache"
	feedDto "anoa.com/kudosfeed/internal/modules/feed/dto"
	feedRepo "anoa.com/kudosfeed/internal/modules/feed/repository"
	searchService "anoa.com/kudosfeed/internal/modules/search/service"
	userRepo "anoa.com/kudosfeed/internal/modules/user/repository"
	"anoa.com/kudosfeed/pkg/apperror"
	"anoa.com/kudosfeed/pkg/ratelimiter"
	"anoa.com/kudosfeed/pkg/storage"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxCommentLength = 1000

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_.]{3,50})`)

// Notifier creates notifications without blocking the caller.
type Notifier interface {
	Notify(recipient, sender uuid.UUID, typ model.NotificationType, resourceID uuid.UUID)
}

// EventPublisher announces row changes to every process holding a feed cache.
type EventPublisher interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
}

// Limits are the per-user cooldowns applied to new kudos.
type Limits struct {
	Global time.Duration
	Kudos  time.Duration
}

type KudosService interface {
	SubmitPost(ctx context.Context, sender uuid.UUID, req feedDto.CreateKudosRequest) (model.Post, error)
	EditPost(ctx context.Context, userID, postID uuid.UUID, req feedDto.UpdateKudosRequest) (model.Post, error)
	DeletePost(ctx context.Context, userID, postID uuid.UUID) error
	React(ctx context.Context, userID, postID uuid.UUID, reactionType string) (model.Post, error)
	Comment(ctx context.Context, authorID, postID uuid.UUID, content string) (model.Comment, error)
	EditComment(ctx context.Context, userID, commentID uuid.UUID, content string) (model.Comment, error)
	DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error
}

type kudosService struct {
	repo        feedRepo.FeedRepository
	cache       *cache.FeedCache
	userRepo    userRepo.UserRepository
	notifier    Notifier
	publisher   EventPublisher
	search      searchService.SearchService
	fileStorage storage.ImageStorage
	redisClient *redis.Client
	limits      Limits
	clock       clockwork.Clock
	logger      *zap.Logger
}

func NewKudosService(repo feedRepo.FeedRepository, feedCache *cache.FeedCache, userRepo userRepo.UserRepository, notifier Notifier, publisher EventPublisher, search searchService.SearchService, fileStorage storage.ImageStorage, redisClient *redis.Client, limits Limits, clk clockwork.Clock, logger *zap.Logger) KudosService {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kudosService{
		repo:        repo,
		cache:       feedCache,
		userRepo:    userRepo,
		notifier:    notifier,
		publisher:   publisher,
		search:      search,
		fileStorage: fileStorage,
		redisClient: redisClient,
		limits:      limits,
		clock:       clk,
		logger:      logger,
	}
}

func (s *kudosService) SubmitPost(ctx context.Context, sender uuid.UUID, req feedDto.CreateKudosRequest) (model.Post, error) {
	if sender == uuid.Nil {
		return model.Post{}, apperror.ErrUnauthorized
	}

	message := strings.TrimSpace(req.Message)
	images := compact(req.ImageURLs)
	if message == "" && len(images) == 0 {
		return model.Post{}, fmt.Errorf("kudos needs a message or an image: %w", apperror.ErrValidation)
	}
	receivers := uniqueIDs(req.ReceiverIDs)
	if len(receivers) == 0 {
		return model.Post{}, fmt.Errorf("kudos needs at least one receiver: %w", apperror.ErrValidation)
	}

	release, err := ratelimiter.Acquire(ctx, s.redisClient, sender, []ratelimiter.Limit{
		{Action: "global", Cooldown: s.limits.Global},
		{Action: "kudos", Cooldown: s.limits.Kudos},
	})
	if err != nil {
		return model.Post{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		release()
		return model.Post{}, fmt.Errorf("generate kudos id: %w", err)
	}
	post := model.Post{
		ID:          id,
		SenderID:    sender,
		Message:     message,
		Tags:        compact(req.Tags),
		ImageURLs:   images,
		CreatedAt:   s.clock.Now().UTC(),
		ReceiverIDs: receivers,
		Reactions:   map[uuid.UUID]string{},
		Comments:    []model.Comment{},
	}

	PrependMatching(s.cache, post)

	if err := s.repo.CreatePost(ctx, post); err != nil {
		s.cache.RemoveItem(post.ID)
		release()
		return model.Post{}, err
	}

	s.publish(ctx, entity.TableKudos, model.OpInsert, post.ID, nil)
	s.indexAsync(post)

	go func() {
		for _, receiver := range post.ReceiverIDs {
			s.notify(receiver, sender, model.NotificationKudos, post.ID)
		}
		s.notifyMentions(context.WithoutCancel(ctx), post.Message, sender, post.ID)
	}()

	return post, nil
}

func (s *kudosService) EditPost(ctx context.Context, userID, postID uuid.UUID, req feedDto.UpdateKudosRequest) (model.Post, error) {
	current, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return model.Post{}, err
	}

	message := strings.TrimSpace(req.Message)
	if message == "" && len(current.ImageURLs) == 0 {
		return model.Post{}, fmt.Errorf("kudos needs a message or an image: %w", apperror.ErrValidation)
	}

	patch := model.PostPatch{Message: &message}
	if req.Tags != nil {
		patch.Tags = compact(req.Tags)
	}
	s.cache.PatchItem(postID, patch)

	// no rollback: a failed edit stays visible until the next refresh
	if err := s.repo.UpdatePost(ctx, postID, message, patch.Tags); err != nil {
		return model.Post{}, err
	}

	patch.Apply(&current)
	s.publish(ctx, entity.TableKudos, model.OpUpdate, postID, nil)
	s.indexAsync(current)
	return current, nil
}

func (s *kudosService) DeletePost(ctx context.Context, userID, postID uuid.UUID) error {
	current, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	s.cache.RemoveItem(postID)

	if err := s.repo.DeletePost(ctx, postID); err != nil {
		return err
	}

	s.publish(ctx, entity.TableKudos, model.OpDelete, postID, nil)

	go func() {
		bg := context.Background()
		if s.fileStorage != nil {
			for _, url := range current.ImageURLs {
				if err := s.fileStorage.DeleteImage(bg, url); err != nil {
					s.logger.Warn("failed to delete kudos image", zap.String("url", url), zap.Error(err))
				}
			}
		}
		if s.search != nil {
			if err := s.search.DeletePost(postID); err != nil {
				s.logger.Warn("failed to remove kudos from search", zap.String("id", postID.String()), zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *kudosService) React(ctx context.Context, userID, postID uuid.UUID, reactionType string) (model.Post, error) {
	if userID == uuid.Nil {
		return model.Post{}, apperror.ErrUnauthorized
	}
	reactionType = strings.TrimSpace(reactionType)
	if reactionType == "" {
		return model.Post{}, fmt.Errorf("reaction type is required: %w", apperror.ErrValidation)
	}

	current, err := s.loadPost(ctx, postID)
	if err != nil {
		return model.Post{}, err
	}
	previous, had := current.Reactions[userID]
	removing := had && previous == reactionType

	s.cache.UpdateItem(postID, func(p *model.Post) {
		if removing {
			delete(p.Reactions, userID)
			return
		}
		p.Reactions[userID] = reactionType
	})

	if removing {
		err = s.repo.DeleteReaction(ctx, postID, userID)
	} else {
		err = s.repo.SetReaction(ctx, postID, userID, reactionType)
	}
	if err != nil {
		s.cache.UpdateItem(postID, func(p *model.Post) {
			if had {
				p.Reactions[userID] = previous
				return
			}
			delete(p.Reactions, userID)
		})
		return model.Post{}, err
	}

	if removing {
		delete(current.Reactions, userID)
		s.publish(ctx, entity.TableReactions, model.OpDelete, uuid.Nil, &postID)
	} else {
		current.Reactions[userID] = reactionType
		s.publish(ctx, entity.TableReactions, model.OpUpdate, uuid.Nil, &postID)
		if !had {
			go s.notify(current.SenderID, userID, model.NotificationReaction, postID)
		}
	}
	return current, nil
}

func (s *kudosService) Comment(ctx context.Context, authorID, postID uuid.UUID, content string) (model.Comment, error) {
	if authorID == uuid.Nil {
		return model.Comment{}, apperror.ErrUnauthorized
	}
	content, err := validComment(content)
	if err != nil {
		return model.Comment{}, err
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return model.Comment{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.Comment{}, fmt.Errorf("generate comment id: %w", err)
	}
	comment := model.Comment{
		ID:        id,
		PostID:    postID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: s.clock.Now().UTC(),
	}

	s.cache.AppendComment(comment)

	if err := s.repo.CreateComment(ctx, comment); err != nil {
		s.cache.RemoveComment(comment.ID)
		return model.Comment{}, err
	}

	s.publish(ctx, entity.TableComments, model.OpInsert, comment.ID, nil)

	go func() {
		s.notify(post.SenderID, authorID, model.NotificationComment, postID)
		s.notifyMentions(context.WithoutCancel(ctx), content, authorID, postID)
	}()

	return comment, nil
}

func (s *kudosService) EditComment(ctx context.Context, userID, commentID uuid.UUID, content string) (model.Comment, error) {
	content, err := validComment(content)
	if err != nil {
		return model.Comment{}, err
	}
	comment, err := s.ownedComment(ctx, userID, commentID)
	if err != nil {
		return model.Comment{}, err
	}

	s.cache.PatchComment(commentID, content)

	if err := s.repo.UpdateComment(ctx, commentID, content); err != nil {
		return model.Comment{}, err
	}

	comment.Content = content
	s.publish(ctx, entity.TableComments, model.OpUpdate, commentID, nil)
	return comment, nil
}

func (s *kudosService) DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error {
	if _, err := s.ownedComment(ctx, userID, commentID); err != nil {
		return err
	}

	s.cache.RemoveComment(commentID)

	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.publish(ctx, entity.TableComments, model.OpDelete, commentID, nil)
	return nil
}

// loadPost prefers the cached copy and falls back to the store.
func (s *kudosService) loadPost(ctx context.Context, postID uuid.UUID) (model.Post, error) {
	if p, ok := s.cache.FindItem(postID); ok {
		return p, nil
	}
	return s.repo.FindPost(ctx, postID)
}

func (s *kudosService) ownedPost(ctx context.Context, userID, postID uuid.UUID) (model.Post, error) {
	if userID == uuid.Nil {
		return model.Post{}, apperror.ErrUnauthorized
	}
	p, err := s.loadPost(ctx, postID)
	if err != nil {
		return model.Post{}, err
	}
	if p.SenderID != userID {
		return model.Post{}, apperror.ErrForbidden
	}
	return p, nil
}

func (s *kudosService) ownedComment(ctx context.Context, userID, commentID uuid.UUID) (model.Comment, error) {
	if userID == uuid.Nil {
		return model.Comment{}, apperror.ErrUnauthorized
	}
	c, err := s.repo.FindComment(ctx, commentID)
	if err != nil {
		return model.Comment{}, err
	}
	if c.AuthorID != userID {
		return model.Comment{}, apperror.ErrForbidden
	}
	return c, nil
}

func (s *kudosService) publish(ctx context.Context, table string, op model.Operation, rowID uuid.UUID, postID *uuid.UUID) {
	if s.publisher == nil {
		return
	}
	event := model.ChangeEvent{Table: table, Operation: op, RowID: rowID, PostID: postID}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish change event", zap.String("table", table), zap.String("op", string(op)), zap.Error(err))
	}
}

func (s *kudosService) indexAsync(post model.Post) {
	if s.search == nil || !s.search.Enabled() {
		return
	}
	go func() {
		if err := s.search.IndexPost(post); err != nil {
			s.logger.Warn("failed to index kudos", zap.String("id", post.ID.String()), zap.Error(err))
		}
	}()
}

func (s *kudosService) notifyMentions(ctx context.Context, text string, sender, resourceID uuid.UUID) {
	names := ParseMentions(text)
	if len(names) == 0 || s.userRepo == nil {
		return
	}
	users, err := s.userRepo.FindByUsernames(ctx, names)
	if err != nil {
		s.logger.Warn("failed to resolve mentions", zap.Strings("usernames", names), zap.Error(err))
		return
	}
	for _, u := range users {
		s.notify(u.ID, sender, model.NotificationMention, resourceID)
	}
}

// ParseMentions returns the distinct @usernames in text, in order of appearance.
func ParseMentions(text string) []string {
	var names []string
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimRight(m[1], ".")
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func validComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("comment is empty: %w", apperror.ErrValidation)
	}
	if len([]rune(content)) > maxCommentLength {
		return "", fmt.Errorf("comment longer than %d characters: %w", maxCommentLength, apperror.ErrValidation)
	}
	return content, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func uniqueIDs(in []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(in))
	for _, id := range in {
		if id != uuid.Nil && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return out
}

func (s *kudosService) notify(recipient, sender uuid.UUID, typ model.NotificationType, resourceID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(recipient, sender, typ, resourceID)
}

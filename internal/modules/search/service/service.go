package service

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"anoa.com/kudosfeed/internal/model"
	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const kudosIndex = "kudos"

type SearchService interface {
	// Enabled reports whether a search backend is configured.
	Enabled() bool
	IndexPost(post model.Post) error
	DeletePost(id uuid.UUID) error
	// SearchPostIDs returns matching post ids, newest first.
	SearchPostIDs(ctx context.Context, term string, offset, limit int) ([]uuid.UUID, error)
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

// NewMeiliSearchService returns a disabled service when client is nil.
func NewMeiliSearchService(client meilisearch.ServiceManager, logger *zap.Logger) SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &meiliSearchService{
		client:    client,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
	if client != nil {
		s.initIndex()
	}
	return s
}

// NewClient builds a client for host, accepting a bare hostname.
func NewClient(host, apiKey string) meilisearch.ServiceManager {
	if host == "" {
		return nil
	}
	if !strings.HasPrefix(host, "http") {
		host = "http://" + host + ":7700"
	}
	return meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
}

func (s *meiliSearchService) initIndex() {
	sortable := []string{"created_at"}
	if _, err := s.client.Index(kudosIndex).UpdateSortableAttributes(&sortable); err != nil {
		s.logger.Warn("failed to update kudos sortable attributes", zap.Error(err))
	}

	searchable := []string{"message", "tags"}
	if _, err := s.client.Index(kudosIndex).UpdateSearchableAttributes(&searchable); err != nil {
		s.logger.Warn("failed to update kudos searchable attributes", zap.Error(err))
	}

	s.logger.Info("meilisearch index initialized", zap.String("index", kudosIndex))
}

type kudosDoc struct {
	ID        string   `json:"id"`
	SenderID  string   `json:"sender_id"`
	Message   string   `json:"message"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"created_at"`
}

func (s *meiliSearchService) Enabled() bool {
	return s.client != nil
}

func (s *meiliSearchService) IndexPost(post model.Post) error {
	if s.client == nil {
		return nil
	}
	doc := s.toDoc(post)
	task, err := s.client.Index(kudosIndex).AddDocuments([]kudosDoc{doc}, strPtr("id"))
	if err != nil {
		return fmt.Errorf("index kudos %s: %w", post.ID, err)
	}
	s.logger.Debug("indexed kudos", zap.String("id", doc.ID), zap.Int64("task", task.TaskUID))
	return nil
}

func (s *meiliSearchService) DeletePost(id uuid.UUID) error {
	if s.client == nil {
		return nil
	}
	if _, err := s.client.Index(kudosIndex).DeleteDocument(id.String()); err != nil {
		return fmt.Errorf("delete kudos document %s: %w", id, err)
	}
	return nil
}

func (s *meiliSearchService) SearchPostIDs(ctx context.Context, term string, offset, limit int) ([]uuid.UUID, error) {
	if s.client == nil {
		return nil, fmt.Errorf("search backend not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := s.client.Index(kudosIndex).SearchRaw(term, &meilisearch.SearchRequest{
		Offset:               int64(offset),
		Limit:                int64(limit),
		Sort:                 []string{"created_at:desc"},
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, fmt.Errorf("search kudos: %w", err)
	}
	return decodeHitIDs(*raw)
}

func decodeHitIDs(raw []byte) ([]uuid.UUID, error) {
	var resp struct {
		Hits []struct {
			ID string `json:"id"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *meiliSearchService) toDoc(post model.Post) kudosDoc {
	tags := make([]string, 0, len(post.Tags))
	for _, t := range post.Tags {
		if clean := s.cleanContentForIndex(t); clean != "" {
			tags = append(tags, clean)
		}
	}
	return kudosDoc{
		ID:        post.ID.String(),
		SenderID:  post.SenderID.String(),
		Message:   s.cleanContentForIndex(post.Message),
		Tags:      tags,
		CreatedAt: post.CreatedAt.Unix(),
	}
}

func (s *meiliSearchService) cleanContentForIndex(content string) string {
	// keep words on either side of block tags apart
	content = strings.ReplaceAll(content, "</p>", " ")
	content = strings.ReplaceAll(content, "<br>", " ")
	content = strings.ReplaceAll(content, "</div>", " ")

	sanitized := s.sanitizer.Sanitize(content)
	cleanText := html.UnescapeString(sanitized)
	return strings.Join(strings.Fields(cleanText), " ")
}

func strPtr(s string) *string {
	return &s
}

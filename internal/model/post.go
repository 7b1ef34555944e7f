package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PageSize is the number of posts in a full feed page.
const PageSize = 10

// Post is a kudos as the feed sees it: the kudos row joined with its receivers,
// reactions and comments.
type Post struct {
	ID          uuid.UUID            `json:"id"`
	SenderID    uuid.UUID            `json:"sender_id"`
	Message     string               `json:"message"`
	Tags        []string             `json:"tags"`
	ImageURLs   []string             `json:"image_urls"`
	CreatedAt   time.Time            `json:"created_at"`
	ReceiverIDs []uuid.UUID          `json:"receiver_ids"`
	Reactions   map[uuid.UUID]string `json:"reactions"`
	Comments    []Comment            `json:"comments"`
}

type Comment struct {
	ID        uuid.UUID `json:"id"`
	PostID    uuid.UUID `json:"post_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PostPatch carries the mutable fields of a Post. Nil fields are left untouched.
type PostPatch struct {
	Message   *string
	Tags      []string
	Reactions map[uuid.UUID]string
	Comments  []Comment
}

// Apply merges the patch into p.
func (pp PostPatch) Apply(p *Post) {
	if pp.Message != nil {
		p.Message = *pp.Message
	}
	if pp.Tags != nil {
		p.Tags = slices.Clone(pp.Tags)
	}
	if pp.Reactions != nil {
		p.Reactions = cloneReactions(pp.Reactions)
	}
	if pp.Comments != nil {
		p.Comments = slices.Clone(pp.Comments)
		SortComments(p.Comments)
	}
}

// Clone returns a deep copy of p.
func (p Post) Clone() Post {
	out := p
	out.Tags = slices.Clone(p.Tags)
	out.ImageURLs = slices.Clone(p.ImageURLs)
	out.ReceiverIDs = slices.Clone(p.ReceiverIDs)
	out.Reactions = cloneReactions(p.Reactions)
	out.Comments = slices.Clone(p.Comments)
	return out
}

// HasComment reports whether a comment with id is already attached.
func (p Post) HasComment(id uuid.UUID) bool {
	return slices.ContainsFunc(p.Comments, func(c Comment) bool { return c.ID == id })
}

// SortComments orders comments ascending by CreatedAt, then id.
func SortComments(comments []Comment) {
	slices.SortStableFunc(comments, func(a, b Comment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareUUID(a.ID, b.ID)
	})
}

// NewerFirst orders posts descending by CreatedAt, then id descending.
func NewerFirst(a, b Post) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return compareUUID(b.ID, a.ID)
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func cloneReactions(in map[uuid.UUID]string) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FeedPage is one page of the feed for a search key.
type FeedPage struct {
	PageIndex int    `json:"page_index"`
	SearchKey string `json:"search_key"`
	Items     []Post `json:"items"`
}

// Full reports whether the page holds a whole PageSize worth of posts.
func (p FeedPage) Full() bool {
	return len(p.Items) >= PageSize
}

func (p FeedPage) Clone() FeedPage {
	out := p
	out.Items = make([]Post, len(p.Items))
	for i, item := range p.Items {
		out.Items[i] = item.Clone()
	}
	return out
}

package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	feedDto "anoa.com/kudosfeed/internal/modules/feed/dto"
	feed "anoa.com/kudosfeed/internal/modules/feed/service"
	"anoa.com/kudosfeed/pkg/response"
	"anoa.com/kudosfeed/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const maxUploadSize = 5 << 20

type FeedHandler struct {
	paginator    *feed.Paginator
	kudos        feed.KudosService
	hub          *feed.Hub
	imageStorage storage.ImageStorage
	uploadFolder string
	clock        clockwork.Clock
	debounce     time.Duration
	logger       *zap.Logger
	upgrader     websocket.Upgrader
}

func NewFeedHandler(paginator *feed.Paginator, kudos feed.KudosService, hub *feed.Hub, imageStorage storage.ImageStorage, uploadFolder string, clk clockwork.Clock, debounce time.Duration, logger *zap.Logger) *FeedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{
		paginator:    paginator,
		kudos:        kudos,
		hub:          hub,
		imageStorage: imageStorage,
		uploadFolder: uploadFolder,
		clock:        clk,
		debounce:     debounce,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // origins are enforced by CORS on the REST surface
			},
		},
	}
}

func (h *FeedHandler) GetFeed(c *gin.Context) {
	var q feedDto.FeedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BindError(c, err)
		return
	}

	page, err := h.paginator.Load(c.Request.Context(), q.Search, q.Page, nil)
	if err != nil && !errors.Is(err, feed.ErrEndOfFeed) {
		feedError(c, err)
		return
	}
	if err != nil {
		page.PageIndex = q.Page
		page.SearchKey = q.Search
	}

	state := h.paginator.State(q.Search)
	c.JSON(http.StatusOK, feedDto.FeedPageResponse{Page: page, Phase: string(state.Phase), End: state.Phase == feed.PhaseEnd})
}

func (h *FeedHandler) RefreshFeed(c *gin.Context) {
	search := c.Query("search")
	page, err := h.paginator.Refresh(c.Request.Context(), search, nil)
	if err != nil {
		feedError(c, err)
		return
	}
	h.hub.Broadcast()

	state := h.paginator.State(search)
	c.JSON(http.StatusOK, feedDto.FeedPageResponse{Page: page, Phase: string(state.Phase), End: state.Phase == feed.PhaseEnd})
}

func (h *FeedHandler) CreateKudos(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req feedDto.CreateKudosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	post, err := h.kudos.SubmitPost(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusCreated, gin.H{"data": post})
}

func (h *FeedHandler) UpdateKudos(c *gin.Context) {
	userID, postID, ok := userAndParam(c, "id")
	if !ok {
		return
	}

	var req feedDto.UpdateKudosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	post, err := h.kudos.EditPost(c.Request.Context(), userID, postID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusOK, gin.H{"data": post})
}

func (h *FeedHandler) DeleteKudos(c *gin.Context) {
	userID, postID, ok := userAndParam(c, "id")
	if !ok {
		return
	}

	if err := h.kudos.DeletePost(c.Request.Context(), userID, postID); err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusOK, gin.H{"message": "kudos deleted"})
}

func (h *FeedHandler) React(c *gin.Context) {
	userID, postID, ok := userAndParam(c, "id")
	if !ok {
		return
	}

	var req feedDto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	post, err := h.kudos.React(c.Request.Context(), userID, postID, req.Type)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusOK, gin.H{"data": post})
}

func (h *FeedHandler) CreateComment(c *gin.Context) {
	userID, postID, ok := userAndParam(c, "id")
	if !ok {
		return
	}

	var req feedDto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	comment, err := h.kudos.Comment(c.Request.Context(), userID, postID, req.Content)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusCreated, gin.H{"data": comment})
}

func (h *FeedHandler) UpdateComment(c *gin.Context) {
	userID, commentID, ok := userAndParam(c, "id")
	if !ok {
		return
	}

	var req feedDto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	comment, err := h.kudos.EditComment(c.Request.Context(), userID, commentID, req.Content)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusOK, gin.H{"data": comment})
}

func (h *FeedHandler) DeleteComment(c *gin.Context) {
	userID, commentID, ok := userAndParam(c, "id")
	if !ok {
		return
	}

	if err := h.kudos.DeleteComment(c.Request.Context(), userID, commentID); err != nil {
		response.ResponseError(c, err)
		return
	}
	h.hub.Broadcast()
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}

func (h *FeedHandler) UploadImage(c *gin.Context) {
	if _, err := response.GetUserID(c); err != nil {
		response.ResponseError(c, err)
		return
	}
	if h.imageStorage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage is not configured"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be at most 5MB"})
		return
	}
	if !storage.IsImage(file.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only image files are allowed"})
		return
	}

	src, err := file.Open()
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	defer src.Close()

	name := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(file.Filename))
	url, err := h.imageStorage.UploadImage(c.Request.Context(), src, h.uploadFolder, name)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, feedDto.UploadResponse{URL: url})
}

func userAndParam(c *gin.Context, name string) (uuid.UUID, uuid.UUID, bool) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}

func feedError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, feed.ErrPageGap):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, feed.ErrFetchInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		response.ResponseError(c, err)
	}
}

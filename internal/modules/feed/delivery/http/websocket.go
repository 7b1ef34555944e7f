package handler

import (
	"context"
	"encoding/json"
	"time"

	feedDto "anoa.com/kudosfeed/internal/modules/feed/dto"
	feed "anoa.com/kudosfeed/internal/modules/feed/service"
	"anoa.com/kudosfeed/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// FeedSocket runs a live feed session over a websocket. The client sends
// SessionCommand messages and receives a Snapshot after every change.
func (h *FeedHandler) FeedSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade feed websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := feed.NewSession(ctx, h.paginator, h.clock, h.debounce, h.logger.With(zap.String("user_id", userID.String())))
	h.hub.Register(session)
	defer func() {
		h.hub.Unregister(session)
		session.Close()
	}()

	go h.readCommands(conn, session, cancel)
	go session.Start()

	for {
		select {
		case snap := <-session.Updates():
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("failed to encode feed snapshot", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("feed websocket write failed", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *FeedHandler) readCommands(conn *websocket.Conn, session *feed.Session, cancel context.CancelFunc) {
	defer cancel()
	for {
		var cmd feedDto.SessionCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		switch cmd.Action {
		case "search":
			session.ChangeSearchKey(cmd.Search)
		case "more":
			go session.LoadMore()
		case "refresh":
			go session.Refresh()
		default:
			h.logger.Debug("unknown feed command", zap.String("action", cmd.Action))
		}
	}
}

package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/core"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/store"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandlers serves stored room messages.
type HistoryHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewHistoryHandlers creates a new history handlers instance.
func NewHistoryHandlers(st store.MessageStore, logger *zerolog.Logger) *HistoryHandlers {
	return &HistoryHandlers{
		store: st,
		log:   logger,
	}
}

// ListMessages returns one page of a room's history, newest first.
// GET /chat/rooms/:roomId/messages?page=1&limit=20
func (h *HistoryHandlers) ListMessages(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("roomId"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(c, "limit", defaultHistoryLimit)
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	out := proto.HistoryPage{
		Messages: []proto.ServerMessage{},
		Page:     page,
		Limit:    limit,
	}
	if h.store == nil {
		c.JSON(http.StatusOK, out)
		return
	}

	ctx := c.Request.Context()
	total, err := h.store.CountMessages(ctx, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to count messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	records, err := h.store.ListMessages(ctx, roomID, limit, (page-1)*limit)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	for _, rec := range records {
		out.Messages = append(out.Messages, messageToWire(core.Message{
			ID:        rec.ID,
			RoomID:    rec.RoomID,
			UserID:    rec.UserID,
			UserName:  rec.UserName,
			Text:      rec.Body,
			Metadata:  rec.Metadata,
			CreatedAt: rec.CreatedAt,
		}))
	}
	out.Total = total
	out.TotalPages = (total + limit - 1) / limit

	c.JSON(http.StatusOK, out)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

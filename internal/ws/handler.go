// Package ws serves realtime leaderboard subscriptions over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/krishanu7/leaderboard-backend/internal/apperr"
	"github.com/krishanu7/leaderboard-backend/internal/auth"
	"github.com/krishanu7/leaderboard-backend/internal/fanout"
	"github.com/krishanu7/leaderboard-backend/internal/metrics"
	wsPkg "github.com/krishanu7/leaderboard-backend/pkg/websocket"
)

const (
	TypeJoinGame  = "join_game"
	TypeLeaveGame = "leave_game"
	TypeChat      = "chat"
)

// Rooms authorizes room joins and accepts chat messages.
type Rooms interface {
	CanJoin(ctx context.Context, caller auth.Caller, room fanout.Room) error
	Chat(ctx context.Context, caller auth.Caller, gameID, message string) error
}

type Handler struct {
	bus      *fanout.Bus
	rooms    Rooms
	tokens   *auth.Tokens
	upgrader *websocket.Upgrader
	logger   *zap.SugaredLogger
}

func NewHandler(bus *fanout.Bus, rooms Rooms, tokens *auth.Tokens, upgrader *websocket.Upgrader, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		bus:      bus,
		rooms:    rooms,
		tokens:   tokens,
		upgrader: upgrader,
		logger:   logger,
	}
}

type clientMessage struct {
	Type    string `json:"type"`
	GameID  string `json:"gameId"`
	Message string `json:"message"`
}

type reply struct {
	Type    string      `json:"type"`
	Room    fanout.Room `json:"room,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ServeWS authenticates the token query parameter (or an Authorization
// header already verified by the auth middleware), upgrades the connection
// and joins the caller's own player room.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		var err error
		caller, err = h.tokens.Verify(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "player", caller.PlayerID, "error", err)
		return
	}

	client := wsPkg.NewClient(uuid.NewString(), caller.PlayerID, conn)
	events := h.bus.Subscribe(client.ID, fanout.PlayerRoom(caller.PlayerID))
	metrics.Subscribers.Inc()
	h.logger.Infow("realtime client connected", "conn", client.ID, "player", caller.PlayerID)

	go func() {
		if err := wsPkg.WritePump(client, events); err != nil {
			h.logger.Debugw("write failed", "conn", client.ID, "error", err)
		}
	}()
	go h.read(client, caller)
}

func (h *Handler) read(c *wsPkg.Client, caller auth.Caller) {
	defer func() {
		h.bus.Disconnect(c.ID)
		metrics.Subscribers.Dec()
		c.Conn.Close()
		h.logger.Infow("realtime client disconnected", "conn", c.ID, "player", c.PlayerID)
	}()

	joined := make(map[string]bool)
	err := c.ReadPump(func(raw []byte) {
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.replyError(c, apperr.New(apperr.CodeInvalidArgument, "invalid message"))
			return
		}
		h.handle(c, caller, joined, msg)
	})
	if err != nil {
		h.logger.Debugw("read failed", "conn", c.ID, "error", err)
	}
}

func (h *Handler) handle(c *wsPkg.Client, caller auth.Caller, joined map[string]bool, msg clientMessage) {
	ctx := context.Background()
	room, err := fanout.ParseRoom(string(fanout.GameRoom(msg.GameID)))
	if err != nil {
		h.replyError(c, apperr.New(apperr.CodeInvalidArgument, "gameId is required"))
		return
	}

	switch msg.Type {
	case TypeJoinGame:
		if err := h.rooms.CanJoin(ctx, caller, room); err != nil {
			h.replyError(c, err)
			return
		}
		h.bus.Subscribe(c.ID, room)
		joined[msg.GameID] = true
		c.Reply(reply{Type: "joined", Room: room})
	case TypeLeaveGame:
		h.bus.Unsubscribe(c.ID, room)
		delete(joined, msg.GameID)
		c.Reply(reply{Type: "left", Room: room})
	case TypeChat:
		if !joined[msg.GameID] {
			h.replyError(c, apperr.New(apperr.CodePermissionDenied, "join the game before chatting"))
			return
		}
		if err := h.rooms.Chat(ctx, caller, msg.GameID, msg.Message); err != nil {
			h.replyError(c, err)
		}
	default:
		h.replyError(c, apperr.New(apperr.CodeInvalidArgument, "unknown message type"))
	}
}

func (h *Handler) replyError(c *wsPkg.Client, err error) {
	if apperr.CodeOf(err) == apperr.CodeInternal || apperr.CodeOf(err) == apperr.CodeUnavailable {
		h.logger.Warnw("realtime request failed", "conn", c.ID, "error", err)
	}
	c.Reply(reply{Type: "error", Message: apperr.Message(err)})
}

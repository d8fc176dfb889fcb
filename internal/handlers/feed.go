package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
)

// Frame types sent over the feed socket.
const (
	FrameMessage       = "message"
	FrameAlert         = "alert"
	FrameFriendRequest = "friend_request"
	FrameReconnecting  = "reconnecting"
	FrameReconnected   = "reconnected"
	FrameError         = "error"
)

type FeedFrame struct {
	Type    string                    `json:"type"`
	Message *models.Message           `json:"message,omitempty"`
	Live    bool                      `json:"live,omitempty"`
	Alert   *models.NotificationAlert `json:"alert,omitempty"`
	Request *models.RequestEvent      `json:"request,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// FeedHandler streams a user's messages, friend request events and alerts
// over a websocket.
type FeedHandler struct {
	messageService services.MessageServiceInterface
	friendService  services.FriendServiceInterface
	names          services.NameLookup
	upgrader       websocket.Upgrader
}

func NewFeedHandler(messageService services.MessageServiceInterface, friendService services.FriendServiceInterface, names services.NameLookup) *FeedHandler {
	return &FeedHandler{
		messageService: messageService,
		friendService:  friendService,
		names:          names,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.messageService.Subscribe(ctx, userID)
	if err != nil {
		writeServiceError(w, err, "opening message feed")
		return
	}
	defer sub.Close()

	watch, err := h.friendService.WatchRequests(ctx, userID)
	if err != nil {
		writeServiceError(w, err, "watching friend requests")
		return
	}
	defer watch.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		})
		return
	}
	defer conn.Close()

	logging.Info("Feed connected", map[string]interface{}{"user_id": userID.String()})
	defer logging.Info("Feed disconnected", map[string]interface{}{"user_id": userID.String()})

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	dispatcher := services.NewDispatcher(userID, h.names)
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	messages, requests := sub.Events(), watch.Events()
	for {
		var frame FeedFrame
		select {
		case <-closed:
			return

		case ev, ok := <-messages:
			if !ok {
				msg := "message feed closed"
				if err := sub.Err(); err != nil {
					msg = "message feed unavailable"
				}
				_ = writeFrame(conn, FeedFrame{Type: FrameError, Error: msg})
				return
			}
			frame = messageFrame(ev)
			dispatcher.HandleMessage(ctx, ev)

		case ev, ok := <-requests:
			if !ok {
				// Messages keep flowing without request events.
				logging.Warn("Friend request watch ended", map[string]interface{}{"user_id": userID.String()})
				requests = nil
				continue
			}
			frame = FeedFrame{Type: FrameFriendRequest, Request: &ev}
			dispatcher.HandleRequest(ev)

		case alert := <-dispatcher.Alerts():
			frame = FeedFrame{Type: FrameAlert, Alert: &alert}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait)); err != nil {
				return
			}
			continue
		}

		if err := writeFrame(conn, frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Feed write failed", map[string]interface{}{
					"user_id": userID.String(),
					"error":   err.Error(),
				})
			}
			return
		}
	}
}

func messageFrame(ev models.FeedEvent) FeedFrame {
	switch ev.Kind {
	case models.FeedReconnecting:
		frame := FeedFrame{Type: FrameReconnecting}
		if ev.Err != nil {
			frame.Error = "connection to the message store was lost"
		}
		return frame
	case models.FeedReconnected:
		return FeedFrame{Type: FrameReconnected}
	default:
		return FeedFrame{Type: FrameMessage, Message: ev.Message, Live: ev.Live}
	}
}

func writeFrame(conn *websocket.Conn, frame FeedFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(feedWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

// readUntilClosed drains client frames so control messages are processed,
// and closes done when the peer goes away.
func readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

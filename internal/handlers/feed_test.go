package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/services"
	"github.com/jordansalagala21/GymTribe/internal/testutil"
)

type feedTestEnv struct {
	profiles *services.ProfileService
	friends  *services.FriendService
	messages *services.MessageService
	server   *httptest.Server
}

func newFeedTestEnv(t *testing.T, viewer uuid.UUID) *feedTestEnv {
	t.Helper()
	store := testutil.NewMemoryStore(t)
	profiles := services.NewProfileService(store)
	env := &feedTestEnv{
		profiles: profiles,
		friends:  services.NewFriendService(store, profiles),
		messages: services.NewMessageService(store),
	}

	handler := NewFeedHandler(env.messages, env.friends, profiles)
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if viewer != uuid.Nil {
			r = r.WithContext(SetUserIDInContext(r.Context(), viewer))
		}
		handler.Serve(w, r)
	}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *feedTestEnv) profile(t *testing.T, id uuid.UUID, name string) {
	t.Helper()
	if err := e.profiles.Save(context.Background(), models.UserProfile{ID: id, DisplayName: name}); err != nil {
		t.Fatalf("saving profile: %v", err)
	}
}

func (e *feedTestEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing feed: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) FeedFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("setting deadline: %v", err)
	}
	var frame FeedFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return frame
}

// readFrames reads until every wanted frame type has been seen at least once.
func readFrames(t *testing.T, conn *websocket.Conn, want ...string) map[string]FeedFrame {
	t.Helper()
	got := make(map[string]FeedFrame)
	for len(got) < len(want) {
		frame := readFrame(t, conn)
		for _, w := range want {
			if frame.Type == w {
				got[w] = frame
			}
		}
	}
	return got
}

func TestFeedHandler_Unauthenticated(t *testing.T) {
	env := newFeedTestEnv(t, uuid.Nil)

	resp, err := http.Get(env.server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.StatusCode)
	}
}

func TestFeedHandler_StoreUnavailable(t *testing.T) {
	handler := NewFeedHandler(&mockMessageService{}, &mockFriendService{}, nil)

	rr := httptest.NewRecorder()
	handler.Serve(rr, authedRequest(http.MethodGet, "/api/feed", nil, uuid.New()))
	assertErrorResponse(t, rr, http.StatusServiceUnavailable, "Service temporarily unavailable")
}

func TestFeedHandler_ReplayThenLiveMessageWithAlert(t *testing.T) {
	viewer, peer := uuid.New(), uuid.New()
	env := newFeedTestEnv(t, viewer)
	env.profile(t, viewer, "Jordan")
	env.profile(t, peer, "Casey")
	ctx := context.Background()

	old, err := env.messages.Send(ctx, peer, viewer, "earlier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn := env.dial(t)
	frame := readFrame(t, conn)
	if frame.Type != FrameMessage || frame.Message.ID != old.ID || frame.Live {
		t.Fatalf("expected replayed message, got %+v", frame)
	}

	live, err := env.messages.Send(ctx, peer, viewer, "you up?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frames := readFrames(t, conn, FrameMessage, FrameAlert)
	if msg := frames[FrameMessage]; msg.Message.ID != live.ID || !msg.Live {
		t.Fatalf("expected live message, got %+v", msg)
	}
	alert := frames[FrameAlert].Alert
	if alert == nil || alert.Kind != models.AlertMessage || alert.Text != "Casey sent you a message" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if got := alert.ExpiresAt.Sub(alert.CreatedAt); got != services.AlertLifetime {
		t.Fatalf("expected alert lifetime %s, got %s", services.AlertLifetime, got)
	}
}

func TestFeedHandler_FriendRequestFrames(t *testing.T) {
	viewer, peer := uuid.New(), uuid.New()
	env := newFeedTestEnv(t, viewer)
	env.profile(t, viewer, "Jordan")
	env.profile(t, peer, "Casey")

	conn := env.dial(t)
	if _, err := env.friends.SendRequest(context.Background(), peer, viewer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frames := readFrames(t, conn, FrameFriendRequest, FrameAlert)
	req := frames[FrameFriendRequest].Request
	if req == nil || req.Kind != models.RequestReceived || req.Request.SenderID != peer {
		t.Fatalf("unexpected request frame: %+v", req)
	}
	if alert := frames[FrameAlert].Alert; alert == nil || alert.Text != "Casey sent you a friend request" {
		t.Fatalf("unexpected alert: %+v", alert)
	}
}

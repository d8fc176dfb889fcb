package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

type FriendHandler struct {
	friendService services.FriendServiceInterface
}

func NewFriendHandler(friendService services.FriendServiceInterface) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

type SendRequestRequest struct {
	FriendID string `json:"friend_id" validate:"required,uuid"`
}

type FriendListResponse struct {
	Friends []models.Friend `json:"friends"`
}

type FriendRequestsResponse struct {
	Incoming []models.PendingRequest `json:"incoming"`
	Sent     []models.FriendRequest  `json:"sent"`
}

type FriendRequestResponse struct {
	Request *models.FriendRequest `json:"request,omitempty"`
	Message string                `json:"message,omitempty"`
}

func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	friends, err := h.friendService.ListFriends(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "listing friends")
		return
	}
	writeJSON(w, http.StatusOK, FriendListResponse{Friends: friends})
}

func (h *FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	peerID, ok := pathUUID(w, r, "id", "friend ID")
	if !ok {
		return
	}

	if err := h.friendService.RemoveFriend(r.Context(), userID, peerID); err != nil {
		writeServiceError(w, err, "removing friend")
		return
	}
	writeJSON(w, http.StatusOK, FriendRequestResponse{Message: "Friend removed"})
}

func (h *FriendHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	incoming, err := h.friendService.ListPendingRequests(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "listing pending requests")
		return
	}
	all, err := h.friendService.ListSentRequests(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "listing sent requests")
		return
	}
	sent := []models.FriendRequest{}
	for _, req := range all {
		if req.Status == models.FriendRequestPending {
			sent = append(sent, req)
		}
	}
	writeJSON(w, http.StatusOK, FriendRequestsResponse{Incoming: incoming, Sent: sent})
}

func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SendRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	friendID := uuid.MustParse(req.FriendID)

	created, err := h.friendService.SendRequest(r.Context(), userID, friendID)
	if err != nil {
		writeServiceError(w, err, "sending friend request")
		return
	}
	writeJSON(w, http.StatusCreated, FriendRequestResponse{Request: created, Message: "Friend request sent"})
}

func (h *FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.friendService.Accept, "accepting friend request", "Friend request accepted")
}

func (h *FriendHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.friendService.Decline, "declining friend request", "Friend request declined")
}

func (h *FriendHandler) resolve(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error),
	action, message string,
) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id", "request ID")
	if !ok {
		return
	}

	updated, err := op(r.Context(), requestID, userID)
	if err != nil {
		writeServiceError(w, err, action)
		return
	}
	writeJSON(w, http.StatusOK, FriendRequestResponse{Request: updated, Message: message})
}

func (h *FriendHandler) Retract(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id", "request ID")
	if !ok {
		return
	}

	if err := h.friendService.Retract(r.Context(), requestID, userID); err != nil {
		writeServiceError(w, err, "retracting friend request")
		return
	}
	writeJSON(w, http.StatusOK, FriendRequestResponse{Message: "Friend request withdrawn"})
}

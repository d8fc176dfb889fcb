package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

type MessageHandler struct {
	messageService services.MessageServiceInterface
}

func NewMessageHandler(messageService services.MessageServiceInterface) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required,uuid"`
	Body       string `json:"body" validate:"max=4000"`
}

type MessageResponse struct {
	Message *models.Message `json:"message"`
}

type ConversationResponse struct {
	Messages []models.Message `json:"messages"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, uuid.MustParse(req.ReceiverID), req.Body)
	if err != nil {
		writeServiceError(w, err, "sending message")
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	peerID, ok := pathUUID(w, r, "peerId", "peer ID")
	if !ok {
		return
	}

	msgs, err := h.messageService.Conversation(r.Context(), userID, peerID)
	if err != nil {
		writeServiceError(w, err, "loading conversation")
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Messages: msgs})
}

package handlers

import (
	"net/http"

	"github.com/jordansalagala21/GymTribe/internal/models"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

type SuggestionHandler struct {
	suggestionService services.SuggestionServiceInterface
}

func NewSuggestionHandler(suggestionService services.SuggestionServiceInterface) *SuggestionHandler {
	return &SuggestionHandler{suggestionService: suggestionService}
}

type SuggestionRequestResponse struct {
	Outcome models.SuggestionRequestOutcome `json:"outcome"`
}

func (h *SuggestionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	result, err := h.suggestionService.Rank(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "ranking suggestions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *SuggestionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	candidateID, ok := pathUUID(w, r, "id", "user ID")
	if !ok {
		return
	}

	outcome, err := h.suggestionService.SendSuggestionRequest(r.Context(), userID, candidateID)
	if err != nil {
		writeServiceError(w, err, "sending suggestion request")
		return
	}
	status := http.StatusCreated
	if outcome == models.SuggestionRequestAlreadyPending {
		status = http.StatusOK
	}
	writeJSON(w, status, SuggestionRequestResponse{Outcome: outcome})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps a service error onto a status and a client-safe
// message. Unexpected errors are logged with the action that failed.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "Invalid target user")
	case errors.Is(err, services.ErrEmptyBody):
		writeError(w, http.StatusBadRequest, "Message body is empty")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, services.ErrDuplicatePending):
		writeError(w, http.StatusConflict, "A friend request is already pending")
	case errors.Is(err, services.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "Friend request already resolved")
	case errors.Is(err, services.ErrAlreadyFriends):
		writeError(w, http.StatusConflict, "Already friends")
	case errors.Is(err, services.ErrStoreUnavailable):
		logging.Warn("Store unavailable", map[string]interface{}{"action": action, "error": err.Error()})
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		logging.Error("Request failed", map[string]interface{}{"action": action, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody decodes and validates a JSON request body. It writes the error
// response itself and reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "Invalid field: "+verrs[0].Field())
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return userID, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

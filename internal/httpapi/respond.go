package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"todo-planner/internal/model"
	"todo-planner/internal/service"
)

// errorResponse carries the message under both "error" and "message";
// browser clients read the latter.
type errorResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Task    *taskResponse `json:"task,omitempty"`
}

func newErrorResponse(msg string) errorResponse {
	return errorResponse{Error: msg, Message: msg}
}

// taskResponse is a task as sent to clients. It repeats the identifier as
// "_id" and the due time as "datetime" for the web client.
type taskResponse struct {
	model.Task
	LegacyID string    `json:"_id"`
	Datetime time.Time `json:"datetime"`
}

func toTaskResponse(t *model.Task) *taskResponse {
	return &taskResponse{Task: *t, LegacyID: t.ID, Datetime: t.DueAt}
}

func toTaskResponses(tasks []model.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, *toTaskResponse(&tasks[i]))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, newErrorResponse(msg))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeServiceError translates service errors into HTTP responses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var spawnErr *service.SpawnError
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "user already exists")
	case errors.As(err, &spawnErr):
		s.log().Error("Next occurrence not created", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "task completed but its next occurrence could not be created")
	default:
		s.log().Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

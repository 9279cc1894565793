package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"todo-planner/internal/model"
	"todo-planner/internal/service"
)

// localLayouts match datetime-local inputs, which carry no offset. They are
// read in the server's configured location.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// CreateTaskRequest is the request body for POST /tasks.
// Datetime is accepted as an alias of DueAt.
type CreateTaskRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	DueAt       string         `json:"dueAt"`
	Datetime    string         `json:"datetime,omitempty"`
	Priority    model.Priority `json:"priority"`
	Repeat      model.Repeat   `json:"repeat"`
}

// PurgeResponse is the response for POST /tasks/purge.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.opts.PurgeOnList {
		if _, err := s.tasks.PurgeOverdue(ctx); err != nil {
			s.log().Warn("Purge before listing failed", "error", err)
		}
	}

	tasks, err := s.tasks.List(ctx)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponses(tasks))
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Repeat:      req.Repeat,
	}

	raw := req.DueAt
	if raw == "" {
		raw = req.Datetime
	}
	if raw != "" {
		due, err := s.parseDue(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dueAt: "+err.Error())
			return
		}
		input.DueAt = &due
	}

	task, err := s.tasks.Create(r.Context(), input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (s *Server) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.ToggleCompletion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		var spawnErr *service.SpawnError
		if errors.As(err, &spawnErr) && task != nil {
			s.log().Error("Next occurrence not created", "id", task.ID, "error", err)
			resp := newErrorResponse("task completed but its next occurrence could not be created")
			resp.Task = toTaskResponse(task)
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Task deleted"})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.tasks.PurgeOverdue(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

func (s *Server) parseDue(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.opts.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("expected RFC 3339 or YYYY-MM-DDTHH:MM")
}

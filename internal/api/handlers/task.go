package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
)

// TaskHandler handles task admin requests, backed by the process-wide task
// registry
type TaskHandler struct{}

// NewTaskHandler creates a task handler
func NewTaskHandler() *TaskHandler {
	return &TaskHandler{}
}

// List handles GET /admin/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks := engine.Tasks()
	out := make([]engine.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Info())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": out,
		"count": len(out),
	})
}

// Get handles GET /admin/tasks/{taskID}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, t.Info())
}

// Signal handles POST /admin/tasks/{taskID}/signal
func (h *TaskHandler) Signal(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	woken := t.Signal()

	logger.Info().
		Str("task_id", t.ID()).
		Bool("woken", woken).
		Str("operator", operatorID(r)).
		Msg("task signalled via admin API")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"task":  t.Info(),
		"woken": woken,
	})
}

// Abort handles POST /admin/tasks/{taskID}/abort
func (h *TaskHandler) Abort(w http.ResponseWriter, r *http.Request) {
	t, ok := h.lookup(w, r)
	if !ok {
		return
	}
	t.Abort()

	logger.Info().
		Str("task_id", t.ID()).
		Str("operator", operatorID(r)).
		Msg("task aborted via admin API")
	respondJSON(w, http.StatusOK, t.Info())
}

func (h *TaskHandler) lookup(w http.ResponseWriter, r *http.Request) (*engine.Task, bool) {
	id := chi.URLParam(r, "taskID")
	if id == "" {
		respondError(w, http.StatusBadRequest, "task ID is required")
		return nil, false
	}
	t, ok := engine.LookupTask(id)
	if !ok {
		respondError(w, http.StatusNotFound, "task not found")
		return nil, false
	}
	return t, true
}

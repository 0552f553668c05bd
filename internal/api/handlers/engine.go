package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/api/middleware"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
)

// EngineHandler handles engine admin requests
type EngineHandler struct {
	engines map[string]*engine.Engine
	order   []string
}

// NewEngineHandler creates an engine handler over the hosted engines
func NewEngineHandler(engines []*engine.Engine) *EngineHandler {
	h := &EngineHandler{engines: make(map[string]*engine.Engine, len(engines))}
	for _, e := range engines {
		h.engines[e.Name()] = e
		h.order = append(h.order, e.Name())
	}
	return h
}

// EngineResponse is the admin view of one engine
type EngineResponse struct {
	Name        string `json:"name"`
	QueueDepth  int    `json:"queue_depth"`
	Waiting     bool   `json:"waiting"`
	MaxDuration string `json:"max_duration,omitempty"`
}

func engineResponse(e *engine.Engine) EngineResponse {
	resp := EngineResponse{
		Name:       e.Name(),
		QueueDepth: e.QueueLen(),
		Waiting:    e.IsWaiting(),
	}
	if e.HasMaxDuration() {
		resp.MaxDuration = e.MaxDuration().String()
	}
	return resp
}

// List handles GET /admin/engines
func (h *EngineHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]EngineResponse, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, engineResponse(h.engines[name]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"engines": out,
		"count":   len(out),
	})
}

// Get handles GET /admin/engines/{engineName}
func (h *EngineHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, engineResponse(e))
}

// WakeUp handles POST /admin/engines/{engineName}/wakeup
func (h *EngineHandler) WakeUp(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	e.WakeUp()
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "woken"})
}

// Flush handles POST /admin/engines/{engineName}/flush
func (h *EngineHandler) Flush(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}
	killed := e.QueueLen()
	e.Flush()

	logger.Info().
		Str("engine", e.Name()).
		Int("killed", killed).
		Str("operator", operatorID(r)).
		Msg("engine flushed via admin API")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "flushed",
		"killed": killed,
	})
}

// SetDurationRequest is the body of POST /admin/engines/{engineName}/duration
type SetDurationRequest struct {
	MaxDuration string `json:"max_duration"`
}

// SetDuration handles POST /admin/engines/{engineName}/duration
func (h *EngineHandler) SetDuration(w http.ResponseWriter, r *http.Request) {
	e, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req SetDurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := time.ParseDuration(req.MaxDuration)
	if err != nil || d < 0 {
		respondError(w, http.StatusBadRequest, "invalid max_duration")
		return
	}

	e.SetMaxDuration(d)

	logger.Info().
		Str("engine", e.Name()).
		Dur("max_duration", d).
		Str("operator", operatorID(r)).
		Msg("engine duration budget changed via admin API")
	respondJSON(w, http.StatusOK, engineResponse(e))
}

// operatorID names the authenticated caller for the audit log
func operatorID(r *http.Request) string {
	if claims := middleware.OperatorFrom(r.Context()); claims != nil {
		return claims.OperatorID
	}
	return "anonymous"
}

func (h *EngineHandler) lookup(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	name := chi.URLParam(r, "engineName")
	if name == "" {
		respondError(w, http.StatusBadRequest, "engine name is required")
		return nil, false
	}
	e, ok := h.engines[name]
	if !ok {
		respondError(w, http.StatusNotFound, "engine not found")
		return nil, false
	}
	return e, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

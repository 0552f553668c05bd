package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
)

func newEngineRouter(engines ...*engine.Engine) *chi.Mux {
	h := NewEngineHandler(engines)
	r := chi.NewRouter()
	r.Get("/admin/engines", h.List)
	r.Get("/admin/engines/{engineName}", h.Get)
	r.Post("/admin/engines/{engineName}/wakeup", h.WakeUp)
	r.Post("/admin/engines/{engineName}/flush", h.Flush)
	r.Post("/admin/engines/{engineName}/duration", h.SetDuration)
	return r
}

func TestEngineHandler_List(t *testing.T) {
	e1 := engine.NewEngine("alpha")
	e2 := engine.NewEngine("beta")
	e2.SetMaxDuration(10 * time.Millisecond)

	r := newEngineRouter(e1, e2)

	req := httptest.NewRequest(http.MethodGet, "/admin/engines", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Engines []EngineResponse `json:"engines"`
		Count   int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "alpha", body.Engines[0].Name)
	assert.Empty(t, body.Engines[0].MaxDuration)
	assert.Equal(t, "beta", body.Engines[1].Name)
	assert.Equal(t, "10ms", body.Engines[1].MaxDuration)
}

func TestEngineHandler_Get(t *testing.T) {
	e := engine.NewEngine("alpha")
	r := newEngineRouter(e)

	req := httptest.NewRequest(http.MethodGet, "/admin/engines/alpha", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body EngineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alpha", body.Name)
	assert.Equal(t, 0, body.QueueDepth)
}

func TestEngineHandler_Get_NotFound(t *testing.T) {
	r := newEngineRouter(engine.NewEngine("alpha"))

	req := httptest.NewRequest(http.MethodGet, "/admin/engines/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEngineHandler_Flush(t *testing.T) {
	e := engine.NewEngine("alpha")
	task := engine.NewTask("victim", engine.MultiplexFunc(func(t *engine.Task, run engine.RunType) {}))
	task.Run(engine.WithDefaultEngine(e))
	require.Equal(t, 1, e.QueueLen())

	r := newEngineRouter(e)
	req := httptest.NewRequest(http.MethodPost, "/admin/engines/alpha/flush", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, e.QueueLen())
	assert.True(t, task.IsKilled())
}

func TestEngineHandler_SetDuration(t *testing.T) {
	e := engine.NewEngine("alpha")
	r := newEngineRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/admin/engines/alpha/duration",
		strings.NewReader(`{"max_duration":"25ms"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25*time.Millisecond, e.MaxDuration())
}

func TestEngineHandler_SetDuration_Invalid(t *testing.T) {
	e := engine.NewEngine("alpha")
	r := newEngineRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/admin/engines/alpha/duration",
		strings.NewReader(`{"max_duration":"nonsense"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, e.HasMaxDuration())
}

func TestEngineHandler_WakeUp(t *testing.T) {
	e := engine.NewEngine("alpha")
	r := newEngineRouter(e)

	req := httptest.NewRequest(http.MethodPost, "/admin/engines/alpha/wakeup", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

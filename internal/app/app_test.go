package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tonydantona/practice-routines-api/internal/config"
	domroutine "github.com/tonydantona/practice-routines-api/internal/domain/routine"
)

const testRoutines = `[
  {"text": "Play the C major scale in two octaves", "category": "one day", "tags": ["scales"]},
  {"text": "Learn three drop-2 chord voicings", "category": "weekly", "tags": ["chords", "theory"]},
  {"text": "Transcribe a short solo", "category": "weekly", "tags": ["ear"], "state": "completed"}
]`

// fakeOpenAI answers /embeddings with a topic vector per input and /models
// with an empty list.
func fakeOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/models":
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data := make([]map[string]any, len(req.Input))
			for i, text := range req.Input {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": topicVector(text)}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "test-model",
				"data":   data,
				"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func topicVector(text string) []float32 {
	switch {
	case strings.Contains(text, "scale"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "chord"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	routinesFile := filepath.Join(dir, "routines.json")
	require.NoError(t, os.WriteFile(routinesFile, []byte(testRoutines), 0o600))

	cfg := config.Config{
		Database:  config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "routines.db")},
		Embedding: config.EmbeddingConfig{APIKey: "test-key", BaseURL: fakeOpenAI(t).URL, Model: "test-model"},
		Routines:  config.RoutinesConfig{File: routinesFile},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func get(t *testing.T, h http.Handler, method, target string, v any) int {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, http.NoBody))
	if v != nil {
		require.NoError(t, json.NewDecoder(rr.Body).Decode(v))
	}
	return rr.Code
}

func TestApp_BuildThenServe(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	routines, err := a.LoadRoutines()
	require.NoError(t, err)
	res, err := a.Builder().Build(ctx, routines, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)

	h := a.HTTPHandler()

	var list struct {
		Count    int `json:"count"`
		Routines []struct {
			ID    string `json:"id"`
			Text  string `json:"text"`
			Tags  string `json:"tags"`
			State string `json:"state"`
		} `json:"routines"`
	}
	require.Equal(t, http.StatusOK, get(t, h, http.MethodGet, "/api/routines", &list))
	assert.Equal(t, 3, list.Count)

	var weekly struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK,
		get(t, h, http.MethodGet, "/api/routines?category=weekly&state=not_completed", &weekly))
	assert.Equal(t, 1, weekly.Count)

	var search struct {
		Count    int `json:"count"`
		Routines []struct {
			ID    string   `json:"id"`
			Text  string   `json:"text"`
			Score *float64 `json:"score"`
		} `json:"routines"`
	}
	require.Equal(t, http.StatusOK, get(t, h, http.MethodGet, "/api/routines/search?query=scale", &search))
	require.Equal(t, 1, search.Count)
	assert.Contains(t, search.Routines[0].Text, "C major scale")
	require.NotNil(t, search.Routines[0].Score)
	assert.InDelta(t, 0, *search.Routines[0].Score, 1e-6)

	id := search.Routines[0].ID
	require.Equal(t, http.StatusOK, get(t, h, http.MethodPut, "/api/routines/"+id+"/complete", nil))

	rt, found, err := a.repo.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domroutine.StateCompleted, rt.State())
	assert.Equal(t, "scales", rt.TagsString())

	var completed struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, get(t, h, http.MethodGet, "/api/routines?state=completed", &completed))
	assert.Equal(t, 2, completed.Count)

	var health struct {
		Status   string `json:"status"`
		Routines int    `json:"routines"`
	}
	require.Equal(t, http.StatusOK, get(t, h, http.MethodGet, "/health", &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Routines)

	again, err := a.Builder().Build(ctx, routines, false)
	require.NoError(t, err)
	assert.True(t, again.Skipped)

	forced, err := a.Builder().Build(ctx, routines, true)
	require.NoError(t, err)
	assert.Equal(t, 3, forced.Deleted)
	assert.Equal(t, 3, forced.Added)
}

func TestApp_UnknownRoutine404(t *testing.T) {
	a := newTestApp(t)

	code := get(t, a.HTTPHandler(), http.MethodPut, "/api/routines/does-not-exist/complete", nil)

	assert.Equal(t, http.StatusNotFound, code)
}

func TestNewStore_UnknownDriver(t *testing.T) {
	_, err := NewStore(config.DatabaseConfig{Driver: "chroma", Collection: "c"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}

func TestLoadRoutinesFrom_MissingFile(t *testing.T) {
	a := newTestApp(t)

	_, err := a.LoadRoutinesFrom(filepath.Join(t.TempDir(), "missing.json"))

	require.Error(t, err)
}

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/internal/config"
	"github.com/zhuguadundan/videowhisper/internal/files"
	"github.com/zhuguadundan/videowhisper/internal/pipeline"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, *task.Registry, http.Handler) {
	t.Helper()
	tempDir := filepath.Join(t.TempDir(), "temp")
	outputDir := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(tempDir, 0o755))
	require.NoError(t, os.MkdirAll(outputDir, 0o755))

	cfg := &config.Config{}
	cfg.System.TempDir = tempDir
	cfg.System.OutputDir = outputDir
	cfg.System.MaxFileSizeMB = 16
	cfg.Security.MaxConcurrentTasks = 1
	cfg.Security.MaxPendingTasks = 8
	cfg.LLMVendor = "siliconflow"
	if mutate != nil {
		mutate(cfg)
	}

	registry := task.NewRegistry(filepath.Join(tempDir, ".task_history.json"), nil)
	t.Cleanup(registry.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := pipeline.New(registry, nil, nil, nil, nil, pipeline.Config{
		Dirs:              pipeline.Dirs{TempDir: tempDir, OutputDir: outputDir},
		ProcessingTimeout: time.Minute,
	}, logger)
	t.Cleanup(engine.Close)

	server := NewServer(registry, engine, files.New(outputDir, tempDir), cfg, logger)
	return server, registry, server.Routes()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestHealth_EnvelopeShape(t *testing.T) {
	_, _, handler := newTestServer(t, nil)

	rec, env := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
	require.NotEmpty(t, env.Meta.RequestID)

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "ok", data["status"])
}

func TestProcess_RejectsLoopbackURLWithoutCreatingTask(t *testing.T) {
	_, registry, handler := newTestServer(t, nil)

	rec, env := doJSON(t, handler, http.MethodPost, "/api/process",
		`{"video_url":"https://127.0.0.1/video"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, string(task.ErrURLRejected), env.Error.Kind)
	require.Empty(t, registry.List())
}

func TestProcess_InvalidBody(t *testing.T) {
	_, _, handler := newTestServer(t, nil)

	rec, env := doJSON(t, handler, http.MethodPost, "/api/process", `{not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(task.ErrBadRequest), env.Error.Kind)
}

func TestProgress_UnknownTask(t *testing.T) {
	_, _, handler := newTestServer(t, nil)

	rec, env := doJSON(t, handler, http.MethodGet, "/api/progress/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, string(task.ErrNotFound), env.Error.Kind)
}

func TestDownload_RejectsArtifactEscapingOutputRoot(t *testing.T) {
	_, registry, handler := newTestServer(t, nil)

	created, err := registry.Create(task.Source{Kind: task.SourceURL, Value: "https://example.com/v"}, "")
	require.NoError(t, err)
	_, err = registry.Update(created.ID, func(rec *task.Task) {
		rec.Status = task.StatusCompleted
		rec.Artifacts = &task.Artifacts{Data: "/etc/hosts"}
	})
	require.NoError(t, err)

	rec, env := doJSON(t, handler, http.MethodGet, "/api/download/"+created.ID+"/data", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(task.ErrPathEscape), env.Error.Kind)
}

func TestDownload_UnknownKind(t *testing.T) {
	_, registry, handler := newTestServer(t, nil)

	created, err := registry.Create(task.Source{Kind: task.SourceURL, Value: "https://example.com/v"}, "")
	require.NoError(t, err)
	_, err = registry.Update(created.ID, func(rec *task.Task) {
		rec.Status = task.StatusCompleted
		rec.Artifacts = &task.Artifacts{}
	})
	require.NoError(t, err)

	rec, env := doJSON(t, handler, http.MethodGet, "/api/download/"+created.ID+"/wat", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, string(task.ErrBadRequest), env.Error.Kind)
}

func TestDownload_ServesCompletedArtifact(t *testing.T) {
	server, registry, handler := newTestServer(t, nil)

	artifactDir := filepath.Join(server.cfg.System.OutputDir, "t1")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))
	artifactPath := filepath.Join(artifactDir, "My_Video_transcript.md")
	require.NoError(t, os.WriteFile(artifactPath, []byte("# transcript"), 0o644))

	created, err := registry.Create(task.Source{Kind: task.SourceURL, Value: "https://example.com/v"}, "")
	require.NoError(t, err)
	_, err = registry.Update(created.ID, func(rec *task.Task) {
		rec.Status = task.StatusCompleted
		rec.Media = &task.Media{Title: "My Video"}
		rec.Artifacts = &task.Artifacts{Transcript: artifactPath}
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/download/"+created.ID+"/transcript", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "# transcript", rec.Body.String())
	require.Contains(t, rec.Header().Get("Content-Disposition"), "My Video_transcript")
}

func TestAdmin_StopAllRequiresTokenInProduction(t *testing.T) {
	_, _, handler := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.Production = true
		cfg.Security.AdminToken = "top-secret-token"
	})

	rec, env := doJSON(t, handler, http.MethodPost, "/api/stop-all-tasks", `{}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, string(task.ErrUnauthorized), env.Error.Kind)

	rec, env = doJSON(t, handler, http.MethodPost, "/api/stop-all-tasks", `{}`,
		map[string]string{"Authorization": "Bearer top-secret-token"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)
}

func TestAdmin_StopAllOpenInDevelopment(t *testing.T) {
	_, _, handler := newTestServer(t, nil)

	rec, env := doJSON(t, handler, http.MethodPost, "/api/stop-all-tasks", `{}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var data map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, 0, data["cancelled"])
}

func TestTasks_ListsCreatedTasks(t *testing.T) {
	_, registry, handler := newTestServer(t, nil)

	_, err := registry.Create(task.Source{Kind: task.SourceURL, Value: "https://example.com/a"}, "")
	require.NoError(t, err)
	_, err = registry.Create(task.Source{Kind: task.SourceURL, Value: "https://example.com/b"}, "")
	require.NoError(t, err)

	rec, env := doJSON(t, handler, http.MethodGet, "/api/tasks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []task.Summary
	require.NoError(t, json.Unmarshal(env.Data, &summaries))
	require.Len(t, summaries, 2)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhuguadundan/videowhisper/internal/config"
	"github.com/zhuguadundan/videowhisper/internal/files"
	"github.com/zhuguadundan/videowhisper/internal/llm"
	"github.com/zhuguadundan/videowhisper/internal/observability"
	"github.com/zhuguadundan/videowhisper/internal/pipeline"
	"github.com/zhuguadundan/videowhisper/internal/safety"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

// Server holds every collaborator the handlers dispatch into: the task
// registry, the pipeline engine, the file manager, and the validated
// configuration governing SSRF and admin-auth policy.
type Server struct {
	Registry  *task.Registry
	Engine    *pipeline.Engine
	Files     *files.Manager
	cfg       *config.Config
	logger    *slog.Logger
	urlPolicy safety.URLPolicy
}

// NewServer builds a Server. cfg must already be validated (config.Load).
func NewServer(registry *task.Registry, engine *pipeline.Engine, fileManager *files.Manager, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		Registry: registry,
		Engine:   engine,
		Files:    fileManager,
		cfg:      cfg,
		logger:   logger,
		urlPolicy: safety.URLPolicy{
			AllowInsecureHTTP:     cfg.Security.AllowInsecureHTTP,
			AllowPrivateAddresses: cfg.Security.AllowPrivateAddresses,
			AllowedHosts:          cfg.Security.AllowedAPIHosts,
			EnforceAllowlist:      cfg.Security.EnforceAPIHostsWhitelist,
		},
	}
}

// apiConfigOverride mirrors the optional per-request `api_config` object
// accepted by /api/process, /api/process-upload, and /api/translate,
// letting a client supply its own vendor credentials for one task instead
// of relying solely on the server's configured apis.* block.
type apiConfigOverride struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

func (s *Server) resolveLLMProvider(ctx context.Context, vendor string, override *apiConfigOverride) (llm.Provider, error) {
	if vendor == "" {
		vendor = s.cfg.LLMVendor
	}
	v := llm.Vendor(vendor)
	cfg := llm.Config{Vendor: v}
	switch v {
	case llm.VendorOpenAI:
		cfg.APIKey, cfg.BaseURL, cfg.Model = s.cfg.APIs.OpenAI.APIKey, s.cfg.APIs.OpenAI.BaseURL, s.cfg.APIs.OpenAI.Model
	case llm.VendorSiliconFlow:
		cfg.APIKey, cfg.BaseURL, cfg.Model = s.cfg.APIs.SiliconFlow.APIKey, s.cfg.APIs.SiliconFlow.BaseURL, s.cfg.APIs.SiliconFlow.Model
	case llm.VendorGemini:
		cfg.APIKey, cfg.BaseURL, cfg.Model = s.cfg.APIs.Gemini.APIKey, s.cfg.APIs.Gemini.BaseURL, s.cfg.APIs.Gemini.Model
	default:
		return nil, fmt.Errorf("unknown llm_provider %q", vendor)
	}
	if override != nil {
		if override.APIKey != "" {
			cfg.APIKey = override.APIKey
		}
		if override.BaseURL != "" {
			cfg.BaseURL = override.BaseURL
		}
		if override.Model != "" {
			cfg.Model = override.Model
		}
	}
	return llm.NewProvider(ctx, cfg, s.urlPolicy)
}

// --- POST /api/process ---

type processRequest struct {
	VideoURL       string             `json:"video_url"`
	LLMProvider    string             `json:"llm_provider"`
	APIConfig      *apiConfigOverride `json:"api_config,omitempty"`
	YoutubeCookies string             `json:"youtube_cookies,omitempty"`
}

func (s *Server) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "video_url is required")
		return
	}

	// Reject an unsafe URL before any task is created.
	if err := safety.IsSafeBaseURL(r.Context(), req.VideoURL, s.urlPolicy); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrURLRejected, err.Error())
		return
	}

	prov, err := s.resolveLLMProvider(r.Context(), req.LLMProvider, req.APIConfig)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, err.Error())
		return
	}

	t, err := s.Registry.Create(task.Source{Kind: task.SourceURL, Value: req.VideoURL}, requestID(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}

	s.Engine.SetCookies(t.ID, req.YoutubeCookies)
	if err := s.Engine.EnqueueWithProvider(t.ID, prov); err != nil {
		writeError(w, r, http.StatusConflict, task.ErrConflictBusy, "too many pending tasks")
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]string{"task_id": t.ID})
}

// --- POST /api/upload ---

func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.System.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "missing file field")
		return
	}
	defer file.Close()

	t, err := s.Registry.Create(task.Source{Kind: task.SourceUpload}, requestID(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}

	uploadDir, err := safety.SafeJoin(s.cfg.System.TempDir, t.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}
	dstPath, err := safety.SafeJoin(uploadDir, safety.SanitizeFilename(filepath.Base(header.Filename)))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrPathEscape, err.Error())
		return
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrDiskFull, err.Error())
		return
	}

	if _, err := s.Registry.Update(t.ID, func(rec *task.Task) {
		rec.Source.Path = dstPath
	}); err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}

	writeData(w, r, http.StatusAccepted, map[string]string{"task_id": t.ID})
}

// --- POST /api/process-upload ---

type processUploadRequest struct {
	TaskID      string             `json:"task_id"`
	LLMProvider string             `json:"llm_provider"`
	APIConfig   *apiConfigOverride `json:"api_config,omitempty"`
}

func (s *Server) HandleProcessUpload(w http.ResponseWriter, r *http.Request) {
	var req processUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "invalid request body")
		return
	}
	t, ok := s.Registry.Get(req.TaskID)
	if !ok {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "task not found")
		return
	}
	if t.Source.Kind != task.SourceUpload || t.Source.Path == "" {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "task has no uploaded file")
		return
	}

	prov, err := s.resolveLLMProvider(r.Context(), req.LLMProvider, req.APIConfig)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, err.Error())
		return
	}

	if err := s.Engine.EnqueueWithProvider(t.ID, prov); err != nil {
		writeError(w, r, http.StatusConflict, task.ErrConflictBusy, "too many pending tasks")
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]string{"task_id": t.ID})
}

// --- GET /api/progress/{id} ---

func (s *Server) HandleProgress(w http.ResponseWriter, r *http.Request) {
	t, ok := s.Registry.Get(pathParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "task not found")
		return
	}
	writeData(w, r, http.StatusOK, t)
}

// --- GET /api/result/{id} ---

func (s *Server) HandleResult(w http.ResponseWriter, r *http.Request) {
	t, ok := s.Registry.Get(pathParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "task not found")
		return
	}
	if t.Status != task.StatusCompleted {
		writeError(w, r, http.StatusConflict, task.ErrConflictBusy, "task is not completed")
		return
	}
	if t.Artifacts == nil || t.Artifacts.Data == "" {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "no result artifact recorded")
		return
	}
	data, err := os.ReadFile(t.Artifacts.Data)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, "read result: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- GET /api/download/{id}/{kind} ---

func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	kind := pathParam(r, "kind")

	t, ok := s.Registry.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "task not found")
		return
	}
	if t.Status != task.StatusCompleted && t.Status != task.StatusFailed && t.Status != task.StatusCancelled {
		writeError(w, r, http.StatusConflict, task.ErrConflictBusy, "task is still processing")
		return
	}
	if t.Artifacts == nil {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "no artifacts recorded")
		return
	}

	var path string
	switch kind {
	case "transcript":
		path = t.Artifacts.Transcript
	case "timestamps":
		path = t.Artifacts.TranscriptTimestamps
	case "summary":
		path = t.Artifacts.Summary
	case "data":
		path = t.Artifacts.Data
	case "bilingual":
		path = t.Artifacts.Bilingual
	default:
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "unknown download kind")
		return
	}
	if path == "" {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "artifact not available")
		return
	}

	// Reject any path that, after containment resolution, escapes the
	// configured output root, even if the stored path is well-formed.
	if ok, err := safety.IsWithin(s.cfg.System.OutputDir, path); err != nil || !ok {
		writeError(w, r, http.StatusBadRequest, task.ErrPathEscape, "artifact path escapes output root")
		return
	}

	file, err := os.Open(path)
	if err != nil {
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, "artifact file missing")
		return
	}
	defer file.Close()

	title := "transcript"
	if t.Media != nil && t.Media.Title != "" {
		title = t.Media.Title
	}
	downloadName := safety.SanitizeFilename(title) + "_" + kind + filepath.Ext(path)
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, file)
}

// --- POST /api/translate ---

type translateRequest struct {
	TaskID      string             `json:"task_id"`
	LLMProvider string             `json:"llm_provider"`
	APIConfig   *apiConfigOverride `json:"api_config,omitempty"`
	TargetLang  string             `json:"target_language,omitempty"`
}

func (s *Server) HandleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "invalid request body")
		return
	}
	target := req.TargetLang
	if target == "" {
		target = "English"
	}

	if req.LLMProvider != "" {
		prov, err := s.resolveLLMProvider(r.Context(), req.LLMProvider, req.APIConfig)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, err.Error())
			return
		}
		s.Engine.SetLLMOverride(req.TaskID, prov)
	}

	if err := s.Engine.Translate(r.Context(), req.TaskID, target); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeError(w, r, http.StatusNotFound, task.ErrNotFound, "task not found")
			return
		}
		writeError(w, r, http.StatusConflict, task.ErrConflictBusy, err.Error())
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]string{"task_id": req.TaskID})
}

// --- GET /api/tasks ---

func (s *Server) HandleTasks(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, s.Registry.List())
}

// --- POST /api/stop-all-tasks ---

func (s *Server) HandleStopAll(w http.ResponseWriter, r *http.Request) {
	n := s.Engine.StopAll()
	writeData(w, r, http.StatusOK, map[string]int{"cancelled": n})
}

// --- /api/files ---

func (s *Server) HandleFilesList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Files.ListAll()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}
	writeData(w, r, http.StatusOK, entries)
}

func (s *Server) HandleFilesDownload(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "token is required")
		return
	}
	file, name, err := s.Files.OpenForDownload(token)
	if err != nil {
		if errors.Is(err, files.ErrEscapesRoots) {
			writeError(w, r, http.StatusBadRequest, task.ErrPathEscape, err.Error())
			return
		}
		writeError(w, r, http.StatusNotFound, task.ErrNotFound, err.Error())
		return
	}
	defer file.Close()
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, file)
}

type deleteFilesRequest struct {
	Tokens []string `json:"tokens"`
}

func (s *Server) HandleFilesDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteFilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrBadRequest, "invalid request body")
		return
	}
	writeData(w, r, http.StatusOK, s.Files.DeleteMany(req.Tokens))
}

func (s *Server) HandleFilesDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	s.Engine.Stop(id)
	if err := s.Files.DeleteTask(id); err != nil {
		writeError(w, r, http.StatusBadRequest, task.ErrPathEscape, err.Error())
		return
	}
	if _, _, err := s.Registry.Delete(id); err != nil {
		writeError(w, r, http.StatusInternalServerError, task.ErrInternal, err.Error())
		return
	}
	s.Engine.ClearOverride(id)
	writeData(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// --- GET /api/health ---

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]string{"version": Version, "status": "ok"})
}

// Version is overridden at build time via -ldflags.
var Version = "dev"

func requestID(r *http.Request) string {
	return observability.RequestIDFromContext(r.Context())
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

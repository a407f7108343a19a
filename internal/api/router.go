package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zhuguadundan/videowhisper/internal/observability"
)

// Routes builds the full chi router: public routes first, then a
// write-side rate limiter for backpressure, then an admin-gated group, all
// wrapped in otelhttp for request tracing.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestIDMiddleware)

	r.Get("/api/health", s.HandleHealth)
	r.Get("/api/progress/{id}", s.HandleProgress)
	r.Get("/api/result/{id}", s.HandleResult)
	r.Get("/api/download/{id}/{kind}", s.HandleDownload)
	r.Get("/api/tasks", s.HandleTasks)
	r.Get("/api/files", s.HandleFilesList)
	r.Get("/api/files/download", s.HandleFilesDownload)

	writeLimit := s.cfg.Security.MaxConcurrentTasks + s.cfg.Security.MaxPendingTasks
	if writeLimit <= 0 {
		writeLimit = 10
	}
	rWrite := r.With(httprate.LimitByIP(writeLimit, time.Minute))
	rWrite.Post("/api/process", s.HandleProcess)
	rWrite.Post("/api/upload", s.HandleUpload)
	rWrite.Post("/api/process-upload", s.HandleProcessUpload)
	rWrite.Post("/api/translate", s.HandleTranslate)

	rAdmin := r.With(s.adminAuth)
	rAdmin.Post("/api/stop-all-tasks", s.HandleStopAll)
	rAdmin.Post("/api/files/delete", s.HandleFilesDelete)
	rAdmin.Post("/api/files/delete-task/{id}", s.HandleFilesDeleteTask)

	return otelhttp.NewHandler(r, "videowhisper")
}

// requestIDMiddleware attaches a fresh correlation ID to the request
// context, echoed back in every response envelope's meta.request_id and
// stamped on every log line.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := observability.NewRequestID()
		ctx := observability.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

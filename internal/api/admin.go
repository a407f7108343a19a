package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zhuguadundan/videowhisper/internal/task"
)

// adminAuth gates admin-only routes (/api/files/delete*, /api/stop-all-tasks)
// behind a bearer token compared against the configured admin token. In
// development (security.production == false) the gate is a no-op.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Security.Production {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || s.cfg.Security.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Security.AdminToken)) != 1 {
			writeError(w, r, statusForKind(task.ErrUnauthorized), task.ErrUnauthorized, "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

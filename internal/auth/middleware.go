package auth

import (
	"encoding/json"
	"net/http"
)

const (
	apiKeyHeader     = "api-key"
	apiKeyQueryParam = "api-key"
)

// Middleware enforces an access key from the api-key header or query
// parameter. Read-only clients are limited to GET and HEAD.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			key = r.URL.Query().Get(apiKeyQueryParam)
		}
		c, ok := s.Lookup(key)
		if !ok {
			deny(w, http.StatusUnauthorized, "missing or unknown access key")
			return
		}
		if c.ReadOnly && r.Method != http.MethodGet && r.Method != http.MethodHead {
			deny(w, http.StatusForbidden, "read-only access key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "UNAUTHORIZED", "message": msg})
}

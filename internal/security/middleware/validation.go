package middleware

import (
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
)

// idParams are query parameters that name a user or tenant and must parse as
// UUIDs.
var idParams = []string{"tenantId"}

// RequireJSONBody answers 415 to POST, PUT and PATCH calls whose non-empty
// body is not declared as application/json.
func RequireJSONBody(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
			default:
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if mediaType, _, err := mime.ParseMediaType(contentType); err != nil || mediaType != "application/json" {
				log.Warn("rejected request body",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
				)
				writeError(w, r, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateQuery rejects malformed identifiers and control characters in the
// query string, and dot-dot or empty segments in the path, before any handler
// or store sees them.
func ValidateQuery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.URL.Path, "..") || strings.Contains(r.URL.Path, "//") {
				log.Warn("rejected request path", slog.String("path", r.URL.Path))
				writeError(w, r, http.StatusBadRequest, "invalid path")
				return
			}

			if key, bad := invalidQueryParam(r.URL.Query()); bad {
				log.Warn("rejected query parameter",
					slog.String("path", r.URL.Path),
					slog.String("param", key),
				)
				writeError(w, r, http.StatusBadRequest, "invalid query parameter: "+key)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func invalidQueryParam(query url.Values) (string, bool) {
	for key, values := range query {
		for _, val := range values {
			if strings.ContainsFunc(val, isControl) {
				return key, true
			}
		}
	}
	for _, key := range idParams {
		for _, val := range query[key] {
			// an empty filter means no filter
			if val != "" && !domain.ValidID(val) {
				return key, true
			}
		}
	}
	return "", false
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

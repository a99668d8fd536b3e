package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/aryan0dhankhar/assettrack/internal/domain"
	"github.com/aryan0dhankhar/assettrack/internal/security/audit"
	"github.com/aryan0dhankhar/assettrack/internal/security/auth"
	"github.com/aryan0dhankhar/assettrack/internal/security/ratelimit"
)

type principalContextKey struct{}

// PrincipalResolver turns a bearer token into the request principal.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, token string) (*domain.Principal, error)
}

type errorBody struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorBody{Message: msg})
}

// Authenticate requires a valid bearer token and attaches the resolved
// principal to the request context.
func Authenticate(resolver PrincipalResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			p, err := resolver.ResolvePrincipal(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				log.Error("failed to resolve principal",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, r, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RateLimit rejects requests once the client IP exhausts its bucket.
func RateLimit(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				log.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("client_ip", ip),
				)
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxLoginBody caps how much of a login body is read to find the username.
const maxLoginBody = 1 << 16

// RateLimitUsername limits login attempts per submitted username, so one
// account cannot be guessed at from many addresses. The body is restored for
// the next handler.
func RateLimitUsername(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBody))
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			var creds struct {
				Username string `json:"username"`
			}
			// malformed bodies fall through to the handler's own decoding error
			_ = json.Unmarshal(body, &creds)
			username := strings.ToLower(strings.TrimSpace(creds.Username))
			if username == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow("user:" + username) {
				log.Warn("login rate limit exceeded",
					slog.String("username", username),
					slog.String("client_ip", ClientIP(r)),
				)
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit records every mutating request made by an authenticated principal.
func Audit(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				auditLog.LogAction(r.Context(), PrincipalFromContext(r.Context()),
					r.Method, r.URL.Path, "", "initiated", "")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's remote address without the port. chi's
// RealIP middleware has already applied forwarding headers when mounted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) *domain.Principal {
	if p, ok := ctx.Value(principalContextKey{}).(*domain.Principal); ok {
		return p
	}
	return nil
}

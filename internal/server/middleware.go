package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type ctxKey string

const ctxUserID ctxKey = "userID"

// credentialsDetail is the detail sent with every 401 from a protected route.
const credentialsDetail = "Could not validate credentials"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs one line per request at debug level.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
				"request_id", r.Header.Get("X-Request-ID"), "duration", time.Since(start))
		})
	}
}

// Recoverer turns a handler panic into a 500.
func Recoverer(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("handler panic", "path", r.URL.Path, "err", err)
					writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequireBearer validates the bearer token and stores the user id in the request context.
//
// exists reports whether the token's subject is still a known user.
func RequireBearer(issuer *TokenIssuer, exists func(userID int) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "Not authenticated")
				return
			}

			userID, err := issuer.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil || !exists(userID) {
				unauthorized(w, credentialsDetail)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// UserIDFromContext returns the authenticated user id, or 0 outside a protected route.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(ctxUserID).(int); ok {
		return id
	}
	return 0
}

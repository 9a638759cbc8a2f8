package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// loggingMiddleware logs each request's method, path, and duration,
// grounded on walletserver/middleware/logger.go's request logger.
func loggingMiddleware(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			}).Info("request")
		})
	}
}

// adminAuth enforces "Authorization: Bearer <adminToken>" on admin
// endpoints.
func adminAuth(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAccessDenied(w)
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token != adminToken {
				writeAccessDenied(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httpinterface

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shielded-exchange/withdrawd/internal/core/application"
	"github.com/shielded-exchange/withdrawd/internal/core/domain"
	log "github.com/sirupsen/logrus"
)

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

// bearerAuth rejects requests not carrying the api token. Rejections are
// audited.
func bearerAuth(
	token string, auditSvc application.AuditService, logger *log.Entry,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			logger.Warn("api token not set, authentication disabled")
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			reason := "invalid token"
			if !ok {
				reason = "missing token"
			}
			auditSvc.Log(r.Context(), domain.AuditEvent{
				Type:     domain.EventAuth,
				Severity: domain.SeverityWarn,
				Context: map[string]string{
					"result":     "denied",
					"reason":     reason,
					"method":     r.Method,
					"path":       r.URL.Path,
					"remoteAddr": r.RemoteAddr,
				},
			})
			w.Header().Set("WWW-Authenticate", `Bearer realm="withdrawd"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code: "unauthorized", Message: reason,
			})
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) <= len(prefix) ||
		!strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

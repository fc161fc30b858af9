package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/server/auth"
	"github.com/fileforge/fileforge/internal/server/gate"
	"github.com/fileforge/fileforge/internal/server/models"
)

type ctxKey int

const (
	ctxKeyDecision ctxKey = iota
	ctxKeyPrincipal
)

type principal struct {
	ID   string
	Tier string
}

func decisionFrom(ctx context.Context) *gate.Decision {
	d, _ := ctx.Value(ctxKeyDecision).(*gate.Decision)
	return d
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(principal)
	return p
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const scheme = "Bearer "
	if !strings.HasPrefix(h, scheme) {
		return "", false
	}
	return strings.TrimSpace(h[len(scheme):]), true
}

// clientIP prefers proxy-set headers and falls back to the socket peer.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseRecorder captures the status and body size for the usage record.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += int64(n)
	return n, err
}

// requireAction authorizes the bearer API key for the given action and, after
// the handler responds, records the request usage out-of-band.
func (s *Server) requireAction(action models.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, common.ErrInvalidKey)
				return
			}

			ip := clientIP(r)
			decision, err := s.gate.Authorize(r.Context(), secret, ip, action)
			if err != nil {
				writeUnauthorized(w, err)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKeyDecision, decision)))

			decision.RecordUsage(r.URL.Path, r.Method, rec.status, time.Since(start),
				ip, r.UserAgent(), r.ContentLength, rec.bytes)
		})
	}
}

// requirePrincipal authenticates the dashboard-issued token guarding key
// management.
func (s *Server) requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, common.ErrInvalidToken)
			return
		}

		id, tier, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			writeUnauthorized(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal{ID: id, Tier: tier})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package httpapi exposes the core over HTTP: key management guarded by
// principal tokens, and upload endpoints guarded by the bearer-key gate.
// Dashboard rendering, CORS, and request logging live outside this service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/gate"
	"github.com/fileforge/fileforge/internal/server/keys"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/uploads"
	"github.com/go-chi/chi/v5"
)

// Server wires the HTTP surface to the core components.
type Server struct {
	addr        string
	gate        *gate.Gate
	keys        *keys.Manager
	coordinator *uploads.Coordinator
	logger      logging.Logger
	jwtSecret   []byte
}

// NewServer constructs the HTTP surface.
func NewServer(addr string, g *gate.Gate, km *keys.Manager, coord *uploads.Coordinator, logger logging.Logger, jwtSecret []byte) *Server {
	return &Server{
		addr:        addr,
		gate:        g,
		keys:        km,
		coordinator: coord,
		logger:      logger,
		jwtSecret:   jwtSecret,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requirePrincipal)
			r.Post("/keys", s.handleCreateKey)
			r.Get("/keys", s.handleListKeys)
			r.Post("/keys/{id}/rotate", s.handleRotateKey)
			r.Put("/keys/{id}/settings", s.handleUpdateKeySettings)
			r.Delete("/keys/{id}", s.handleRevokeKey)
		})

		r.Group(func(r chi.Router) {
			r.With(s.requireAction(models.ActionUpload)).Post("/uploads/sign", s.handleSignUpload)
			r.With(s.requireAction(models.ActionUpload)).Post("/uploads/finalize", s.handleFinalizeUpload)
			r.With(s.requireAction(models.ActionDelete)).Delete("/files/*", s.handleDeleteFile)
		})
	})

	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeUnauthorized reports every gate rejection the same way; the precise
// kind stays in the security-event trail.
func writeUnauthorized(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: common.ErrorCode(err)})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrInvalidFileInfo):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: common.ErrorCode(err)})
	case errors.Is(err, common.ErrExpiredSession):
		writeJSON(w, http.StatusGone, errorResponse{Error: err.Error(), Code: common.ErrorCode(err)})
	case errors.Is(err, common.ErrObjectNotFound), errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: common.ErrorCode(err)})
	case errors.Is(err, common.ErrLimitExceeded):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: common.ErrorCode(err)})
	case errors.Is(err, common.ErrorUnauthorized):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Code: common.ErrorCode(err)})
	case errors.Is(err, common.ErrProvider):
		// Storage backend failures are retriable.
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage backend unavailable", Code: common.ErrorCode(err)})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: common.ErrorCode(err)})
	}
}

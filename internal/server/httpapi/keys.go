package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fileforge/fileforge/internal/server/keys"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type createKeyRequest struct {
	Name        string              `json:"name"`
	Permissions *models.Permissions `json:"permissions,omitempty"`
	RateLimit   int                 `json:"rate_limit,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	AllowedIPs  []string            `json:"allowed_ips,omitempty"`
}

// keyResponse is the public credential view. The hash never leaves the server;
// Key is set only on creation and rotation.
type keyResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Key         string             `json:"key,omitempty"`
	KeyPrefix   string             `json:"key_prefix"`
	Tier        string             `json:"tier"`
	Permissions models.Permissions `json:"permissions"`
	RateLimit   int                `json:"rate_limit"`
	AllowedIPs  []string           `json:"allowed_ips,omitempty"`
	UsageCount  int64              `json:"usage_count"`
	LastUsedAt  *time.Time         `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time         `json:"expires_at,omitempty"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toKeyResponse(c *models.Credential, secret string) keyResponse {
	return keyResponse{
		ID:          c.ID,
		Name:        c.Name,
		Key:         secret,
		KeyPrefix:   c.KeyPrefix,
		Tier:        c.Tier,
		Permissions: c.Permissions,
		RateLimit:   c.RateLimit,
		AllowedIPs:  c.AllowedIPs,
		UsageCount:  c.UsageCount,
		LastUsedAt:  c.LastUsedAt,
		ExpiresAt:   c.ExpiresAt,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	}
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}

	created, err := s.keys.Create(r.Context(), p.ID, p.Tier, keys.CreateOptions{
		Name:        req.Name,
		Permissions: req.Permissions,
		RateLimit:   req.RateLimit,
		ExpiresAt:   req.ExpiresAt,
		AllowedIPs:  req.AllowedIPs,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toKeyResponse(created.Credential, created.Secret))
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	creds, err := s.keys.ListByOwner(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]keyResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, toKeyResponse(c, ""))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	rotated, err := s.keys.Rotate(r.Context(), chi.URLParam(r, "id"), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toKeyResponse(rotated.Credential, rotated.Secret))
}

type updateKeySettingsRequest struct {
	Permissions models.Permissions `json:"permissions"`
	RateLimit   int                `json:"rate_limit"`
	AllowedIPs  []string           `json:"allowed_ips,omitempty"`
}

func (s *Server) handleUpdateKeySettings(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	var req updateKeySettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}

	if err := s.keys.UpdateSettings(r.Context(), chi.URLParam(r, "id"), p.ID,
		req.Permissions, req.RateLimit, req.AllowedIPs); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	if err := s.keys.Revoke(r.Context(), chi.URLParam(r, "id"), p.ID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/uploads"
	"github.com/go-chi/chi/v5"
)

type signUploadRequest struct {
	FileName     string `json:"file_name,omitempty"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	PreserveName bool   `json:"preserve_name,omitempty"`
}

type signUploadResponse struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleSignUpload(w http.ResponseWriter, r *http.Request) {
	d := decisionFrom(r.Context())

	var req signUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}

	session, err := s.coordinator.IssueUploadAuthorization(r.Context(), uploads.FileInfo{
		FileName:     req.FileName,
		ContentType:  req.ContentType,
		Size:         req.Size,
		PreserveName: req.PreserveName,
	}, d.Credential.Tier)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, signUploadResponse{
		ObjectKey: session.ObjectKey,
		URL:       session.URL,
		ExpiresAt: session.ExpiresAt,
	})
}

type finalizeUploadRequest struct {
	ObjectKey string   `json:"object_key"`
	IsPublic  bool     `json:"is_public,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	Optimize           bool `json:"optimize,omitempty"`
	GenerateThumbnails bool `json:"generate_thumbnails,omitempty"`
	PreserveMetadata   bool `json:"preserve_metadata,omitempty"`
	AlreadyOptimized   bool `json:"already_optimized,omitempty"`
}

type storedFileResponse struct {
	ID            string     `json:"id"`
	ObjectKey     string     `json:"object_key"`
	OwnerID       string     `json:"owner_id,omitempty"`
	Size          int64      `json:"size"`
	ContentType   string     `json:"content_type"`
	IsPublic      bool       `json:"is_public"`
	Tags          []string   `json:"tags,omitempty"`
	ThumbnailKeys []string   `json:"thumbnail_keys,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toStoredFileResponse(f *models.StoredFile) storedFileResponse {
	return storedFileResponse{
		ID:            f.ID,
		ObjectKey:     f.ObjectKey,
		OwnerID:       f.OwnerID,
		Size:          f.Size,
		ContentType:   f.ContentType,
		IsPublic:      f.IsPublic,
		Tags:          f.Tags,
		ThumbnailKeys: f.ThumbnailKeys,
		ExpiresAt:     f.ExpiresAt,
		CreatedAt:     f.CreatedAt,
	}
}

func (s *Server) handleFinalizeUpload(w http.ResponseWriter, r *http.Request) {
	d := decisionFrom(r.Context())

	var req finalizeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectKey == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return
	}

	// Guest-tier uploads stay ownerless so the retention sweep picks them up.
	ownerID := d.Credential.OwnerID
	if d.Credential.Tier == models.TierGuest {
		ownerID = ""
	}

	f, err := s.coordinator.FinalizeUpload(r.Context(), req.ObjectKey, uploads.FinalizeOptions{
		OwnerID:            ownerID,
		IsPublic:           req.IsPublic,
		Tags:               req.Tags,
		Optimize:           req.Optimize,
		GenerateThumbnails: req.GenerateThumbnails,
		PreserveMetadata:   req.PreserveMetadata,
		AlreadyOptimized:   req.AlreadyOptimized,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toStoredFileResponse(f))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	d := decisionFrom(r.Context())

	objectKey := chi.URLParam(r, "*")
	if objectKey == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing object key", Code: "bad_request"})
		return
	}

	if err := s.coordinator.DeleteFile(r.Context(), objectKey, d.Credential.Tier); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "studyvault/internal/api/middlewares"
	"studyvault/internal/services"
)

// UploadHandler exposes the presigned-upload and job-status endpoints.
type UploadHandler struct {
	uploads *services.UploadService
	jobs    *services.JobService
}

func NewUploadHandler(uploads *services.UploadService, jobs *services.JobService) *UploadHandler {
	return &UploadHandler{uploads: uploads, jobs: jobs}
}

type initiateUploadRequest struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// Initiate issues a presigned PUT URL and an upload session the client must
// complete before the TTL runs out.
func (h *UploadHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req initiateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ticket, err := h.uploads.InitiateUpload(r.Context(), userID, req.Filename, req.MimeType, req.FileSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

type completeUploadRequest struct {
	ETag string `json:"etag"`
}

// Complete runs the ingestion pipeline for a finished upload. With ?async=1
// the run is queued and a job id returned instead of the material.
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req completeUploadRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if r.URL.Query().Get("async") == "1" {
		job, err := h.uploads.CompleteUploadAsync(r.Context(), userID, sessionID, req.ETag)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}

	mat, err := h.uploads.CompleteUpload(r.Context(), userID, sessionID, req.ETag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mat)
}

// JobStatus reports progress of an asynchronous ingestion run.
func (h *UploadHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	view, err := h.jobs.GetStatus(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

package services

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyvault/internal/core"
	"studyvault/internal/core/ingestion_engine"
	"studyvault/internal/models"
)

// UploadService owns the presigned-upload lifecycle: issuing upload intents
// and turning a finished upload into an ingestion run.
type UploadService struct {
	db       core.DbClient
	storage  core.ObjectClient
	loader   core.DocumentLoader
	pipeline *ingestion_engine.Pipeline
	worker   *ingestion_engine.Worker
	ttl      time.Duration
}

func NewUploadService(db core.DbClient, storage core.ObjectClient, ld core.DocumentLoader, pipeline *ingestion_engine.Pipeline, worker *ingestion_engine.Worker, ttl time.Duration) *UploadService {
	return &UploadService{
		db:       db,
		storage:  storage,
		loader:   ld,
		pipeline: pipeline,
		worker:   worker,
		ttl:      ttl,
	}
}

// UploadTicket is what the client needs to perform the upload itself.
type UploadTicket struct {
	SessionID string    `json:"session_id"`
	UploadURL string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InitiateUpload validates the declared file, creates an INITIATED session and
// returns a presigned PUT URL. Unsupported types are rejected before any
// session row exists.
func (s *UploadService) InitiateUpload(ctx context.Context, userID, filename, mimeType string, fileSize int64) (*UploadTicket, error) {
	if fileSize <= 0 {
		return nil, core.Errf(core.CodeInvalidState, "file size must be positive")
	}
	if !s.loader.Supports(mimeType, filename) {
		return nil, core.Errf(core.CodeUnsupportedType, "unsupported document type").
			WithDetail("mime_type", mimeType).
			WithDetail("filename", filename)
	}

	sessionID := uuid.NewString()
	key := s.tempObjectKey(userID, sessionID, filename)
	expiresAt := time.Now().Add(s.ttl)

	url, err := s.storage.PresignPut(ctx, key, mimeType, s.ttl)
	if err != nil {
		return nil, err
	}

	sess := &models.UploadSession{
		ID:               sessionID,
		UserID:           userID,
		Status:           models.UploadInitiated,
		ObjectKey:        key,
		OriginalFilename: filename,
		MimeType:         mimeType,
		FileSize:         fileSize,
		ExpiresAt:        expiresAt,
	}
	if err := s.db.CreateUploadSession(ctx, sess); err != nil {
		return nil, err
	}

	return &UploadTicket{
		SessionID: sessionID,
		UploadURL: url,
		ObjectKey: key,
		ExpiresAt: expiresAt,
	}, nil
}

// CompleteUpload runs the ingestion pipeline synchronously and returns the
// finished material.
func (s *UploadService) CompleteUpload(ctx context.Context, userID, sessionID, etag string) (*models.Material, error) {
	return s.pipeline.CompleteUpload(ctx, userID, sessionID, etag, nil)
}

// CompleteUploadAsync creates a job row and hands the run to the worker pool.
// The returned job id is immediately pollable.
func (s *UploadService) CompleteUploadAsync(ctx context.Context, userID, sessionID, etag string) (*models.MaterialJob, error) {
	job := &models.MaterialJob{
		ID:      uuid.NewString(),
		UserID:  userID,
		JobType: models.JobTypeIngest,
		Status:  models.JobPending,
	}
	if err := s.db.CreateMaterialJob(ctx, job); err != nil {
		return nil, err
	}

	err := s.worker.Enqueue(ctx, ingestion_engine.IngestJob{
		JobID:        job.ID,
		UserID:       userID,
		SessionID:    sessionID,
		ExpectedETag: etag,
	})
	if err != nil {
		_ = s.db.FinishMaterialJob(ctx, job.ID, models.JobFailed, 0, `{"code":"QUEUE_UNAVAILABLE","message":"ingestion queue is full"}`, "")
		return nil, err
	}
	return job, nil
}

// tempObjectKey creates the staging key layout for a pending upload.
func (s *UploadService) tempObjectKey(userID, sessionID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("uploads", "tmp", userID, sessionID, filename)
}

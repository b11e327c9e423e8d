package core

import (
	"context"
	"time"

	"studyvault/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateUploadSession(ctx context.Context, sess *models.UploadSession) error
	GetUploadSession(ctx context.Context, userID, id string) (*models.UploadSession, error)
	UpdateUploadSessionStatus(ctx context.Context, id, status, errorMessage string) error
	RecordUploadSessionETag(ctx context.Context, id, etag string) error

	GetMaterialByID(ctx context.Context, userID, id string) (*models.Material, error)
	GetMaterialByChecksum(ctx context.Context, userID, checksum string) (*models.Material, error)
	ListMaterialsByUser(ctx context.Context, userID string) ([]models.Material, error)
	DeleteMaterialHard(ctx context.Context, id string) error
	SoftDeleteMaterial(ctx context.Context, userID, id string) error

	// FinalizeIngestion commits the material row, the replaced outline set and
	// the session completion in one transaction, so a crash can never leave a
	// READY material without an outline or a COMPLETED session without a material.
	FinalizeIngestion(ctx context.Context, mat *models.Material, nodes []models.OutlineNode, sessionID string) error
	ListOutlineNodes(ctx context.Context, materialID string) ([]models.OutlineNode, error)

	CreateMaterialJob(ctx context.Context, job *models.MaterialJob) error
	GetMaterialJob(ctx context.Context, userID, id string) (*models.MaterialJob, error)
	UpdateMaterialJobProgress(ctx context.Context, id, status string, progress int) error
	FinishMaterialJob(ctx context.Context, id, status string, progress int, errorJSON, materialID string) error

	Close() error
}

// ObjectInfo is the metadata returned by a HEAD on the object store.
type ObjectInfo struct {
	Size        int64
	ContentType string
	ETag        string
}

// ObjectClient defines interactions with S3 or any object storage.
// Implementations return a CodedError with CodeObjectNotFound when the key
// does not exist, so callers can distinguish 404 from transport failures.
type ObjectClient interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	GetFile(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, srcKey, dstKey, contentType string) error
	DeleteFile(ctx context.Context, key string) error
}

// DocumentLoader turns raw bytes plus a declared MIME type and filename into
// ordered page fragments, or fails with CodeUnsupportedType.
type DocumentLoader interface {
	Supports(mimeType, filename string) bool
	Load(data []byte, mimeType, filename string) ([]models.PageFragment, error)
}

// AnalysisProvider converts full text into a bounded structural summary.
type AnalysisProvider interface {
	Analyze(ctx context.Context, fullText, mimeType string) (*models.DocumentAnalysis, error)
}

// EmbeddingProvider embeds a batch of texts.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex owns the per-user similarity-searchable chunk collection.
// All operations are partitioned by userID; Search and FetchChunkRange never
// return another user's chunks.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, docs []models.ChunkDocument) error
	DeleteMaterialChunks(ctx context.Context, userID, materialID string) error
	Search(ctx context.Context, userID, query string, topK int, materialIDs []string) ([]models.SearchHit, error)
	FetchChunkRange(ctx context.Context, userID, materialID string, start, end int) ([]models.ChunkDocument, error)
	CountChunks(ctx context.Context, userID string, materialIDs []string) (map[string]int, error)
}

package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Upload session statuses. A session reaches exactly one terminal status.
const (
	UploadInitiated = "INITIATED"
	UploadCompleted = "COMPLETED"
	UploadFailed    = "FAILED"
	UploadExpired   = "EXPIRED"
)

// UploadSession tracks one presigned-upload intent from initiation to a
// terminal status. Rows are never deleted; they are the audit trail.
type UploadSession struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	Status           string     `db:"status" json:"status"`
	ObjectKey        string     `db:"object_key" json:"object_key"`
	FinalObjectKey   string     `db:"final_object_key" json:"final_object_key,omitempty"`
	OriginalFilename string     `db:"original_filename" json:"original_filename"`
	MimeType         string     `db:"mime_type" json:"mime_type"`
	FileSize         int64      `db:"file_size" json:"file_size"`
	ETag             string     `db:"etag" json:"etag,omitempty"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expires_at"`
	MaterialID       string     `db:"material_id" json:"material_id,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Material processing statuses.
const (
	MaterialPending = "PENDING"
	MaterialReady   = "READY"
	MaterialFailed  = "FAILED"
)

// Material is the durable record of one ingested document. Checksum is
// unique within a user's non-deleted materials and is the dedup key.
type Material struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	SourceType       string     `db:"source_type" json:"source_type"`
	Title            string     `db:"title" json:"title"`
	OriginalFilename string     `db:"original_filename" json:"original_filename"`
	StorageProvider  string     `db:"storage_provider" json:"storage_provider"`
	StorageKey       string     `db:"storage_key" json:"storage_key"`
	MimeType         string     `db:"mime_type" json:"mime_type"`
	FileSize         int64      `db:"file_size" json:"file_size"`
	Checksum         string     `db:"checksum" json:"checksum"`
	ProcessingStatus string     `db:"processing_status" json:"processing_status"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	Summary          string     `db:"summary" json:"summary,omitempty"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Outline node types.
const (
	NodeSection = "SECTION"
	NodeTopic   = "TOPIC"
)

// OutlineNode is one element of a material's hierarchical structure.
// Path is a dotted ordinal path ("0", "0.1", "0.1.2") unique per material
// and lexically sortable to reconstruct document order.
type OutlineNode struct {
	ID         string   `db:"id" json:"id"`
	MaterialID string   `db:"material_id" json:"material_id"`
	ParentID   *string  `db:"parent_id" json:"parent_id,omitempty"`
	NodeType   string   `db:"node_type" json:"node_type"`
	Title      string   `db:"title" json:"title"`
	Summary    string   `db:"summary" json:"summary,omitempty"`
	Keywords   []string `db:"keywords" json:"keywords,omitempty"`
	OrderIndex int      `db:"order_index" json:"order_index"`
	Depth      int      `db:"depth" json:"depth"`
	Path       string   `db:"path" json:"path"`
	PageStart  int      `db:"page_start" json:"page_start,omitempty"`
	LineStart  int      `db:"line_start" json:"line_start,omitempty"`
}

// Material job statuses.
const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobSucceeded = "SUCCEEDED"
	JobFailed    = "FAILED"
)

// JobTypeIngest is the job type for a full upload-completion pipeline run.
const JobTypeIngest = "INGEST"

// MaterialJob is one asynchronous pipeline run, mutated at step boundaries
// and terminal on success or failure.
type MaterialJob struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	MaterialID string    `db:"material_id" json:"material_id,omitempty"`
	JobType    string    `db:"job_type" json:"job_type"`
	Status     string    `db:"status" json:"status"`
	Progress   int       `db:"progress" json:"progress"`
	ErrorJSON  string    `db:"error_json" json:"error_json,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PageFragment is one page-scoped piece of extracted text.
// PageNumber is 1-based; 0 means the source has no page structure.
type PageFragment struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"`
}

// DocumentAnalysis is the analysis provider's view of a document.
type DocumentAnalysis struct {
	Title   string        `json:"title"`
	Summary string        `json:"summary"`
	Outline []OutlineItem `json:"outline"`
}

// OutlineItem is one node of the analyzer's outline tree, before flattening.
type OutlineItem struct {
	Title     string        `json:"title"`
	Summary   string        `json:"summary"`
	NodeType  string        `json:"node_type"`
	Keywords  []string      `json:"keywords"`
	PageStart int           `json:"page_start"`
	LineStart int           `json:"line_start"`
	Children  []OutlineItem `json:"children"`
}

// ChunkMetadata is the typed projection of a chunk's vector-index metadata.
// Construct it from raw index metadata only via vectorindex.ParseChunkMetadata.
type ChunkMetadata struct {
	UserID           string `json:"user_id"`
	MaterialID       string `json:"material_id"`
	MaterialTitle    string `json:"material_title"`
	OriginalFilename string `json:"original_filename,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	Source           string `json:"source"`
	ChunkIndex       int    `json:"chunk_index"`
	PageNumber       int    `json:"page_number,omitempty"`
}

// ChunkDocument is one embedded unit as stored in the vector index.
type ChunkDocument struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// SearchHit is one raw nearest-neighbour result from the vector index.
// Metadata is the untyped bag as stored; callers must validate it.
type SearchHit struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Distance   float64        `json:"distance"`
}

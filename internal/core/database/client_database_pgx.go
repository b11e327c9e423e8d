package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"studyvault/internal/config"
	"studyvault/internal/core"
	"studyvault/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the underlying pool for components that share it (vector index).
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Upload sessions

func (c *DatabaseClient) CreateUploadSession(ctx context.Context, sess *models.UploadSession) error {
	if sess == nil {
		return errors.New("nil upload session")
	}
	const q = `
		INSERT INTO upload_sessions
			(id, user_id, status, object_key, original_filename, mime_type, file_size, expires_at, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		sess.ID, sess.UserID, sess.Status, sess.ObjectKey,
		sess.OriginalFilename, sess.MimeType, sess.FileSize, sess.ExpiresAt)
	return err
}

func (c *DatabaseClient) GetUploadSession(ctx context.Context, userID, id string) (*models.UploadSession, error) {
	const q = `
		SELECT id, user_id, status, object_key, COALESCE(final_object_key, ''),
		       original_filename, mime_type, file_size, COALESCE(etag, ''),
		       expires_at, COALESCE(material_id, ''), COALESCE(error_message, ''),
		       completed_at, created_at, updated_at
		FROM upload_sessions
		WHERE id = $1 AND user_id = $2
	`
	var s models.UploadSession
	err := c.db.QueryRowContext(ctx, q, id, userID).Scan(
		&s.ID, &s.UserID, &s.Status, &s.ObjectKey, &s.FinalObjectKey,
		&s.OriginalFilename, &s.MimeType, &s.FileSize, &s.ETag,
		&s.ExpiresAt, &s.MaterialID, &s.ErrorMessage,
		&s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *DatabaseClient) UpdateUploadSessionStatus(ctx context.Context, id, status, errorMessage string) error {
	const q = `
		UPDATE upload_sessions
		SET status = $2, error_message = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, errorMessage)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("upload session not found: %s", id)
	}
	return nil
}

// RecordUploadSessionETag stores the entity tag observed at verification time.
func (c *DatabaseClient) RecordUploadSessionETag(ctx context.Context, id, etag string) error {
	const q = `
		UPDATE upload_sessions
		SET etag = NULLIF($2, ''), updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, etag)
	return err
}

// Materials

const materialColumns = `
	id, user_id, source_type, title, original_filename, storage_provider, storage_key,
	mime_type, file_size, checksum, processing_status, processed_at,
	COALESCE(summary, ''), COALESCE(error_message, ''), created_at, updated_at, deleted_at`

func scanMaterial(row interface{ Scan(...any) error }) (*models.Material, error) {
	var m models.Material
	err := row.Scan(
		&m.ID, &m.UserID, &m.SourceType, &m.Title, &m.OriginalFilename, &m.StorageProvider, &m.StorageKey,
		&m.MimeType, &m.FileSize, &m.Checksum, &m.ProcessingStatus, &m.ProcessedAt,
		&m.Summary, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *DatabaseClient) GetMaterialByID(ctx context.Context, userID, id string) (*models.Material, error) {
	q := `SELECT ` + materialColumns + `
		FROM materials
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	m, err := scanMaterial(c.db.QueryRowContext(ctx, q, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *DatabaseClient) GetMaterialByChecksum(ctx context.Context, userID, checksum string) (*models.Material, error) {
	q := `SELECT ` + materialColumns + `
		FROM materials
		WHERE user_id = $1 AND checksum = $2 AND deleted_at IS NULL`
	m, err := scanMaterial(c.db.QueryRowContext(ctx, q, userID, checksum))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *DatabaseClient) ListMaterialsByUser(ctx context.Context, userID string) ([]models.Material, error) {
	q := `SELECT ` + materialColumns + `
		FROM materials
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeleteMaterialHard removes the row entirely; outline rows cascade.
// Used only by compensating cleanup on a failed ingestion.
func (c *DatabaseClient) DeleteMaterialHard(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, id)
	return err
}

func (c *DatabaseClient) SoftDeleteMaterial(ctx context.Context, userID, id string) error {
	const q = `
		UPDATE materials
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
	`
	res, err := c.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.Errf(core.CodeNotFound, "material not found: %s", id)
	}
	return nil
}

// FinalizeIngestion commits material insert, wholesale outline replacement and
// session completion in one transaction.
func (c *DatabaseClient) FinalizeIngestion(ctx context.Context, mat *models.Material, nodes []models.OutlineNode, sessionID string) error {
	if mat == nil {
		return errors.New("nil material")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const insertMat = `
		INSERT INTO materials
			(id, user_id, source_type, title, original_filename, storage_provider, storage_key,
			 mime_type, file_size, checksum, processing_status, processed_at, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''), now(), now())
	`
	if _, err := tx.ExecContext(ctx, insertMat,
		mat.ID, mat.UserID, mat.SourceType, mat.Title, mat.OriginalFilename, mat.StorageProvider, mat.StorageKey,
		mat.MimeType, mat.FileSize, mat.Checksum, mat.ProcessingStatus, mat.ProcessedAt, mat.Summary,
	); err != nil {
		return fmt.Errorf("insert material: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outline_nodes WHERE material_id = $1`, mat.ID); err != nil {
		return fmt.Errorf("clear outline: %w", err)
	}

	const insertNode = `
		INSERT INTO outline_nodes
			(id, material_id, parent_id, node_type, title, summary, keywords,
			 order_index, depth, path, page_start, line_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
	`
	stmt, err := tx.PrepareContext(ctx, insertNode)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range nodes {
		n := &nodes[i]
		keywords, err := json.Marshal(n.Keywords)
		if err != nil {
			return fmt.Errorf("marshal keywords: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			n.ID, n.MaterialID, n.ParentID, n.NodeType, n.Title, n.Summary, keywords,
			n.OrderIndex, n.Depth, n.Path, n.PageStart, n.LineStart,
		); err != nil {
			return fmt.Errorf("insert outline node %s: %w", n.Path, err)
		}
	}

	const completeSession = `
		UPDATE upload_sessions
		SET status = $2, material_id = $3, final_object_key = $4,
		    completed_at = now(), updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, completeSession,
		sessionID, models.UploadCompleted, mat.ID, mat.StorageKey,
	); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}

	return tx.Commit()
}

func (c *DatabaseClient) ListOutlineNodes(ctx context.Context, materialID string) ([]models.OutlineNode, error) {
	const q = `
		SELECT id, material_id, parent_id, node_type, title, COALESCE(summary, ''), keywords,
		       order_index, depth, path, page_start, line_start
		FROM outline_nodes
		WHERE material_id = $1
		ORDER BY path ASC
	`
	rows, err := c.db.QueryContext(ctx, q, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OutlineNode
	for rows.Next() {
		var n models.OutlineNode
		var keywords []byte
		if err := rows.Scan(
			&n.ID, &n.MaterialID, &n.ParentID, &n.NodeType, &n.Title, &n.Summary, &keywords,
			&n.OrderIndex, &n.Depth, &n.Path, &n.PageStart, &n.LineStart,
		); err != nil {
			return nil, err
		}
		if len(keywords) > 0 {
			if err := json.Unmarshal(keywords, &n.Keywords); err != nil {
				return nil, fmt.Errorf("decode keywords: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Material jobs

func (c *DatabaseClient) CreateMaterialJob(ctx context.Context, job *models.MaterialJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO material_jobs (id, user_id, material_id, job_type, status, progress, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, job.ID, job.UserID, job.MaterialID, job.JobType, job.Status, job.Progress)
	return err
}

func (c *DatabaseClient) GetMaterialJob(ctx context.Context, userID, id string) (*models.MaterialJob, error) {
	const q = `
		SELECT id, user_id, COALESCE(material_id, ''), job_type, status, progress,
		       COALESCE(error_json, ''), created_at, updated_at
		FROM material_jobs
		WHERE id = $1 AND user_id = $2
	`
	var j models.MaterialJob
	err := c.db.QueryRowContext(ctx, q, id, userID).Scan(
		&j.ID, &j.UserID, &j.MaterialID, &j.JobType, &j.Status, &j.Progress,
		&j.ErrorJSON, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *DatabaseClient) UpdateMaterialJobProgress(ctx context.Context, id, status string, progress int) error {
	const q = `
		UPDATE material_jobs
		SET status = $2, progress = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, status, progress)
	return err
}

func (c *DatabaseClient) FinishMaterialJob(ctx context.Context, id, status string, progress int, errorJSON, materialID string) error {
	const q = `
		UPDATE material_jobs
		SET status = $2, progress = GREATEST(progress, $3), error_json = NULLIF($4, ''),
		    material_id = COALESCE(NULLIF($5, ''), material_id), updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, status, progress, errorJSON, materialID)
	return err
}

var _ core.DbClient = (*DatabaseClient)(nil)

package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// Manager owns the similarity-searchable chunk collection, backed by a
// pgvector table shared with the metadata store. Every query carries a
// user_id predicate; material filters come on top of that.
type Manager struct {
	db        *sql.DB
	embedder  core.EmbeddingProvider
	batchSize int
}

func NewManager(db *sql.DB, embedder core.EmbeddingProvider, batchSize int) *Manager {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Manager{db: db, embedder: embedder, batchSize: batchSize}
}

// UpsertChunks embeds the documents in batches and writes them in one
// transaction per batch.
func (m *Manager) UpsertChunks(ctx context.Context, docs []models.ChunkDocument) error {
	for start := 0; start < len(docs); start += m.batchSize {
		end := start + m.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := m.upsertBatch(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) upsertBatch(ctx context.Context, batch []models.ChunkDocument) error {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Content
	}

	vecs, err := m.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
	}

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
		INSERT INTO material_chunks
			(id, user_id, material_id, chunk_index, content, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range batch {
		doc := &batch[i]
		metadata, err := json.Marshal(MetadataMap(doc.Metadata))
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			doc.ID, doc.Metadata.UserID, doc.Metadata.MaterialID, doc.Metadata.ChunkIndex,
			doc.Content, pgvector.NewVector(vecs[i]), metadata,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", doc.Metadata.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

// DeleteMaterialChunks removes every chunk for one (user, material) pair.
// Idempotent; the precursor of every re-ingestion.
func (m *Manager) DeleteMaterialChunks(ctx context.Context, userID, materialID string) error {
	_, err := m.db.ExecContext(ctx,
		`DELETE FROM material_chunks WHERE user_id = $1 AND material_id = $2`,
		userID, materialID)
	if err != nil {
		return fmt.Errorf("delete material chunks: %w", err)
	}
	return nil
}

// Search embeds the query and returns the top-k nearest chunks for the user,
// optionally restricted to an allow-list of material ids.
func (m *Manager) Search(ctx context.Context, userID, query string, topK int, materialIDs []string) ([]models.SearchHit, error) {
	if topK <= 0 {
		topK = 8
	}

	vecs, err := m.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	qvec := pgvector.NewVector(vecs[0])

	args := []any{userID, qvec, topK}
	filterSQL := ""
	if len(materialIDs) > 0 {
		filterSQL = " AND material_id = ANY($4)"
		args = append(args, materialIDs)
	}

	q := `
		SELECT id, content, metadata, embedding <=> $2 AS distance
		FROM material_chunks
		WHERE user_id = $1 AND embedding IS NOT NULL` + filterSQL + `
		ORDER BY embedding <=> $2
		LIMIT $3`

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	out := make([]models.SearchHit, 0, topK)
	for rows.Next() {
		var (
			hit      models.SearchHit
			metadata []byte
		)
		if err := rows.Scan(&hit.DocumentID, &hit.Content, &metadata, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		if err := json.Unmarshal(metadata, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("decode hit metadata: %w", err)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

// FetchChunkRange returns the chunks whose index falls within [start, end]
// inclusive, ascending, for reconstructing a contiguous passage.
func (m *Manager) FetchChunkRange(ctx context.Context, userID, materialID string, start, end int) ([]models.ChunkDocument, error) {
	const q = `
		SELECT id, content, metadata
		FROM material_chunks
		WHERE user_id = $1 AND material_id = $2 AND chunk_index BETWEEN $3 AND $4
		ORDER BY chunk_index ASC
	`
	rows, err := m.db.QueryContext(ctx, q, userID, materialID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch chunk range: %w", err)
	}
	defer rows.Close()

	var out []models.ChunkDocument
	for rows.Next() {
		var (
			doc      models.ChunkDocument
			metadata []byte
			raw      map[string]any
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(metadata, &raw); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
		meta, err := ParseChunkMetadata(raw)
		if err != nil {
			return nil, err
		}
		doc.Metadata = meta
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountChunks returns indexed-chunk counts per requested material. Materials
// with no chunks are absent from the result; callers fill in zeros.
func (m *Manager) CountChunks(ctx context.Context, userID string, materialIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(materialIDs))
	if len(materialIDs) == 0 {
		return counts, nil
	}

	const q = `
		SELECT material_id, COUNT(*)
		FROM material_chunks
		WHERE user_id = $1 AND material_id = ANY($2)
		GROUP BY material_id
	`
	rows, err := m.db.QueryContext(ctx, q, userID, materialIDs)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan chunk count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

var _ core.VectorIndex = (*Manager)(nil)

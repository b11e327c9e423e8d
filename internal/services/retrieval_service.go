package services

import (
	"context"
	"strings"

	"studyvault/internal/core"
	"studyvault/internal/core/vectorindex"
	"studyvault/internal/models"
)

// minutesPerChunk is the coarse reading-time estimate a chunk contributes.
const minutesPerChunk = 5

// RetrievedChunk is one validated search or range result.
type RetrievedChunk struct {
	DocumentID string               `json:"document_id"`
	Content    string               `json:"content"`
	Metadata   models.ChunkMetadata `json:"metadata"`
	Distance   float64              `json:"distance,omitempty"`
}

// MaterialChunkStats summarizes a material's indexed footprint.
type MaterialChunkStats struct {
	MaterialID       string `json:"material_id"`
	ChunkCount       int    `json:"chunk_count"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// RetrievalService answers similarity and range queries over indexed chunks.
type RetrievalService struct {
	index core.VectorIndex
}

func NewRetrievalService(index core.VectorIndex) *RetrievalService {
	return &RetrievalService{index: index}
}

// SearchChunks runs a similarity query scoped to the user, optionally filtered
// to specific materials. Hits with blank content are dropped silently; hits
// whose metadata fails validation abort the whole query, because drifted
// metadata means the index can no longer be trusted for this user.
func (s *RetrievalService) SearchChunks(ctx context.Context, userID, query string, topK int, materialIDs []string) ([]RetrievedChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.Errf(core.CodeInvalidState, "search query is empty")
	}

	hits, err := s.index.Search(ctx, userID, query, topK, materialIDs)
	if err != nil {
		return nil, err
	}

	out := make([]RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		if strings.TrimSpace(hit.Content) == "" {
			continue
		}
		meta, err := vectorindex.ParseChunkMetadata(hit.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, RetrievedChunk{
			DocumentID: hit.DocumentID,
			Content:    hit.Content,
			Metadata:   meta,
			Distance:   hit.Distance,
		})
	}
	return out, nil
}

// GetChunkRange returns a material's chunks with indexes in [start, end],
// ordered by chunk index.
func (s *RetrievalService) GetChunkRange(ctx context.Context, userID, materialID string, start, end int) ([]RetrievedChunk, error) {
	if start < 0 || end < start {
		return nil, core.Errf(core.CodeInvalidState, "invalid chunk range [%d, %d]", start, end)
	}

	docs, err := s.index.FetchChunkRange(ctx, userID, materialID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]RetrievedChunk, len(docs))
	for i, d := range docs {
		out[i] = RetrievedChunk{
			DocumentID: d.ID,
			Content:    d.Content,
			Metadata:   d.Metadata,
		}
	}
	return out, nil
}

// GetChunkStats returns per-material chunk counts and a reading-time estimate.
// Materials absent from the index report zero rather than disappearing.
func (s *RetrievalService) GetChunkStats(ctx context.Context, userID string, materialIDs []string) ([]MaterialChunkStats, error) {
	counts, err := s.index.CountChunks(ctx, userID, materialIDs)
	if err != nil {
		return nil, err
	}

	out := make([]MaterialChunkStats, len(materialIDs))
	for i, id := range materialIDs {
		n := counts[id]
		out[i] = MaterialChunkStats{
			MaterialID:       id,
			ChunkCount:       n,
			EstimatedMinutes: n * minutesPerChunk,
		}
	}
	return out, nil
}

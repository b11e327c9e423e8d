package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

type stubIndex struct {
	hits   []models.SearchHit
	docs   []models.ChunkDocument
	counts map[string]int
}

func (s *stubIndex) UpsertChunks(context.Context, []models.ChunkDocument) error { return nil }
func (s *stubIndex) DeleteMaterialChunks(context.Context, string, string) error { return nil }
func (s *stubIndex) Search(context.Context, string, string, int, []string) ([]models.SearchHit, error) {
	return s.hits, nil
}
func (s *stubIndex) FetchChunkRange(context.Context, string, string, int, int) ([]models.ChunkDocument, error) {
	return s.docs, nil
}
func (s *stubIndex) CountChunks(context.Context, string, []string) (map[string]int, error) {
	return s.counts, nil
}

func validHitMetadata(materialID string, chunkIndex int) map[string]any {
	return map[string]any{
		"user_id":        "user-1",
		"material_id":    materialID,
		"material_title": "Notes",
		"source":         "material",
		"chunk_index":    float64(chunkIndex),
	}
}

func TestSearchChunksValidatesMetadata(t *testing.T) {
	idx := &stubIndex{hits: []models.SearchHit{
		{DocumentID: "d1", Content: "vectors", Metadata: validHitMetadata("m1", 0), Distance: 0.1},
		{DocumentID: "d2", Content: "matrices", Metadata: validHitMetadata("m1", 1), Distance: 0.2},
	}}
	svc := NewRetrievalService(idx)

	out, err := svc.SearchChunks(context.Background(), "user-1", "linear algebra", 8, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "m1", out[0].Metadata.MaterialID)
	assert.Equal(t, 1, out[1].Metadata.ChunkIndex)
	assert.Equal(t, 0.1, out[0].Distance)
}

func TestSearchChunksSkipsBlankContent(t *testing.T) {
	idx := &stubIndex{hits: []models.SearchHit{
		{DocumentID: "d1", Content: "   ", Metadata: validHitMetadata("m1", 0)},
		{DocumentID: "d2", Content: "kept", Metadata: validHitMetadata("m1", 1)},
	}}
	svc := NewRetrievalService(idx)

	out, err := svc.SearchChunks(context.Background(), "user-1", "query", 8, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "kept", out[0].Content)
}

func TestSearchChunksFailsOnDriftedMetadata(t *testing.T) {
	bad := validHitMetadata("m1", 0)
	bad["chunk_index"] = "zero" // wrong type
	idx := &stubIndex{hits: []models.SearchHit{
		{DocumentID: "d1", Content: "text", Metadata: bad},
	}}
	svc := NewRetrievalService(idx)

	_, err := svc.SearchChunks(context.Background(), "user-1", "query", 8, nil)
	assert.True(t, core.IsCode(err, core.CodeMetadataInvalid))
}

func TestSearchChunksRejectsEmptyQuery(t *testing.T) {
	svc := NewRetrievalService(&stubIndex{})
	_, err := svc.SearchChunks(context.Background(), "user-1", "  \t ", 8, nil)
	assert.True(t, core.IsCode(err, core.CodeInvalidState))
}

func TestGetChunkRangeRejectsInvalidBounds(t *testing.T) {
	svc := NewRetrievalService(&stubIndex{})

	_, err := svc.GetChunkRange(context.Background(), "user-1", "m1", -1, 4)
	assert.True(t, core.IsCode(err, core.CodeInvalidState))

	_, err = svc.GetChunkRange(context.Background(), "user-1", "m1", 5, 2)
	assert.True(t, core.IsCode(err, core.CodeInvalidState))
}

func TestGetChunkStatsZeroFillsAbsentMaterials(t *testing.T) {
	idx := &stubIndex{counts: map[string]int{"m1": 4}}
	svc := NewRetrievalService(idx)

	stats, err := svc.GetChunkStats(context.Background(), "user-1", []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, MaterialChunkStats{MaterialID: "m1", ChunkCount: 4, EstimatedMinutes: 20}, stats[0])
	assert.Equal(t, MaterialChunkStats{MaterialID: "m2", ChunkCount: 0, EstimatedMinutes: 0}, stats[1])
}

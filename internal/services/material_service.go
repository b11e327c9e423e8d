package services

import (
	"context"
	"log"

	"studyvault/internal/core"
	"studyvault/internal/models"
)

// MaterialService exposes a user's ingested materials and their outlines.
type MaterialService struct {
	db      core.DbClient
	storage core.ObjectClient
	index   core.VectorIndex
}

func NewMaterialService(db core.DbClient, storage core.ObjectClient, index core.VectorIndex) *MaterialService {
	return &MaterialService{db: db, storage: storage, index: index}
}

func (s *MaterialService) Get(ctx context.Context, userID, id string) (*models.Material, error) {
	mat, err := s.db.GetMaterialByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if mat == nil {
		return nil, core.Errf(core.CodeNotFound, "material not found: %s", id)
	}
	return mat, nil
}

func (s *MaterialService) ListByUser(ctx context.Context, userID string) ([]models.Material, error) {
	return s.db.ListMaterialsByUser(ctx, userID)
}

// GetOutline returns the material's flattened outline in document order.
func (s *MaterialService) GetOutline(ctx context.Context, userID, id string) ([]models.OutlineNode, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.db.ListOutlineNodes(ctx, id)
}

// Delete soft-deletes the material row, then purges its index entries and the
// stored object best-effort. The row stays as the audit trail; a purge failure
// only logs because the soft delete already hides the material.
func (s *MaterialService) Delete(ctx context.Context, userID, id string) error {
	mat, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.db.SoftDeleteMaterial(ctx, userID, id); err != nil {
		return err
	}

	if err := s.index.DeleteMaterialChunks(ctx, userID, id); err != nil {
		log.Printf("MaterialService: purge index entries for %s failed: %v", id, err)
	}
	if mat.StorageKey != "" {
		if err := s.storage.DeleteFile(ctx, mat.StorageKey); err != nil {
			log.Printf("MaterialService: delete object %s failed: %v", mat.StorageKey, err)
		}
	}
	return nil
}

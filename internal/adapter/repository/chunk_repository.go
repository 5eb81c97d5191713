package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
)

const defaultChunkInsertBatch = 50

// ChunkRepository handles transcript chunk rows
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceChunks deletes the recording's chunks and inserts the new set in
// sub-batches. Both steps share one transaction, so readers never observe
// the recording without chunks.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, userID uuid.UUID, recordingID int64, chunks []*entities.ChunkRecord, batchSize int) ([]uuid.UUID, error) {
	if batchSize <= 0 {
		batchSize = defaultChunkInsertBatch
	}

	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		ids[i] = c.ID
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("recording_id = ? AND user_id = ?", recordingID, userID).
			Delete(&entities.ChunkRecord{}).Error; err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(chunks, batchSize).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

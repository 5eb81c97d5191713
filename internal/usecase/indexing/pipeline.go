// Package indexing turns one call's transcript into embedded, stored chunks.
package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/domain/repositories"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/chunking"
	"github.com/johnquangdev/transcript-indexer/pkg/ai"
)

// enrichmentTimeout bounds the fire-and-forget enrichment trigger
const enrichmentTimeout = 10 * time.Second

// Enricher notifies the downstream metadata enricher about new chunks
type Enricher interface {
	Trigger(ctx context.Context, req entities.EnrichmentRequest) error
}

// Params tunes a single indexing run
type Params struct {
	Chunking        chunking.Options
	EmbedBatchSize  int
	InsertBatchSize int
	// Budget bounds the whole run; zero means no extra deadline.
	Budget time.Duration
}

// Result reports what a run stored
type Result struct {
	ChunksCreated int
	ChunkIDs      []uuid.UUID
}

// Pipeline runs load, chunk, embed and replace for one recording
type Pipeline struct {
	transcripts repositories.TranscriptRepository
	chunks      repositories.ChunkRepository
	embedder    ai.Embedder
	counter     chunking.TokenCounter
	enricher    Enricher
	model       string
	logger      *zap.Logger
}

// NewPipeline creates a pipeline. A nil enricher disables enrichment.
func NewPipeline(
	transcripts repositories.TranscriptRepository,
	chunks repositories.ChunkRepository,
	embedder ai.Embedder,
	counter chunking.TokenCounter,
	enricher Enricher,
	model string,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = chunking.HeuristicCounter{}
	}
	return &Pipeline{
		transcripts: transcripts,
		chunks:      chunks,
		embedder:    embedder,
		counter:     counter,
		enricher:    enricher,
		model:       model,
		logger:      logger,
	}
}

// IndexRecording rebuilds every chunk of a recording. On any error the
// previously stored chunks are left untouched.
func (p *Pipeline) IndexRecording(ctx context.Context, userID uuid.UUID, recordingID int64, params Params) (*Result, error) {
	if params.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Budget)
		defer cancel()
	}

	call, err := p.transcripts.GetCall(ctx, userID, recordingID)
	if err != nil {
		return nil, fmt.Errorf("load call: %w", err)
	}
	if call == nil {
		return nil, entities.ErrCallNotFound
	}

	segments, err := p.transcripts.ListSegments(ctx, userID, recordingID)
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, entities.ErrNoSegments
	}

	category, err := p.transcripts.GetCallCategory(ctx, recordingID)
	if err != nil {
		// Category is optional metadata.
		p.logger.Warn("⚠️ Failed to load call category",
			zap.Int64("recording_id", recordingID),
			zap.Error(err),
		)
		category = ""
	}

	chunker, err := chunking.New(params.Chunking, p.counter)
	if err != nil {
		return nil, err
	}
	chunks := chunker.Chunk(segments)
	if len(chunks) == 0 {
		return nil, entities.ErrNoSegments
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ai.EmbedInBatches(ctx, p.embedder, texts, params.EmbedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	records := buildRecords(call, category, chunks, vectors, time.Now())
	ids, err := p.chunks.ReplaceChunks(ctx, userID, recordingID, records, params.InsertBatchSize)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	p.logger.Info("✅ Recording indexed",
		zap.Int64("recording_id", recordingID),
		zap.Int("chunks", len(ids)),
		zap.String("model", p.model),
	)

	p.triggerEnrichment(userID, recordingID, ids)

	return &Result{ChunksCreated: len(ids), ChunkIDs: ids}, nil
}

func (p *Pipeline) triggerEnrichment(userID uuid.UUID, recordingID int64, ids []uuid.UUID) {
	if p.enricher == nil || len(ids) == 0 {
		return
	}
	req := entities.EnrichmentRequest{
		UserID:      userID,
		RecordingID: recordingID,
		ChunkIDs:    ids,
		RequestedAt: time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), enrichmentTimeout)
		defer cancel()
		if err := p.enricher.Trigger(ctx, req); err != nil {
			p.logger.Warn("⚠️ Enrichment trigger failed",
				zap.Int64("recording_id", recordingID),
				zap.Error(err),
			)
		}
	}()
}

func buildRecords(call *entities.Call, category string, chunks []chunking.Chunk, vectors [][]float32, embeddedAt time.Time) []*entities.ChunkRecord {
	callDate := call.CreatedAt
	title := optional(call.Title)
	cat := optional(category)

	records := make([]*entities.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = &entities.ChunkRecord{
			UserID:         call.UserID,
			RecordingID:    call.RecordingID,
			ChunkIndex:     c.Index,
			ChunkText:      c.Text,
			TokenCount:     c.TokenCount,
			SpeakerName:    optional(c.PrimarySpeaker),
			SpeakerEmail:   optional(c.PrimaryEmail),
			Speakers:       pq.StringArray(c.Speakers),
			TimestampStart: optional(c.StartTimestamp),
			TimestampEnd:   optional(c.EndTimestamp),
			CallDate:       &callDate,
			CallTitle:      title,
			CallCategory:   cat,
			Embedding:      pgvector.NewVector(vectors[i]),
			EmbeddedAt:     embeddedAt,
		}
	}
	return records
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
	embedBatch   = 64
)

// RetrievedChunk pairs a stored chunk with its similarity to a query.
type RetrievedChunk struct {
	Chunk *types.MediaChunk
	Score float64
}

// RetrievalService maintains the embedding index that grounds tutor answers.
// Indexing happens inside the analysis pipeline; Search runs at chat time
// over all chunks belonging to the user's completed materials.
type RetrievalService interface {
	IndexMediaItem(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID, text string) (int, error)
	Search(ctx context.Context, userID uuid.UUID, query string, topK int) ([]RetrievedChunk, error)
}

type retrievalService struct {
	log      *logger.Logger
	chunks   repos.MediaChunkRepo
	embedder LLMClient
}

func NewRetrievalService(log *logger.Logger, chunks repos.MediaChunkRepo, embedder LLMClient) RetrievalService {
	return &retrievalService{
		log:      log.With("service", "RetrievalService"),
		chunks:   chunks,
		embedder: embedder,
	}
}

// IndexMediaItem replaces the item's chunks with a fresh chunking of text and
// embeds each chunk. Returns the number of chunks written.
func (s *retrievalService) IndexMediaItem(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID, text string) (int, error) {
	pieces := chunkText(text, chunkSize, chunkOverlap)
	if len(pieces) == 0 {
		return 0, nil
	}

	if err := s.chunks.DeleteByMediaItemIDs(ctx, tx, []uuid.UUID{mediaItemID}); err != nil {
		return 0, fmt.Errorf("clear old chunks: %w", err)
	}

	rows := make([]*types.MediaChunk, len(pieces))
	for i, piece := range pieces {
		rows[i] = &types.MediaChunk{
			ID:          uuid.New(),
			MediaItemID: mediaItemID,
			Index:       i,
			Text:        piece,
		}
	}
	if _, err := s.chunks.Create(ctx, tx, rows); err != nil {
		return 0, fmt.Errorf("create chunks: %w", err)
	}

	for start := 0; start < len(rows); start += embedBatch {
		end := start + embedBatch
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		inputs := make([]string, len(batch))
		for i, row := range batch {
			inputs[i] = row.Text
		}
		vectors, err := s.embedder.Embed(ctx, inputs)
		if err != nil {
			return 0, fmt.Errorf("embed chunks %d..%d: %w", start, end-1, err)
		}
		for i, row := range batch {
			if err := s.chunks.UpdateEmbedding(ctx, tx, row.ID, mustJSON(vectors[i])); err != nil {
				return 0, fmt.Errorf("store embedding: %w", err)
			}
		}
	}

	return len(rows), nil
}

func (s *retrievalService) Search(ctx context.Context, userID uuid.UUID, query string, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 {
		topK = 5
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vectors[0]

	chunks, err := s.chunks.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	var candidates []*types.MediaChunk
	var scores []float64
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(chunk.Embedding, &vec); err != nil {
			s.log.Warn("skipping chunk with bad embedding", "chunk_id", chunk.ID, "error", err.Error())
			continue
		}
		candidates = append(candidates, chunk)
		scores = append(scores, cosineSimilarity(queryVec, vec))
	}

	out := make([]RetrievedChunk, 0, topK)
	for _, idx := range topKIndices(scores, topK) {
		out = append(out, RetrievedChunk{Chunk: candidates[idx], Score: scores[idx]})
	}
	return out, nil
}

package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/pkg/provider/embeddings"
)

// maxChunkLen is the chunk size ceiling in bytes. Transcripts are split on
// paragraph boundaries and paragraphs are merged up to this limit before
// embedding.
const maxChunkLen = 1200

// schema returns the transcript chunks DDL with the embedding dimension
// substituted. The dimension is baked into the column type, so changing the
// embeddings model after the first migration requires a manual schema
// update.
func schema(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS transcript_chunks (
    id               BIGSERIAL    PRIMARY KEY,
    transcription_id TEXT         NOT NULL,
    user_id          TEXT         NOT NULL,
    seq              INT          NOT NULL,
    title            TEXT         NOT NULL DEFAULT '',
    content          TEXT         NOT NULL,
    embedding        vector(%d),
    model            TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transcript_chunks_transcription_id
    ON transcript_chunks (transcription_id);

CREATE INDEX IF NOT EXISTS idx_transcript_chunks_user_id
    ON transcript_chunks (user_id);

CREATE INDEX IF NOT EXISTS idx_transcript_chunks_embedding
    ON transcript_chunks USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// SemanticIndex stores embedded transcript chunks in a PostgreSQL table with
// a pgvector HNSW index and ranks queries by cosine distance.
//
// All methods are safe for concurrent use.
type SemanticIndex struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// Compile-time interface check.
var _ Index = (*SemanticIndex)(nil)

// NewSemanticIndex creates a SemanticIndex on the given pool.
func NewSemanticIndex(pool *pgxpool.Pool, embedder embeddings.Provider) *SemanticIndex {
	return &SemanticIndex{pool: pool, embedder: embedder}
}

// Migrate creates or ensures the chunks table and its indexes exist. The
// vector dimension is taken from the configured embeddings provider. It is
// idempotent and safe to call on every application start.
func (s *SemanticIndex) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema(s.embedder.Dimensions())); err != nil {
		return fmt.Errorf("semantic index: migrate: %w", err)
	}
	return nil
}

// Index implements [Index]. The transcript is split into paragraph-aligned
// chunks, embedded in one batch, and written in a transaction that first
// drops any chunks from a previous indexing of the same record.
func (s *SemanticIndex) Index(ctx context.Context, rec store.Transcription) error {
	chunks := splitChunks(rec.TranscriptionText)
	if len(chunks) == 0 {
		return s.Remove(ctx, rec.ID)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("semantic index: embed: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("semantic index: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM transcript_chunks WHERE transcription_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("semantic index: replace chunks: %w", err)
	}

	const insert = `
		INSERT INTO transcript_chunks
		    (transcription_id, user_id, seq, title, content, embedding, model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, chunk := range chunks {
		_, err := tx.Exec(ctx, insert,
			rec.ID, rec.UserID, i, rec.Title, chunk,
			pgvector.NewVector(vectors[i]), s.embedder.ModelID())
		if err != nil {
			return fmt.Errorf("semantic index: insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("semantic index: commit: %w", err)
	}
	return nil
}

// Remove implements [Index].
func (s *SemanticIndex) Remove(ctx context.Context, transcriptionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM transcript_chunks WHERE transcription_id = $1`, transcriptionID)
	if err != nil {
		return fmt.Errorf("semantic index: remove: %w", err)
	}
	return nil
}

// Search implements [Index]. The query is embedded and chunks are ranked by
// ascending cosine distance, keeping only the best chunk per record.
func (s *SemanticIndex) Search(ctx context.Context, userID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic index: embed query: %w", err)
	}

	const q = `
		SELECT DISTINCT ON (transcription_id)
		       transcription_id, title, content,
		       embedding <=> $1 AS distance
		FROM   transcript_chunks
		WHERE  user_id = $2
		ORDER  BY transcription_id, distance
		LIMIT  $3`

	// DISTINCT ON collapses to one chunk per record but loses the global
	// ordering, so over-fetch and re-sort below.
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), userID, topK*4)
	if err != nil {
		return nil, fmt.Errorf("semantic index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			r        Result
			distance float64
		)
		if err := row.Scan(&r.TranscriptionID, &r.Title, &r.Snippet, &distance); err != nil {
			return Result{}, err
		}
		r.Score = 1 - distance
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("semantic index: scan rows: %w", err)
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// splitChunks splits a transcript into embedding-sized chunks. Paragraphs
// (blank-line separated) are merged greedily up to maxChunkLen; a single
// oversized paragraph is hard-split at rune boundaries.
func splitChunks(text string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if c := strings.TrimSpace(current.String()); c != "" {
			chunks = append(chunks, c)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChunkLen {
			flush()
		}
		if len(para) > maxChunkLen {
			flush()
			for len(para) > maxChunkLen {
				cut := maxChunkLen
				for cut > 0 && !utf8.RuneStart(para[cut]) {
					cut--
				}
				if cut == 0 {
					// No rune start within the window (the bytes are not
					// valid UTF-8). Split at the ceiling so the loop always
					// consumes input.
					cut = maxChunkLen
				}
				chunks = append(chunks, para[:cut])
				para = para[cut:]
			}
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return chunks
}

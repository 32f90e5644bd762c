// Package search provides transcript search for the archive views.
//
// Two implementations exist: [SemanticIndex] embeds transcript chunks and
// ranks by cosine distance in a pgvector column, and [LexicalIndex] is a
// dependency-light fallback that fuzzy-matches titles and descriptions when
// no embeddings provider is configured.
package search

import (
	"context"
	"sort"

	"github.com/voxnote/voxnote/internal/store"
)

// Result is one search hit.
type Result struct {
	// TranscriptionID identifies the matching record.
	TranscriptionID string `json:"transcription_id"`

	// Title is the record's title at indexing (semantic) or query
	// (lexical) time.
	Title string `json:"title"`

	// Snippet is the matching chunk for semantic hits, empty for lexical
	// hits.
	Snippet string `json:"snippet,omitempty"`

	// Score is higher-is-better. Semantic scores are 1 - cosine distance;
	// lexical scores are Jaro-Winkler similarities in [0, 1].
	Score float64 `json:"score"`
}

// Index indexes completed transcriptions and answers queries scoped to one
// owner. Implementations must be safe for concurrent use.
type Index interface {
	// Index makes rec findable. Re-indexing the same record replaces its
	// previous entries.
	Index(ctx context.Context, rec store.Transcription) error

	// Remove drops all entries for the record. Removing an unknown id is
	// not an error.
	Remove(ctx context.Context, transcriptionID string) error

	// Search returns up to topK hits for the user's records, best first.
	Search(ctx context.Context, userID, query string, topK int) ([]Result, error)
}

// sortByScore orders results best first, with the id as a stable tiebreak.
func sortByScore(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].TranscriptionID < results[j].TranscriptionID
	})
}

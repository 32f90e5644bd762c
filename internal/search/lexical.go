package search

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/voxnote/voxnote/internal/store"
)

// defaultLexicalThreshold is the minimum Jaro-Winkler similarity for a
// lexical hit. Below this, matches are mostly noise.
const defaultLexicalThreshold = 0.72

// LexicalIndex answers queries by fuzzy-matching titles, descriptions, and
// tags of the owner's stored records. It keeps no state of its own, so Index
// and Remove are no-ops; every Search reads the record store directly.
//
// It serves deployments without an embeddings provider.
type LexicalIndex struct {
	records   store.RecordStore
	threshold float64
}

// Compile-time interface check.
var _ Index = (*LexicalIndex)(nil)

// NewLexicalIndex creates a LexicalIndex over the given record store.
func NewLexicalIndex(records store.RecordStore) *LexicalIndex {
	return &LexicalIndex{records: records, threshold: defaultLexicalThreshold}
}

// Index implements [Index]. The record store is the source of truth, so
// there is nothing to do.
func (l *LexicalIndex) Index(ctx context.Context, rec store.Transcription) error {
	return nil
}

// Remove implements [Index].
func (l *LexicalIndex) Remove(ctx context.Context, transcriptionID string) error {
	return nil
}

// Search implements [Index].
func (l *LexicalIndex) Search(ctx context.Context, userID, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	recs, err := l.records.ListByOwner(ctx, userID, store.ListOptions{})
	if err != nil {
		return nil, err
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTokens := strings.Fields(queryLower)

	results := []Result{}
	for _, rec := range recs {
		score := l.score(queryLower, queryTokens, rec)
		if score < l.threshold {
			continue
		}
		results = append(results, Result{
			TranscriptionID: rec.ID,
			Title:           rec.Title,
			Score:           score,
		})
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// score computes the best Jaro-Winkler similarity between the query and the
// record. Substring containment in the title or a tag counts as a full
// match; otherwise the best of full-title and pairwise token comparisons
// wins.
func (l *LexicalIndex) score(queryLower string, queryTokens []string, rec store.Transcription) float64 {
	titleLower := strings.ToLower(rec.Title)
	if queryLower != "" && strings.Contains(titleLower, queryLower) {
		return 1
	}
	for _, tag := range rec.Tags {
		if strings.EqualFold(tag, queryLower) {
			return 1
		}
	}

	score := matchr.JaroWinkler(queryLower, titleLower, false)

	fieldTokens := strings.Fields(titleLower)
	fieldTokens = append(fieldTokens, strings.Fields(strings.ToLower(rec.Description))...)
	for _, tag := range rec.Tags {
		fieldTokens = append(fieldTokens, strings.ToLower(tag))
	}
	for _, qt := range queryTokens {
		for _, ft := range fieldTokens {
			if s := matchr.JaroWinkler(qt, ft, false); s > score {
				score = s
			}
		}
	}
	return score
}

package search_test

import (
	"context"
	"testing"

	"github.com/voxnote/voxnote/internal/search"
	"github.com/voxnote/voxnote/internal/store"
)

func seedTitled(t *testing.T, ms *store.MemStore, userID, title string, tags ...string) store.Transcription {
	t.Helper()
	rec, err := ms.Create(context.Background(), store.Transcription{
		UserID:   userID,
		FileName: "m.wav",
		Title:    title,
		Tags:     tags,
	})
	if err != nil {
		t.Fatalf("seed %q: %v", title, err)
	}
	return rec
}

func TestLexicalSearch_SubstringInTitleIsFullMatch(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	want := seedTitled(t, ms, "u1", "Quarterly planning meeting")
	seedTitled(t, ms, "u1", "Coffee chat")

	idx := search.NewLexicalIndex(ms)
	results, err := idx.Search(context.Background(), "u1", "planning", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].TranscriptionID != want.ID {
		t.Errorf("top hit = %s, want %s", results[0].TranscriptionID, want.ID)
	}
	if results[0].Score != 1 {
		t.Errorf("substring match score = %v, want 1", results[0].Score)
	}
	if results[0].Title != "Quarterly planning meeting" {
		t.Errorf("Title = %q", results[0].Title)
	}
}

func TestLexicalSearch_ExactTagIsFullMatch(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	want := seedTitled(t, ms, "u1", "Untitled recording", "Standup")

	idx := search.NewLexicalIndex(ms)
	results, err := idx.Search(context.Background(), "u1", "standup", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].TranscriptionID != want.ID || results[0].Score != 1 {
		t.Fatalf("results = %+v, want single full-score tag match", results)
	}
}

func TestLexicalSearch_FuzzyTypoStillMatches(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	want := seedTitled(t, ms, "u1", "Retrospective")

	idx := search.NewLexicalIndex(ms)
	results, err := idx.Search(context.Background(), "u1", "retrospektive", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].TranscriptionID != want.ID {
		t.Fatalf("results = %+v, want fuzzy match on %s", results, want.ID)
	}
	if results[0].Score >= 1 {
		t.Errorf("fuzzy score = %v, want < 1", results[0].Score)
	}
}

func TestLexicalSearch_NoiseBelowThresholdDropped(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedTitled(t, ms, "u1", "Budget review")

	idx := search.NewLexicalIndex(ms)
	results, err := idx.Search(context.Background(), "u1", "zzzxqj", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}

func TestLexicalSearch_ScopedToOwner(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	seedTitled(t, ms, "u1", "Planning meeting")
	seedTitled(t, ms, "u2", "Planning meeting")

	idx := search.NewLexicalIndex(ms)
	results, err := idx.Search(context.Background(), "u1", "planning", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len = %d, want 1 (other user's records excluded)", len(results))
	}
}

func TestLexicalSearch_TopKTruncates(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	for range 5 {
		seedTitled(t, ms, "u1", "Planning meeting")
	}

	idx := search.NewLexicalIndex(ms)
	results, err := idx.Search(context.Background(), "u1", "planning", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("len = %d, want 3", len(results))
	}

	results, err = idx.Search(context.Background(), "u1", "planning", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("topK 0: len = %d, want 0", len(results))
	}
}

func TestLexicalIndexAndRemove_AreNoops(t *testing.T) {
	t.Parallel()
	ms := store.NewMemStore()
	idx := search.NewLexicalIndex(ms)

	if err := idx.Index(context.Background(), store.Transcription{ID: "t1"}); err != nil {
		t.Errorf("Index: %v", err)
	}
	if err := idx.Remove(context.Background(), "t1"); err != nil {
		t.Errorf("Remove: %v", err)
	}
}

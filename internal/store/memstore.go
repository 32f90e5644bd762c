package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ RecordStore = (*MemStore)(nil)
	_ TagStore    = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory implementation of [RecordStore] and
// [TagStore]. It is suitable for tests and single-process use.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Transcription
	tags    map[string]Tag

	// Now is the clock used for CreatedAt assignment. Overridable in tests;
	// defaults to time.Now.
	Now func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]Transcription),
		tags:    make(map[string]Tag),
		Now:     time.Now,
	}
}

// Create implements [RecordStore.Create].
func (s *MemStore) Create(ctx context.Context, t Transcription) (Transcription, error) {
	id, err := generateID()
	if err != nil {
		return Transcription{}, fmt.Errorf("store: generate id: %w", err)
	}
	t.ID = id
	t.CreatedAt = s.Now()
	if t.Title == "" {
		t.Title = t.FileName
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	t.Tags = slices.Clone(t.Tags)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[t.ID] = t
	return t, nil
}

// Get implements [RecordStore.Get].
func (s *MemStore) Get(ctx context.Context, id string) (Transcription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.records[id]
	if !ok {
		return Transcription{}, ErrNotFound
	}
	t.Tags = slices.Clone(t.Tags)
	return t, nil
}

// Update implements [RecordStore.Update].
func (s *MemStore) Update(ctx context.Context, id string, patch Patch) (Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.records[id]
	if !ok {
		return Transcription{}, ErrNotFound
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Tags != nil {
		t.Tags = slices.Clone(*patch.Tags)
	}
	if patch.TranscriptionText != nil {
		t.TranscriptionText = *patch.TranscriptionText
	}
	if patch.Summary != nil {
		t.Summary = *patch.Summary
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}

	s.records[id] = t
	t.Tags = slices.Clone(t.Tags)
	return t, nil
}

// Delete implements [RecordStore.Delete].
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// ListByOwner implements [RecordStore.ListByOwner].
func (s *MemStore) ListByOwner(ctx context.Context, userID string, opts ListOptions) ([]Transcription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Transcription
	for _, t := range s.records {
		if t.UserID != userID {
			continue
		}
		if !opts.Since.IsZero() && t.CreatedAt.Before(opts.Since) {
			continue
		}
		t.Tags = slices.Clone(t.Tags)
		result = append(result, t)
	}

	slices.SortFunc(result, func(a, b Transcription) int {
		if opts.Ascending {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}

// CreateTag implements [TagStore.CreateTag].
func (s *MemStore) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tags {
		if existing.Name == tag.Name {
			return Tag{}, ErrDuplicateTag
		}
	}

	id, err := generateID()
	if err != nil {
		return Tag{}, fmt.Errorf("store: generate id: %w", err)
	}
	tag.ID = id
	s.tags[tag.ID] = tag
	return tag, nil
}

// ListTags implements [TagStore.ListTags].
func (s *MemStore) ListTags(ctx context.Context) ([]Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		tags = append(tags, t)
	}
	slices.SortFunc(tags, func(a, b Tag) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return tags, nil
}

// UpdateTag implements [TagStore.UpdateTag].
func (s *MemStore) UpdateTag(ctx context.Context, id string, tag Tag) (Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[id]; !ok {
		return Tag{}, ErrNotFound
	}
	for otherID, existing := range s.tags {
		if otherID != id && existing.Name == tag.Name {
			return Tag{}, ErrDuplicateTag
		}
	}
	tag.ID = id
	s.tags[id] = tag
	return tag, nil
}

// DeleteTag implements [TagStore.DeleteTag].
func (s *MemStore) DeleteTag(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[id]; !ok {
		return ErrNotFound
	}
	delete(s.tags, id)
	return nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

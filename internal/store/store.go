// Package store defines the Transcription and Tag records and the
// RecordStore interface that isolates the rest of the system from the
// shape of the backing relational store.
//
// Two implementations are provided: [PostgresStore] for production and
// [MemStore] for tests and single-process use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups and updates targeting a record that
// does not exist (or is owned by a different user).
var ErrNotFound = errors.New("store: record not found")

// ErrDuplicateTag is returned when creating a tag whose name already exists.
// Tag names are unique and case-sensitive.
var ErrDuplicateTag = errors.New("store: tag name already exists")

// Status is the lifecycle state of a Transcription record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid reports whether s is a recognised status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Transcription is the central entity: one transcribed upload.
//
// Tags reference Tag records by name. The reference is soft — deleting or
// renaming a Tag does not rewrite existing Transcriptions, and dangling
// names are tolerated.
type Transcription struct {
	// ID is assigned by the store on Create.
	ID string

	// UserID is the owner. Set by the caller, immutable afterwards.
	UserID string

	FileName string

	// Language is an ISO-ish code ("fr", "en", …) or "auto".
	Language string

	Status Status

	// Title defaults from the file name when empty at Create time.
	Title       string
	Description string
	Tags        []string

	// DurationSeconds is the quota-chargeable unit. Never negative.
	DurationSeconds int64

	// TranscriptionText is the markdown-formatted transcript. Non-empty
	// whenever Status is StatusCompleted.
	TranscriptionText string

	// Summary is generated on demand and has a lifecycle independent of
	// TranscriptionText.
	Summary string

	// CreatedAt is assigned by the store on Create and immutable.
	CreatedAt time.Time
}

// Tag is a user-defined label. Names are unique and case-sensitive.
type Tag struct {
	ID          string
	Name        string
	Color       string
	Description string
}

// Patch describes a partial update to a Transcription. Nil fields are left
// unchanged.
type Patch struct {
	Title             *string
	Description       *string
	Tags              *[]string
	TranscriptionText *string
	Summary           *string
	Status            *Status
}

// ListOptions filters and orders ListByOwner results.
type ListOptions struct {
	// Since, when non-zero, restricts results to records with
	// CreatedAt >= Since.
	Since time.Time

	// Ascending orders by CreatedAt ascending instead of the default
	// descending.
	Ascending bool
}

// RecordStore is the narrow persistence interface used by the orchestrator,
// the quota ledger, and the HTTP API.
//
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Create inserts a new Transcription and returns it with ID and
	// CreatedAt assigned by the store.
	Create(ctx context.Context, t Transcription) (Transcription, error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Transcription, error)

	// Update applies the non-nil fields of patch to the record and returns
	// the updated record, or ErrNotFound.
	Update(ctx context.Context, id string, patch Patch) (Transcription, error)

	// Delete removes the record permanently. Returns ErrNotFound when no
	// record with the given id exists.
	Delete(ctx context.Context, id string) error

	// ListByOwner returns the user's records, by CreatedAt descending
	// unless opts requests otherwise.
	ListByOwner(ctx context.Context, userID string, opts ListOptions) ([]Transcription, error)
}

// TagStore manages the Tag catalogue. Membership in a Transcription's Tags
// is by name, so tag mutations never touch Transcription rows.
type TagStore interface {
	CreateTag(ctx context.Context, tag Tag) (Tag, error)
	ListTags(ctx context.Context) ([]Tag, error)
	UpdateTag(ctx context.Context, id string, tag Tag) (Tag, error)
	DeleteTag(ctx context.Context, id string) error
}

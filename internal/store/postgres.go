package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the transcriptions and transcription_tags
// tables. Execute it via [PostgresStore.Migrate] or apply it manually
// during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    user_id            TEXT NOT NULL,
    file_name          TEXT NOT NULL,
    language           TEXT NOT NULL DEFAULT 'auto',
    status             TEXT NOT NULL DEFAULT 'pending',
    title              TEXT NOT NULL DEFAULT '',
    description        TEXT NOT NULL DEFAULT '',
    tags               TEXT[] NOT NULL DEFAULT '{}',
    duration_seconds   BIGINT NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
    transcription_text TEXT NOT NULL DEFAULT '',
    summary            TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transcriptions_user_created
    ON transcriptions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS transcription_tags (
    id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
    name        TEXT NOT NULL UNIQUE,
    color       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT ''
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [RecordStore] and [TagStore] backed by PostgreSQL.
type PostgresStore struct {
	db DB
}

// Compile-time interface checks.
var (
	_ RecordStore = (*PostgresStore)(nil)
	_ TagStore    = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new [PostgresStore] that uses the given
// database connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing
// queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const transcriptionColumns = `id, user_id, file_name, language, status, title, description,
       tags, duration_seconds, transcription_text, summary, created_at`

// Create inserts a new Transcription. ID and CreatedAt are assigned
// server-side; Title defaults from the file name when empty.
func (s *PostgresStore) Create(ctx context.Context, t Transcription) (Transcription, error) {
	if t.Title == "" {
		t.Title = t.FileName
	}
	if t.Status == "" {
		t.Status = StatusPending
	}

	const query = `
		INSERT INTO transcriptions (
			user_id, file_name, language, status, title, description,
			tags, duration_seconds, transcription_text, summary
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query,
		t.UserID, t.FileName, t.Language, t.Status, t.Title, t.Description,
		emptySlice(t.Tags), t.DurationSeconds, t.TranscriptionText, t.Summary,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return Transcription{}, fmt.Errorf("store: create: %w", err)
	}
	return t, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (Transcription, error) {
	query := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE id = $1`

	t, err := scanTranscription(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transcription{}, ErrNotFound
		}
		return Transcription{}, fmt.Errorf("store: get %q: %w", id, err)
	}
	return t, nil
}

// Update applies the non-nil fields of patch. The SET clause is built
// dynamically so that unsupplied fields are never touched.
func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) (Transcription, error) {
	args := []any{id} // $1 = id
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var sets []string
	if patch.Title != nil {
		sets = append(sets, "title = "+next(*patch.Title))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+next(*patch.Description))
	}
	if patch.Tags != nil {
		sets = append(sets, "tags = "+next(emptySlice(*patch.Tags)))
	}
	if patch.TranscriptionText != nil {
		sets = append(sets, "transcription_text = "+next(*patch.TranscriptionText))
	}
	if patch.Summary != nil {
		sets = append(sets, "summary = "+next(*patch.Summary))
	}
	if patch.Status != nil {
		sets = append(sets, "status = "+next(string(*patch.Status)))
	}

	if len(sets) == 0 {
		return s.Get(ctx, id)
	}

	query := fmt.Sprintf(`
		UPDATE transcriptions SET %s
		WHERE id = $1
		RETURNING %s`, strings.Join(sets, ", "), transcriptionColumns)

	t, err := scanTranscription(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transcription{}, ErrNotFound
		}
		return Transcription{}, fmt.Errorf("store: update %q: %w", id, err)
	}
	return t, nil
}

// Delete removes the record permanently. No tombstone is kept.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM transcriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns the user's records, newest first unless opts requests
// ascending order.
func (s *PostgresStore) ListByOwner(ctx context.Context, userID string, opts ListOptions) ([]Transcription, error) {
	args := []any{userID}
	where := "user_id = $1"
	if !opts.Since.IsZero() {
		args = append(args, opts.Since)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM transcriptions WHERE %s ORDER BY created_at %s`,
		transcriptionColumns, where, order)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list by owner: %w", err)
	}
	defer rows.Close()

	var result []Transcription
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list by owner: %w", err)
	}
	return result, nil
}

// CreateTag inserts a new tag. Names are unique; duplicates map to
// ErrDuplicateTag.
func (s *PostgresStore) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	const query = `
		INSERT INTO transcription_tags (name, color, description)
		VALUES ($1, $2, $3)
		RETURNING id`

	err := s.db.QueryRow(ctx, query, tag.Name, tag.Color, tag.Description).Scan(&tag.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Tag{}, ErrDuplicateTag
		}
		return Tag{}, fmt.Errorf("store: create tag: %w", err)
	}
	return tag, nil
}

// ListTags returns all tags ordered by name.
func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, color, description FROM transcription_tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.Description); err != nil {
			return nil, fmt.Errorf("store: list tags scan: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tags: %w", err)
	}
	return tags, nil
}

// UpdateTag replaces the tag's name, color, and description. Renaming a tag
// does not rewrite existing transcription references.
func (s *PostgresStore) UpdateTag(ctx context.Context, id string, tag Tag) (Tag, error) {
	const query = `
		UPDATE transcription_tags SET name = $2, color = $3, description = $4
		WHERE id = $1
		RETURNING id, name, color, description`

	var out Tag
	err := s.db.QueryRow(ctx, query, id, tag.Name, tag.Color, tag.Description).
		Scan(&out.ID, &out.Name, &out.Color, &out.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		if isDuplicateKeyError(err) {
			return Tag{}, ErrDuplicateTag
		}
		return Tag{}, fmt.Errorf("store: update tag %q: %w", id, err)
	}
	return out, nil
}

// DeleteTag removes a tag. Transcriptions referencing it by name keep the
// dangling name.
func (s *PostgresStore) DeleteTag(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM transcription_tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete tag %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner covers pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTranscription(row scanner) (Transcription, error) {
	var t Transcription
	err := row.Scan(
		&t.ID, &t.UserID, &t.FileName, &t.Language, &t.Status, &t.Title,
		&t.Description, &t.Tags, &t.DurationSeconds, &t.TranscriptionText,
		&t.Summary, &t.CreatedAt,
	)
	return t, err
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice so the
// array column is written as '{}' instead of NULL.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isDuplicateKeyError checks whether a PostgreSQL error is a
// unique-violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

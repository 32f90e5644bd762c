// Package upload gates a raw audio file before any network call is made on
// its behalf.
package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// DefaultMaxFileSize is the upload size ceiling applied when the validator
// is constructed with a zero limit.
const DefaultMaxFileSize = 2 << 30 // 2 GiB

// ErrFileTooLarge is returned when the file exceeds the configured size
// ceiling. No probe is attempted for oversized files.
var ErrFileTooLarge = errors.New("upload: file too large")

// ErrUnreadableMedia is returned when the duration probe fails or yields a
// non-finite or negative duration (corrupt container, unsupported codec).
var ErrUnreadableMedia = errors.New("upload: unreadable media")

// File is a candidate upload. The validator never retains it.
type File struct {
	Name string
	Data []byte
}

// Result is the outcome of a successful validation. The caller keeps the
// file and its decoded duration for the remainder of the workflow.
type Result struct {
	DurationSeconds int64
}

// DurationProber decodes enough of a media file to determine its playback
// duration in seconds. Supplied by the platform; implementations live in
// pkg/audio.
type DurationProber interface {
	ProbeDuration(ctx context.Context, name string, data []byte) (float64, error)
}

// Validator validates candidate files. It is stateless and safe for
// concurrent use.
type Validator struct {
	maxFileSize int64
	prober      DurationProber
}

// NewValidator creates a Validator with the given size ceiling in bytes.
// A non-positive maxFileSize selects [DefaultMaxFileSize].
func NewValidator(maxFileSize int64, prober DurationProber) *Validator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Validator{maxFileSize: maxFileSize, prober: prober}
}

// Validate applies the gate rules in order: size ceiling first, then the
// duration probe. Probe failures and degenerate durations are both reported
// as ErrUnreadableMedia.
func (v *Validator) Validate(ctx context.Context, f File) (Result, error) {
	if int64(len(f.Data)) > v.maxFileSize {
		return Result{}, fmt.Errorf("%w: %d bytes exceeds limit of %d",
			ErrFileTooLarge, len(f.Data), v.maxFileSize)
	}

	seconds, err := v.prober.ProbeDuration(ctx, f.Name, f.Data)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreadableMedia, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return Result{}, fmt.Errorf("%w: probe returned duration %v", ErrUnreadableMedia, seconds)
	}

	return Result{DurationSeconds: int64(math.Ceil(seconds))}, nil
}

// Package transcribe drives one transcription submission end-to-end: file
// validation, quota admission, the speech-to-text call, the formatting
// pass, and persistence.
//
// Each step fails fast: on any failure nothing is persisted and the quota
// ledger is untouched (failed attempts leave no trace). A formatting
// failure after a successful transcription call deliberately does not fall
// back to persisting the raw text.
//
// Summary generation is a second, independent transition operating on an
// already-persisted record; its failures never affect the stored
// transcript.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxnote/voxnote/internal/observe"
	"github.com/voxnote/voxnote/internal/quota"
	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/internal/upload"
	"github.com/voxnote/voxnote/pkg/provider/llm"
	"github.com/voxnote/voxnote/pkg/provider/stt"
)

// Sentinel errors for the orchestrator's failure taxonomy. Validation and
// quota failures surface as upload.ErrFileTooLarge, upload.ErrUnreadableMedia,
// and *quota.ExceededError respectively.
var (
	// ErrSubmissionInFlight is returned by Submit when another submission
	// is already running on this orchestrator instance.
	ErrSubmissionInFlight = errors.New("transcribe: submission already in flight")

	// ErrTranscriptionProvider wraps failures of the speech-to-text call.
	ErrTranscriptionProvider = errors.New("transcribe: transcription provider failure")

	// ErrFormattingProvider wraps failures of the text-generation calls
	// (formatting and summary).
	ErrFormattingProvider = errors.New("transcribe: formatting provider failure")

	// ErrPersistence wraps failures writing the completed record.
	ErrPersistence = errors.New("transcribe: persistence failure")

	// ErrNoTranscript is returned by GenerateSummary for records without a
	// stored transcript.
	ErrNoTranscript = errors.New("transcribe: record has no transcript text")
)

// State identifies where a submission currently is. A submission moves
// strictly forward through the states below and terminates in StateDone or
// StateFailed.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateAdmissionChecking State = "admission_checking"
	StateTranscribing      State = "transcribing"
	StateFormatting        State = "formatting"
	StatePersisting        State = "persisting"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// defaultCallTimeout bounds each external call when no timeout is
// configured. Whisper uploads of long recordings are slow, so this is
// generous.
const defaultCallTimeout = 5 * time.Minute

// Submission is one candidate upload.
type Submission struct {
	UserID      string
	FileName    string
	Language    string // ISO-ish code or stt.LanguageAuto
	Title       string
	Description string
	Tags        []string
	Audio       []byte
}

// Indexer receives completed records for search indexing. Indexing is
// best-effort; errors are logged, never surfaced to the submitter.
type Indexer interface {
	Index(ctx context.Context, rec store.Transcription) error
}

// Observer receives state transitions for one submission.
type Observer func(State)

// Orchestrator composes the validator, ledger, providers, and record store
// into the submission workflow. At most one submission runs per instance
// at a time; steps within a submission are strictly sequential.
type Orchestrator struct {
	validator *upload.Validator
	ledger    *quota.Ledger
	stt       stt.Provider
	llm       llm.Provider
	records   store.RecordStore

	callTimeout time.Duration
	indexer     Indexer
	observer    Observer
	metrics     *observe.Metrics

	// busy enforces one in-flight submission per instance.
	busy sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCallTimeout bounds each external call (probe, transcription,
// formatting, persistence). On timeout the whole submission fails; no call
// is retried, since retrying a transcription risks double-billing the
// upstream provider.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithIndexer registers a search indexer fed on successful submissions.
func WithIndexer(ix Indexer) Option {
	return func(o *Orchestrator) {
		o.indexer = ix
	}
}

// WithObserver registers a callback invoked on every state transition.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// WithMetrics registers the instrument bundle the orchestrator records
// stage latencies, quota decisions, and provider outcomes on.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New creates an Orchestrator.
func New(validator *upload.Validator, ledger *quota.Ledger, sttProvider stt.Provider, llmProvider llm.Provider, records store.RecordStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		validator:   validator,
		ledger:      ledger,
		stt:         sttProvider,
		llm:         llmProvider,
		records:     records,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) setState(s State) {
	if o.observer != nil {
		o.observer(s)
	}
}

// Submit runs one submission from file selection to persisted transcript.
//
// Failure mapping: upload.ErrFileTooLarge and upload.ErrUnreadableMedia
// before any provider call; *quota.ExceededError (carrying the exact
// snapshot) on denial; ErrTranscriptionProvider, ErrFormattingProvider, and
// ErrPersistence for the later stages. On any failure no record exists and
// the derived quota is unchanged.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (store.Transcription, error) {
	if !o.busy.TryLock() {
		return store.Transcription{}, ErrSubmissionInFlight
	}
	defer o.busy.Unlock()

	ctx, span := observe.StartSpan(ctx, "submission")
	defer span.End()

	fail := func(err error) (store.Transcription, error) {
		observe.SpanFailed(span, err)
		o.setState(StateFailed)
		return store.Transcription{}, err
	}

	// Validating.
	o.setState(StateValidating)
	res, err := o.validator.Validate(ctx, upload.File{Name: sub.FileName, Data: sub.Audio})
	if err != nil {
		return fail(err)
	}

	// AdmissionChecking. A ledger fetch error means admission cannot be
	// confirmed and the submission aborts — never admit on error.
	o.setState(StateAdmissionChecking)
	adm, err := o.ledger.Admit(ctx, sub.UserID, res.DurationSeconds)
	if err != nil {
		return fail(fmt.Errorf("transcribe: admission check: %w", err))
	}
	if o.metrics != nil {
		decision := "admitted"
		if !adm.Admitted {
			decision = "rejected"
		}
		o.metrics.RecordQuotaDecision(ctx, string(adm.Quota.Plan), decision)
	}
	if !adm.Admitted {
		return fail(&quota.ExceededError{Quota: adm.Quota, Requested: res.DurationSeconds})
	}

	// The reservation (if any) must not outlive a failed submission. On
	// success it is released after the row is committed, at which point the
	// derived fold covers the usage.
	committed := false
	defer func() {
		if err := adm.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("quota reservation release failed",
				"user_id", sub.UserID, "committed", committed, "err", err)
		}
	}()

	// Transcribing.
	o.setState(StateTranscribing)
	sttStart := time.Now()
	rawText, err := o.timed(ctx, func(ctx context.Context) (string, error) {
		return o.stt.Transcribe(ctx, stt.Request{
			Audio:    sub.Audio,
			FileName: sub.FileName,
			Language: sub.Language,
		})
	})
	o.recordProviderCall(ctx, "stt", "transcribe", sttStart, err)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrTranscriptionProvider, err))
	}

	// Formatting: a presentation transform, not a summariser.
	o.setState(StateFormatting)
	llmStart := time.Now()
	formatted, err := o.timed(ctx, func(ctx context.Context) (string, error) {
		return o.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: formatSystemPrompt,
			Prompt:       formatPrompt(sub.Language) + "\n\nText to format:\n" + rawText,
			Temperature:  0.3,
		})
	})
	o.recordProviderCall(ctx, "llm", "format", llmStart, err)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrFormattingProvider, err))
	}
	if strings.TrimSpace(formatted) == "" {
		formatted = rawText
	}

	// Persisting. The completed row is the first and only write.
	o.setState(StatePersisting)
	rec, err := o.records.Create(ctx, store.Transcription{
		UserID:            sub.UserID,
		FileName:          sub.FileName,
		Language:          sub.Language,
		Status:            store.StatusCompleted,
		Title:             sub.Title,
		Description:       sub.Description,
		Tags:              sub.Tags,
		DurationSeconds:   res.DurationSeconds,
		TranscriptionText: formatted,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrPersistence, err))
	}
	committed = true

	if o.indexer != nil {
		if err := o.indexer.Index(ctx, rec); err != nil {
			slog.Warn("search indexing failed", "transcription_id", rec.ID, "err", err)
		}
	}

	o.setState(StateDone)
	return rec, nil
}

// GenerateSummary produces a summary of an already-persisted transcript and
// stores it in the record's summary field. It operates on the stored
// (formatted) transcript text, not the raw provider output, and never
// modifies any other field.
func (o *Orchestrator) GenerateSummary(ctx context.Context, userID, id string) (store.Transcription, error) {
	rec, err := o.records.Get(ctx, id)
	if err != nil {
		return store.Transcription{}, err
	}
	if rec.UserID != userID {
		return store.Transcription{}, store.ErrNotFound
	}
	if rec.TranscriptionText == "" {
		return store.Transcription{}, ErrNoTranscript
	}

	start := time.Now()
	summary, err := o.timed(ctx, func(ctx context.Context) (string, error) {
		return o.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: summarySystemPrompt,
			Prompt:       summaryPrompt(rec.Language) + "\n\nText to summarize:\n" + rec.TranscriptionText,
			Temperature:  0.3,
		})
	})
	o.recordProviderCall(ctx, "llm", "summary", start, err)
	if err != nil {
		return store.Transcription{}, fmt.Errorf("%w: %v", ErrFormattingProvider, err)
	}

	updated, err := o.records.Update(ctx, id, store.Patch{Summary: &summary})
	if err != nil {
		return store.Transcription{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return updated, nil
}

// recordProviderCall records latency and outcome for one provider call.
// provider is "stt" or "llm"; kind is "transcribe", "format", or "summary".
func (o *Orchestrator) recordProviderCall(ctx context.Context, provider, kind string, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	seconds := time.Since(start).Seconds()
	switch provider {
	case "stt":
		o.metrics.RecordTranscription(ctx, seconds)
	case "llm":
		o.metrics.RecordFormatting(ctx, kind, seconds)
	}
	status := "ok"
	if err != nil {
		status = "error"
		o.metrics.RecordProviderError(ctx, provider, kind)
	}
	o.metrics.RecordProviderRequest(ctx, provider, kind, status)
}

// timed runs fn under the per-call timeout.
func (o *Orchestrator) timed(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return fn(ctx)
}

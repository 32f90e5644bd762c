package transcribe_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/voxnote/voxnote/internal/observe"
	"github.com/voxnote/voxnote/internal/plan"
	"github.com/voxnote/voxnote/internal/quota"
	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/internal/transcribe"
	"github.com/voxnote/voxnote/internal/upload"
	llmmock "github.com/voxnote/voxnote/pkg/provider/llm/mock"
	sttmock "github.com/voxnote/voxnote/pkg/provider/stt/mock"
)

// fixedProber reports every file as 60 seconds long.
type fixedProber struct{ seconds float64 }

func (p fixedProber) ProbeDuration(ctx context.Context, name string, data []byte) (float64, error) {
	if p.seconds < 0 {
		return 0, errors.New("corrupt container")
	}
	return p.seconds, nil
}

// fixture bundles the orchestrator with its injectable collaborators.
type fixture struct {
	records *store.MemStore
	ledger  *quota.Ledger
	stt     *sttmock.Provider
	llm     *llmmock.Provider
	states  []transcribe.State
	orch    *transcribe.Orchestrator
}

func newFixture(t *testing.T, tier plan.Tier, opts ...transcribe.Option) *fixture {
	t.Helper()
	f := &fixture{
		records: store.NewMemStore(),
		stt:     &sttmock.Provider{Transcript: "raw words"},
		llm:     &llmmock.Provider{Response: "# Notes\nformatted words"},
	}
	f.ledger = quota.NewLedger(f.records, plan.Static(tier))

	opts = append(opts, transcribe.WithObserver(func(s transcribe.State) {
		f.states = append(f.states, s)
	}))
	validator := upload.NewValidator(1<<20, fixedProber{seconds: 60})
	f.orch = transcribe.New(validator, f.ledger, f.stt, f.llm, f.records, opts...)
	return f
}

func submission() transcribe.Submission {
	return transcribe.Submission{
		UserID:   "u1",
		FileName: "standup.wav",
		Language: "en",
		Audio:    []byte("riff bytes"),
	}
}

func TestSubmit_HappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	rec, err := f.orch.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if rec.Status != store.StatusCompleted {
		t.Errorf("Status = %s, want completed", rec.Status)
	}
	if rec.TranscriptionText != "# Notes\nformatted words" {
		t.Errorf("TranscriptionText = %q, want the formatted output", rec.TranscriptionText)
	}
	if rec.DurationSeconds != 60 {
		t.Errorf("DurationSeconds = %d, want 60", rec.DurationSeconds)
	}
	if rec.Summary != "" {
		t.Error("Submit must not populate the summary")
	}

	// The stored row is the quota charge.
	q, err := f.ledger.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get quota: %v", err)
	}
	if q.Used != 60 {
		t.Errorf("Used = %d, want 60", q.Used)
	}

	want := []transcribe.State{
		transcribe.StateValidating,
		transcribe.StateAdmissionChecking,
		transcribe.StateTranscribing,
		transcribe.StateFormatting,
		transcribe.StatePersisting,
		transcribe.StateDone,
	}
	if len(f.states) != len(want) {
		t.Fatalf("states = %v, want %v", f.states, want)
	}
	for i := range want {
		if f.states[i] != want[i] {
			t.Fatalf("states[%d] = %s, want %s", i, f.states[i], want[i])
		}
	}
}

func TestSubmit_FormattingPromptCarriesRawTranscript(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	if _, err := f.orch.Submit(context.Background(), submission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if f.llm.CallCount() != 1 {
		t.Fatalf("llm calls = %d, want 1", f.llm.CallCount())
	}
	req := f.llm.Calls[0].Req
	if !strings.Contains(req.Prompt, "raw words") {
		t.Error("formatting prompt must contain the raw transcript")
	}
	if req.SystemPrompt == "" {
		t.Error("formatting call must set a system prompt")
	}
}

func TestSubmit_QuotaRejectionBeforeProviders(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	// Exhaust the free allowance.
	if _, err := f.records.Create(context.Background(), store.Transcription{
		UserID:          "u1",
		FileName:        "old.wav",
		Status:          store.StatusCompleted,
		DurationSeconds: quota.AllowanceFree,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := f.orch.Submit(context.Background(), submission())
	var exceeded *quota.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("err = %v, want *quota.ExceededError", err)
	}
	if exceeded.Quota.Remaining != 0 || exceeded.Requested != 60 {
		t.Errorf("snapshot = %+v requested %d", exceeded.Quota, exceeded.Requested)
	}

	if f.stt.CallCount() != 0 || f.llm.CallCount() != 0 {
		t.Error("no provider may be called for a rejected submission")
	}
	if recs, _ := f.records.ListByOwner(context.Background(), "u1", store.ListOptions{}); len(recs) != 1 {
		t.Error("a rejected submission must not create a record")
	}
	if last := f.states[len(f.states)-1]; last != transcribe.StateFailed {
		t.Errorf("final state = %s, want failed", last)
	}
}

func TestSubmit_ValidationFailureSkipsAdmission(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)
	validator := upload.NewValidator(1<<20, fixedProber{seconds: -1})
	orch := transcribe.New(validator, f.ledger, f.stt, f.llm, f.records)

	_, err := orch.Submit(context.Background(), submission())
	if !errors.Is(err, upload.ErrUnreadableMedia) {
		t.Fatalf("err = %v, want ErrUnreadableMedia", err)
	}
	if f.stt.CallCount() != 0 {
		t.Error("no transcription call for an invalid file")
	}
}

func TestSubmit_TranscriptionFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)
	f.stt.Err = errors.New("upstream 500")

	_, err := f.orch.Submit(context.Background(), submission())
	if !errors.Is(err, transcribe.ErrTranscriptionProvider) {
		t.Fatalf("err = %v, want ErrTranscriptionProvider", err)
	}
	if f.llm.CallCount() != 0 {
		t.Error("formatting must not run after a transcription failure")
	}
	assertNoTrace(t, f)
}

func TestSubmit_FormattingFailureLeavesNoTrace(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)
	f.llm.Err = errors.New("upstream 500")

	_, err := f.orch.Submit(context.Background(), submission())
	if !errors.Is(err, transcribe.ErrFormattingProvider) {
		t.Fatalf("err = %v, want ErrFormattingProvider", err)
	}
	assertNoTrace(t, f)
}

// assertNoTrace checks the no-partial-state invariant: no record rows and an
// untouched derived quota.
func assertNoTrace(t *testing.T, f *fixture) {
	t.Helper()
	recs, err := f.records.ListByOwner(context.Background(), "u1", store.ListOptions{})
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("failed submission left %d records", len(recs))
	}
	q, err := f.ledger.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get quota: %v", err)
	}
	if q.Used != 0 {
		t.Errorf("failed submission charged %ds of quota", q.Used)
	}
	if last := f.states[len(f.states)-1]; last != transcribe.StateFailed {
		t.Errorf("final state = %s, want failed", last)
	}
}

func TestSubmit_EmptyFormattedOutputFallsBackToRaw(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)
	f.llm.Response = "   \n"

	rec, err := f.orch.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rec.TranscriptionText != "raw words" {
		t.Errorf("TranscriptionText = %q, want raw transcript fallback", rec.TranscriptionText)
	}
}

func TestSubmit_SecondSubmissionWhileBusy(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	// The observer runs inside Submit, so submitting from it exercises the
	// in-flight guard without real concurrency.
	var second error
	tried := false
	var orch *transcribe.Orchestrator
	orch = transcribe.New(
		upload.NewValidator(1<<20, fixedProber{seconds: 60}),
		f.ledger, f.stt, f.llm, f.records,
		transcribe.WithObserver(func(s transcribe.State) {
			if s == transcribe.StateTranscribing && !tried {
				tried = true
				_, second = orch.Submit(context.Background(), submission())
			}
		}),
	)

	if _, err := orch.Submit(context.Background(), submission()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !errors.Is(second, transcribe.ErrSubmissionInFlight) {
		t.Fatalf("reentrant err = %v, want ErrSubmissionInFlight", second)
	}
}

func TestGenerateSummary(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	rec, err := f.orch.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	f.llm.Response = "# Summary\n- point"
	updated, err := f.orch.GenerateSummary(context.Background(), "u1", rec.ID)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if updated.Summary != "# Summary\n- point" {
		t.Errorf("Summary = %q", updated.Summary)
	}
	if updated.TranscriptionText != rec.TranscriptionText {
		t.Error("summary generation must not modify the transcript")
	}

	// The summary prompt operates on the stored formatted text, not the
	// raw provider output.
	last := f.llm.Calls[len(f.llm.Calls)-1].Req
	if !strings.Contains(last.Prompt, rec.TranscriptionText) {
		t.Error("summary prompt must carry the stored transcript")
	}
}

func TestGenerateSummary_FailureLeavesRecordUnchanged(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	rec, err := f.orch.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	f.llm.Err = errors.New("upstream 500")
	if _, err := f.orch.GenerateSummary(context.Background(), "u1", rec.ID); !errors.Is(err, transcribe.ErrFormattingProvider) {
		t.Fatalf("err = %v, want ErrFormattingProvider", err)
	}

	got, _ := f.records.Get(context.Background(), rec.ID)
	if got.Summary != "" || got.TranscriptionText != rec.TranscriptionText {
		t.Error("failed summary generation must leave the record unchanged")
	}
}

func TestGenerateSummary_OwnerMismatchReadsAsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	rec, err := f.orch.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.orch.GenerateSummary(context.Background(), "intruder", rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGenerateSummary_NoTranscript(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	rec, err := f.records.Create(context.Background(), store.Transcription{
		UserID: "u1", FileName: "m.wav",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.orch.GenerateSummary(context.Background(), "u1", rec.ID); !errors.Is(err, transcribe.ErrNoTranscript) {
		t.Fatalf("err = %v, want ErrNoTranscript", err)
	}
}

// newTestMetrics builds a Metrics bundle backed by a manual reader so tests
// can inspect what the orchestrator recorded.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return metrics, reader
}

// recordedInstruments drains the reader and returns the names of instruments
// that received at least one measurement.
func recordedInstruments(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	names := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestSubmit_RecordsStageMetrics(t *testing.T) {
	t.Parallel()
	metrics, reader := newTestMetrics(t)
	f := newFixture(t, plan.TierFree, transcribe.WithMetrics(metrics))

	rec, err := f.orch.Submit(context.Background(), submission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.orch.GenerateSummary(context.Background(), "u1", rec.ID); err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}

	names := recordedInstruments(t, reader)
	for _, want := range []string{
		"voxnote.transcription.duration",
		"voxnote.formatting.duration",
		"voxnote.quota.decisions",
		"voxnote.provider.requests",
	} {
		if !names[want] {
			t.Errorf("instrument %s received no measurements", want)
		}
	}
	if names["voxnote.provider.errors"] {
		t.Error("no provider errors may be recorded on the happy path")
	}
}

func TestSubmit_QuotaRejectionRecordsDecision(t *testing.T) {
	t.Parallel()
	metrics, reader := newTestMetrics(t)
	f := newFixture(t, plan.TierFree, transcribe.WithMetrics(metrics))

	if _, err := f.records.Create(context.Background(), store.Transcription{
		UserID:          "u1",
		FileName:        "old.wav",
		Status:          store.StatusCompleted,
		DurationSeconds: quota.AllowanceFree,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.orch.Submit(context.Background(), submission()); err == nil {
		t.Fatal("Submit must be rejected")
	}

	names := recordedInstruments(t, reader)
	if !names["voxnote.quota.decisions"] {
		t.Error("a rejected submission must record a quota decision")
	}
	if names["voxnote.transcription.duration"] || names["voxnote.provider.requests"] {
		t.Error("no provider metrics may be recorded before admission")
	}
}

func TestSubmit_ProviderFailureRecordsError(t *testing.T) {
	t.Parallel()
	metrics, reader := newTestMetrics(t)
	f := newFixture(t, plan.TierFree, transcribe.WithMetrics(metrics))
	f.stt.Err = errors.New("upstream 500")

	if _, err := f.orch.Submit(context.Background(), submission()); !errors.Is(err, transcribe.ErrTranscriptionProvider) {
		t.Fatalf("err = %v, want ErrTranscriptionProvider", err)
	}

	names := recordedInstruments(t, reader)
	if !names["voxnote.provider.errors"] {
		t.Error("a failed provider call must record a provider error")
	}
	if !names["voxnote.provider.requests"] {
		t.Error("a failed provider call still counts as a request")
	}
}

func TestSubmit_FrenchLanguageSelectsFrenchPrompt(t *testing.T) {
	t.Parallel()
	f := newFixture(t, plan.TierFree)

	sub := submission()
	sub.Language = "fr"
	if _, err := f.orch.Submit(context.Background(), sub); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	req := f.llm.Calls[0].Req
	if !strings.Contains(req.Prompt, "Formate ce texte") {
		t.Error("fr submissions must get the French formatting instruction")
	}
	if f.stt.Calls[0].Req.Language != "fr" {
		t.Errorf("stt language = %q, want fr", f.stt.Calls[0].Req.Language)
	}
}

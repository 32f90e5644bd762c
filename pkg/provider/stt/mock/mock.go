// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// requests and to feed controlled transcripts without a live STT backend.
package mock

import (
	"context"
	"sync"

	"github.com/voxnote/voxnote/pkg/provider/stt"
)

// Call records a single invocation of Transcribe.
type Call struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider. Zero values cause
// methods to return zero values and nil errors; set Err to inject a
// failure.
type Provider struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe when Err is nil.
	Transcript string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Compile-time interface check.
var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	p.mu.Unlock()

	if p.Err != nil {
		return "", p.Err
	}
	return p.Transcript, nil
}

// CallCount returns the number of recorded Transcribe invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

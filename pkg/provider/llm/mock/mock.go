// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify prompts and to feed controlled
// completions without a live backend:
//
//	p := &mock.Provider{Response: "## Summary\n…"}
//	out, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxnote/voxnote/pkg/provider/llm"
)

// Call records a single invocation of Complete.
type Call struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the request passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Zero values cause
// Complete to return "" and nil; set Err to inject a failure. Responses,
// when non-empty, are consumed one per call before falling back to
// Response.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Err is nil and Responses is
	// exhausted.
	Response string

	// Responses, when non-empty, supplies one response per call in order.
	Responses []string

	// Err, if non-nil, is returned by Complete.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})

	if p.Err != nil {
		return "", p.Err
	}
	if n := len(p.Calls) - 1; n < len(p.Responses) {
		return p.Responses[n], nil
	}
	return p.Response, nil
}

// CallCount returns the number of recorded Complete invocations.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

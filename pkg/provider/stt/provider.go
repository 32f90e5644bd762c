// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a hosted batch transcription service and exposes a
// single-call contract: audio bytes in, transcript text out. There is no
// streaming surface — each upload is transcribed in one round trip, and the
// caller owns timeout and cancellation via ctx.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// LanguageAuto asks the provider to detect the language itself.
const LanguageAuto = "auto"

// Request carries one audio file to transcribe.
type Request struct {
	// Audio is the raw file content as uploaded.
	Audio []byte

	// FileName is the original file name. Providers use it to infer the
	// container format.
	FileName string

	// Language is an ISO-ish language code ("fr", "en", …) or LanguageAuto
	// (or empty) to let the provider detect it.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe submits the audio and returns the plain transcript text.
	// A non-2xx or malformed provider response is returned as an error;
	// there is no partial result.
	Transcribe(ctx context.Context, req Request) (string, error)
}

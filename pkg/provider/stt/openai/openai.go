// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxnote/voxnote/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = string(oai.AudioModelWhisper1)

// transcriptionPrompt nudges Whisper towards markdown output with headings,
// paragraphs, and speaker labels. It is a hint, not a guarantee — the
// formatting pass downstream is authoritative.
const transcriptionPrompt = `Please transcribe this audio with proper formatting. Include:
- Clear section headings (using markdown # syntax)
- Proper paragraphs
- Speaker labels if multiple speakers are detected
- Important points or key takeaways (as bullet points)
Please format the output in markdown.`

// Compile-time interface check.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI STT Provider. If model is empty, DefaultModel
// (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Transcribe implements stt.Provider. The audio is submitted as one
// multipart request; the response is the plain transcript text.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", fmt.Errorf("openai stt: empty audio")
	}

	params := oai.AudioTranscriptionNewParams{
		Model:  oai.AudioModel(p.model),
		File:   oai.File(bytes.NewReader(req.Audio), req.FileName, contentType(req.FileName)),
		Prompt: param.NewOpt(transcriptionPrompt),
	}
	if req.Language != "" && req.Language != stt.LanguageAuto {
		params.Language = param.NewOpt(req.Language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	if resp.Text == "" {
		return "", fmt.Errorf("openai stt: empty transcript in response")
	}
	return resp.Text, nil
}

// contentType guesses a MIME type from the file extension. The API only
// uses it as a hint; unknown extensions fall back to octet-stream.
func contentType(name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".wav"):
		return "audio/wav"
	case strings.HasSuffix(strings.ToLower(name), ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(strings.ToLower(name), ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(strings.ToLower(name), ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(strings.ToLower(name), ".webm"):
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

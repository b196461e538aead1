// Package core defines the core types and capability interfaces for the
// speech engine. The orchestration layer depends only on these contracts,
// never on a concrete inference backend.
package core

import (
	"context"
	"errors"
	"fmt"
)

// SampleRate is the fixed output sample rate of every backend, in Hz.
// All waveforms and frames are mono 16-bit PCM at this rate.
const SampleRate = 16000

// TokenCounter reports how many model tokens a piece of text occupies.
// Implementations must not add special tokens, truncate, or pad; the count is
// used purely for chunk budgeting, never for model encoding.
type TokenCounter func(text string) int

// SplitFunc splits text into ordered sentence-like units. Implementations
// must not drop or reorder content.
type SplitFunc func(text string) []string

// Frame is an incremental block of decoded mono PCM16 samples emitted during
// streamed generation.
type Frame []int16

// FrameStream is a pull-based sequence of audio frames for one chunk of text.
// Recv returns io.EOF after the final frame, or the backend's error if
// generation failed mid-stream. Close releases backend resources and may be
// called at any time.
type FrameStream interface {
	Recv() (Frame, error)
	Close() error
}

// SamplingParams control the generative decoding for one request.
type SamplingParams struct {
	// Temperature controls randomness of the decoded prosody. Must be >= 0.
	Temperature float64
	// TopK truncates the candidate distribution to the K most likely
	// tokens before sampling. Must be > 0.
	TopK int
	// TopP is the nucleus sampling threshold in (0, 1].
	TopP float64
	// MaxTokens caps generated output length as a safety bound against
	// runaway generation. Must be > 0.
	MaxTokens int
}

// CloneReference carries the reference sample for voice cloning. Audio holds
// an encoded audio file (WAV); Transcript optionally holds its text, which
// improves cloning fidelity when available.
type CloneReference struct {
	Audio      []byte
	Transcript string
}

// ChunkRequest asks a backend to synthesize exactly one chunk of text.
// At most one of Voice, Reference, and Attributes is set; all unset means the
// backend's default voice.
type ChunkRequest struct {
	Text       string
	Voice      string
	Reference  *CloneReference
	Attributes *VoiceAttributes
	Sampling   SamplingParams
}

// Backend is the inference capability consumed by the engine. A backend
// instance is shared across requests and must be safe for use by multiple
// goroutines.
//
// A generation that hits Sampling.MaxTokens without a natural stop is still a
// success from the engine's perspective; backends that consider truncation
// fatal report it as an error themselves.
type Backend interface {
	// Generate synthesizes the whole chunk and returns its waveform.
	Generate(ctx context.Context, req ChunkRequest) ([]int16, error)

	// GenerateStream synthesizes the chunk incrementally. The returned
	// stream yields frames in generation order.
	GenerateStream(ctx context.Context, req ChunkRequest) (FrameStream, error)
}

// ObjectStore is the interface for the key-value blob store holding job
// inputs and rendered audio.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Static validation errors for backend requests.
var (
	// ErrEmptyText indicates an empty synthesis request.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrReferenceAudioEmpty indicates a clone request without audio.
	ErrReferenceAudioEmpty = errors.New("reference audio cannot be empty")
)

// Validate checks the structural fields of the request. Sampling ranges are
// validated separately by the engine before any chunking happens.
func (r *ChunkRequest) Validate() error {
	if r.Text == "" {
		return ErrEmptyText
	}

	if r.Reference != nil && len(r.Reference.Audio) == 0 {
		return ErrReferenceAudioEmpty
	}

	if r.Attributes != nil {
		err := r.Attributes.Validate()
		if err != nil {
			return fmt.Errorf("invalid voice attributes: %w", err)
		}
	}

	return nil
}

package engine

import (
	"errors"
	"fmt"

	"github.com/book-expert/speech-engine/internal/core"
)

// Static request validation errors.
var (
	// ErrVoiceContextConflict indicates more than one voice context on a
	// single request.
	ErrVoiceContextConflict = errors.New(
		"at most one of voice, reference, and attributes may be set",
	)
)

// Request is the fully parameterized form of a generation call, consumed by
// the generic Generate and GenerateStream entry points. At most one of Voice,
// Reference, and Attributes may be set; with none set the backend's default
// voice is used.
type Request struct {
	// Text is the input to synthesize, of any length; it is chunked
	// internally.
	Text string

	// Voice names a preset voice identity.
	Voice string

	// Reference requests voice cloning from a sample.
	Reference *core.CloneReference

	// Attributes requests procedural voice design.
	Attributes *core.VoiceAttributes

	// Options carry sampling and chunking parameters.
	Options Options
}

// validate rejects configuration errors before any chunking or backend work:
// text presence, voice-context exclusivity, per-context structure, and
// sampling ranges.
func (r *Request) validate() error {
	if r.Text == "" {
		return core.ErrEmptyText
	}

	contexts := 0
	if r.Voice != "" {
		contexts++
	}

	if r.Reference != nil {
		contexts++
	}

	if r.Attributes != nil {
		contexts++
	}

	if contexts > 1 {
		return ErrVoiceContextConflict
	}

	if r.Reference != nil && len(r.Reference.Audio) == 0 {
		return core.ErrReferenceAudioEmpty
	}

	if r.Attributes != nil {
		err := r.Attributes.Validate()
		if err != nil {
			return fmt.Errorf("invalid voice attributes: %w", err)
		}
	}

	return r.Options.validate()
}

// template builds the per-chunk request skeleton; the orchestration loop
// fills Text per chunk.
func (r *Request) template() core.ChunkRequest {
	return core.ChunkRequest{
		Text:       "",
		Voice:      r.Voice,
		Reference:  r.Reference,
		Attributes: r.Attributes,
		Sampling:   r.Options.sampling(),
	}
}

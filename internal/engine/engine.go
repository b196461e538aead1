// Package engine orchestrates long-text speech generation: it segments input
// text into token-bounded chunks, drives an inference backend once per chunk
// in order, and assembles the results into one waveform (batch) or one
// ordered frame stream (streaming).
//
// Four generation families are exposed, each in batch and streaming form:
// preset-voice speak, voice cloning from a reference sample, attribute-based
// voice design, and the generic parameterized request.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/core"
	"github.com/book-expert/speech-engine/internal/segment"
)

// Static construction errors.
var (
	// ErrNilBackend indicates a missing inference backend.
	ErrNilBackend = errors.New("backend cannot be nil")
	// ErrNilTokenCounter indicates a missing token counter.
	ErrNilTokenCounter = errors.New("token counter cannot be nil")
	// ErrNilLogger indicates a missing logger.
	ErrNilLogger = errors.New("logger cannot be nil")
)

// Log formats.
const (
	logFmtBatchStart     = "Generating speech for %d chunks"
	logFmtChunkDone      = "Generated chunk %d/%d (%d samples)"
	logFmtBatchDone      = "Generated %d samples across %d chunks"
	logFmtStreamStart    = "Streaming speech for %d chunks"
	errFmtChunkFailed    = "chunk %d/%d generation failed: %w"
	errFmtSegmentation   = "segmentation failed: %w"
	errFmtInvalidRequest = "invalid generation request: %w"
)

// Engine is the single public entry point for speech generation. It is
// stateless between calls and safe for concurrent use; the backend instance
// is shared across all requests.
type Engine struct {
	backend core.Backend
	tokens  core.TokenCounter
	log     *logger.Logger
}

// New creates an engine on top of an inference backend. The token counter
// measures chunk budgets and must match the tokenizer of the model behind the
// backend.
func New(
	backend core.Backend,
	tokens core.TokenCounter,
	log *logger.Logger,
) (*Engine, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}

	if tokens == nil {
		return nil, ErrNilTokenCounter
	}

	if log == nil {
		return nil, ErrNilLogger
	}

	return &Engine{
		backend: backend,
		tokens:  tokens,
		log:     log,
	}, nil
}

// Speak synthesizes text in a preset named voice and returns the complete
// waveform. An empty voice selects the backend's default voice.
func (e *Engine) Speak(
	ctx context.Context,
	voice, text string,
	opts Options,
) ([]int16, error) {
	return e.Generate(ctx, Request{
		Text:       text,
		Voice:      voice,
		Reference:  nil,
		Attributes: nil,
		Options:    opts,
	})
}

// SpeakStream is the streaming form of Speak.
func (e *Engine) SpeakStream(
	ctx context.Context,
	voice, text string,
	opts Options,
) (*Stream, error) {
	return e.GenerateStream(ctx, Request{
		Text:       text,
		Voice:      voice,
		Reference:  nil,
		Attributes: nil,
		Options:    opts,
	})
}

// CloneVoice synthesizes text in a voice mimicking the reference sample. A
// reference transcript, when present, improves cloning fidelity.
func (e *Engine) CloneVoice(
	ctx context.Context,
	text string,
	ref core.CloneReference,
	opts Options,
) ([]int16, error) {
	return e.Generate(ctx, Request{
		Text:       text,
		Voice:      "",
		Reference:  &ref,
		Attributes: nil,
		Options:    opts,
	})
}

// CloneVoiceStream is the streaming form of CloneVoice.
func (e *Engine) CloneVoiceStream(
	ctx context.Context,
	text string,
	ref core.CloneReference,
	opts Options,
) (*Stream, error) {
	return e.GenerateStream(ctx, Request{
		Text:       text,
		Voice:      "",
		Reference:  &ref,
		Attributes: nil,
		Options:    opts,
	})
}

// DesignVoice synthesizes text in a procedurally designed voice described by
// discrete gender, pitch, and speed attributes; no reference audio is used.
func (e *Engine) DesignVoice(
	ctx context.Context,
	text string,
	attrs core.VoiceAttributes,
	opts Options,
) ([]int16, error) {
	return e.Generate(ctx, Request{
		Text:       text,
		Voice:      "",
		Reference:  nil,
		Attributes: &attrs,
		Options:    opts,
	})
}

// DesignVoiceStream is the streaming form of DesignVoice.
func (e *Engine) DesignVoiceStream(
	ctx context.Context,
	text string,
	attrs core.VoiceAttributes,
	opts Options,
) (*Stream, error) {
	return e.GenerateStream(ctx, Request{
		Text:       text,
		Voice:      "",
		Reference:  nil,
		Attributes: &attrs,
		Options:    opts,
	})
}

// Generate is the fully parameterized batch operation: it validates the
// request, segments the text, invokes the backend once per chunk in order,
// and returns the concatenated waveform. If any chunk fails, the whole call
// fails and no partial waveform is returned.
func (e *Engine) Generate(ctx context.Context, req Request) ([]int16, error) {
	template, chunks, err := e.prepare(&req)
	if err != nil {
		return nil, err
	}

	e.log.Info(logFmtBatchStart, len(chunks))

	waveforms := make([][]int16, 0, len(chunks))

	for i, chunk := range chunks {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf(errFmtChunkFailed, i+1, len(chunks), ctxErr)
		}

		chunkReq := template
		chunkReq.Text = chunk

		waveform, genErr := e.backend.Generate(ctx, chunkReq)
		if genErr != nil {
			return nil, fmt.Errorf(errFmtChunkFailed, i+1, len(chunks), genErr)
		}

		waveforms = append(waveforms, waveform)
		e.log.Info(logFmtChunkDone, i+1, len(chunks), len(waveform))
	}

	combined := audio.Concat(waveforms...)
	e.log.Info(logFmtBatchDone, len(combined), len(chunks))

	return combined, nil
}

// GenerateStream is the fully parameterized streaming operation. Frames
// arrive in strict (chunk, frame) order; see Stream for the delivery and
// failure contract.
func (e *Engine) GenerateStream(ctx context.Context, req Request) (*Stream, error) {
	template, chunks, err := e.prepare(&req)
	if err != nil {
		return nil, err
	}

	e.log.Info(logFmtStreamStart, len(chunks))

	return newStream(ctx, e.backend, template, chunks), nil
}

// prepare validates the request and segments its text. It performs no
// backend work, so configuration errors fail fast with no partial output.
func (e *Engine) prepare(req *Request) (core.ChunkRequest, []string, error) {
	req.Options = req.Options.withDefaults()

	err := req.validate()
	if err != nil {
		return core.ChunkRequest{}, nil, fmt.Errorf(errFmtInvalidRequest, err)
	}

	chunks, err := segment.Split(req.Text, e.tokens, req.Options.segmentOptions())
	if err != nil {
		return core.ChunkRequest{}, nil, fmt.Errorf(errFmtSegmentation, err)
	}

	return req.template(), chunks, nil
}

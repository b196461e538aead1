package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/book-expert/speech-engine/internal/core"
)

// ErrStreamClosed is returned by Recv after the caller has closed the stream.
var ErrStreamClosed = errors.New("stream is closed")

// Stream is a pull-based sequence of audio frames spanning every chunk of a
// streaming generation call, in strict left-to-right chunk order. Recv
// returns io.EOF after the final frame of the final chunk. A backend failure
// is terminal: Recv returns it for the current and all subsequent calls;
// frames delivered before the failure stand.
//
// The backend for chunk N+1 is not contacted until the caller has pulled
// every frame of chunk N, so abandoning the stream with Close issues no
// further backend calls.
type Stream struct {
	mu       sync.Mutex
	ctx      context.Context
	backend  core.Backend
	template core.ChunkRequest
	chunks   []string
	index    int
	current  core.FrameStream
	closed   bool
	terminal error
}

func newStream(
	ctx context.Context,
	backend core.Backend,
	template core.ChunkRequest,
	chunks []string,
) *Stream {
	return &Stream{
		mu:       sync.Mutex{},
		ctx:      ctx,
		backend:  backend,
		template: template,
		chunks:   chunks,
		index:    0,
		current:  nil,
		closed:   false,
		terminal: nil,
	}
}

// Recv returns the next audio frame. It blocks while the backend produces
// one, returns io.EOF once all chunks are exhausted, and returns a terminal
// error if generation fails or the context is cancelled.
func (s *Stream) Recv() (core.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.terminal != nil {
			return nil, s.terminal
		}

		if s.closed {
			return nil, ErrStreamClosed
		}

		ctxErr := s.ctx.Err()
		if ctxErr != nil {
			s.failLocked(ctxErr)

			return nil, s.terminal
		}

		if s.current == nil {
			if s.index >= len(s.chunks) {
				return nil, io.EOF
			}

			openErr := s.openChunkLocked()
			if openErr != nil {
				return nil, openErr
			}
		}

		frame, err := s.current.Recv()
		if err == nil {
			return frame, nil
		}

		s.finishChunkLocked()

		if errors.Is(err, io.EOF) {
			// Chunk complete; advance to the next one.
			s.index++

			continue
		}

		s.failLocked(fmt.Errorf(
			"chunk %d/%d generation failed: %w",
			s.index+1,
			len(s.chunks),
			err,
		))

		return nil, s.terminal
	}
}

// Close abandons the stream. The in-flight chunk's backend stream is closed
// and no backend call is made for any remaining chunk. Close is safe to call
// more than once and after EOF.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.finishChunkLocked()

	return nil
}

// Chunks reports how many text chunks the stream spans.
func (s *Stream) Chunks() int {
	return len(s.chunks)
}

func (s *Stream) openChunkLocked() error {
	req := s.template
	req.Text = s.chunks[s.index]

	frameStream, err := s.backend.GenerateStream(s.ctx, req)
	if err != nil {
		s.failLocked(fmt.Errorf(
			"chunk %d/%d generation failed: %w",
			s.index+1,
			len(s.chunks),
			err,
		))

		return s.terminal
	}

	s.current = frameStream

	return nil
}

func (s *Stream) finishChunkLocked() {
	if s.current == nil {
		return
	}

	// A close failure cannot be surfaced usefully mid-stream; the frame
	// data already delivered is unaffected.
	_ = s.current.Close()
	s.current = nil
}

func (s *Stream) failLocked(err error) {
	s.terminal = err
	s.finishChunkLocked()
}

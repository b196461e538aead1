// Package engine_test tests batch and streaming orchestration against a mock
// inference backend.
package engine_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-engine/internal/core"
	"github.com/book-expert/speech-engine/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockBackend = errors.New("mock backend failure")

// countWords counts one token per whitespace-separated word.
func countWords(text string) int {
	return len(strings.Fields(text))
}

// mockBackend synthesizes recognizable waveforms: chunk N produces frames
// tagged [chunkIndex, frameIndex], so ordering is observable end to end.
type mockBackend struct {
	mu             sync.Mutex
	calls          []core.ChunkRequest
	streamCalls    int
	framesPerChunk int
	failOnCall     int // 1-based call number that fails; 0 means never
	failMidStream  bool
}

func (m *mockBackend) Generate(
	_ context.Context,
	req core.ChunkRequest,
) ([]int16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	call := len(m.calls)

	if m.failOnCall == call {
		return nil, errMockBackend
	}

	waveform := make([]int16, 0, m.framesPerChunk*2)
	for frame := range m.framesPerChunk {
		waveform = append(waveform, int16(call-1), int16(frame))
	}

	return waveform, nil
}

func (m *mockBackend) GenerateStream(
	_ context.Context,
	req core.ChunkRequest,
) (core.FrameStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	m.streamCalls++
	call := len(m.calls)

	if m.failOnCall == call && !m.failMidStream {
		return nil, errMockBackend
	}

	return &mockFrameStream{
		chunk:     call - 1,
		total:     m.framesPerChunk,
		next:      0,
		failAfter: m.failMidStream && m.failOnCall == call,
		closed:    false,
	}, nil
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

func (m *mockBackend) call(i int) core.ChunkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[i]
}

type mockFrameStream struct {
	chunk     int
	total     int
	next      int
	failAfter bool
	closed    bool
}

func (s *mockFrameStream) Recv() (core.Frame, error) {
	if s.next >= s.total {
		if s.failAfter {
			return nil, errMockBackend
		}

		return nil, io.EOF
	}

	frame := core.Frame{int16(s.chunk), int16(s.next)}
	s.next++

	return frame, nil
}

func (s *mockFrameStream) Close() error {
	s.closed = true

	return nil
}

func newTestEngine(t *testing.T, backend core.Backend) *engine.Engine {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "engine-test.log")
	require.NoError(t, err)

	eng, err := engine.New(backend, countWords, testLogger)
	require.NoError(t, err)

	return eng
}

// threeChunkOptions segments threeChunkText into exactly three chunks.
func threeChunkOptions() engine.Options {
	opts := engine.DefaultOptions()
	opts.WindowSize = 5
	opts.LengthThreshold = 1

	return opts
}

const threeChunkText = "Alpha beta gamma delta. Epsilon zeta eta theta. " +
	"Iota kappa lambda mu."

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "engine-test.log")
	require.NoError(t, err)

	_, err = engine.New(nil, countWords, testLogger)
	require.ErrorIs(t, err, engine.ErrNilBackend)

	_, err = engine.New(&mockBackend{}, nil, testLogger)
	require.ErrorIs(t, err, engine.ErrNilTokenCounter)

	_, err = engine.New(&mockBackend{}, countWords, nil)
	require.ErrorIs(t, err, engine.ErrNilLogger)
}

func TestGenerate_RequestValidation(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 2}
	eng := newTestEngine(t, backend)
	ctx := context.Background()

	tests := []struct {
		name     string
		request  engine.Request
		expected error
	}{
		{
			name:     "empty text",
			request:  engine.Request{Text: "", Options: engine.Options{}},
			expected: core.ErrEmptyText,
		},
		{
			name: "conflicting voice contexts",
			request: engine.Request{
				Text:  "Hello.",
				Voice: "narrator",
				Reference: &core.CloneReference{
					Audio:      []byte{1},
					Transcript: "",
				},
				Options: engine.Options{},
			},
			expected: engine.ErrVoiceContextConflict,
		},
		{
			name: "empty reference audio",
			request: engine.Request{
				Text: "Hello.",
				Reference: &core.CloneReference{
					Audio:      nil,
					Transcript: "",
				},
				Options: engine.Options{},
			},
			expected: core.ErrReferenceAudioEmpty,
		},
		{
			name: "unknown gender",
			request: engine.Request{
				Text: "Hello.",
				Attributes: &core.VoiceAttributes{
					Gender: "robot",
					Pitch:  core.LevelModerate,
					Speed:  core.LevelModerate,
				},
				Options: engine.Options{},
			},
			expected: core.ErrUnsupportedGender,
		},
		{
			name: "negative temperature",
			request: engine.Request{
				Text:    "Hello.",
				Options: engine.Options{Temperature: -0.1},
			},
			expected: engine.ErrTemperatureRange,
		},
		{
			name: "top_p above one",
			request: engine.Request{
				Text:    "Hello.",
				Options: engine.Options{TopP: 1.5},
			},
			expected: engine.ErrTopPRange,
		},
		{
			name: "negative max tokens",
			request: engine.Request{
				Text:    "Hello.",
				Options: engine.Options{MaxTokens: -1},
			},
			expected: engine.ErrMaxTokensRange,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := eng.Generate(ctx, testCase.request)
			require.ErrorIs(t, err, testCase.expected)
		})
	}

	// Configuration errors must fail fast, before any backend work.
	assert.Zero(t, backend.callCount())
}

func TestGenerate_DefaultsApplied(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 1}
	eng := newTestEngine(t, backend)

	_, err := eng.Speak(context.Background(), "", "Hello world.", engine.Options{})
	require.NoError(t, err)

	require.Equal(t, 1, backend.callCount())

	sampling := backend.call(0).Sampling
	assert.InEpsilon(t, engine.DefaultTemperature, sampling.Temperature, 0.001)
	assert.Equal(t, engine.DefaultTopK, sampling.TopK)
	assert.InEpsilon(t, engine.DefaultTopP, sampling.TopP, 0.001)
	assert.Equal(t, engine.DefaultMaxTokens, sampling.MaxTokens)
}

func TestGenerate_SingleChunkForShortText(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 3}
	eng := newTestEngine(t, backend)

	waveform, err := eng.Speak(
		context.Background(),
		"narrator",
		"Hello world. This is a test.",
		engine.DefaultOptions(),
	)
	require.NoError(t, err)

	// Both sentences fit one window, so exactly one backend call is made.
	require.Equal(t, 1, backend.callCount())
	assert.Equal(t, "Hello world. This is a test.", backend.call(0).Text)
	assert.Equal(t, "narrator", backend.call(0).Voice)
	assert.Len(t, waveform, 6)
}

func TestGenerate_MultiChunkConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 2}
	eng := newTestEngine(t, backend)

	waveform, err := eng.Generate(context.Background(), engine.Request{
		Text:       threeChunkText,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options:    threeChunkOptions(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, backend.callCount())

	// Waveform length equals the sum of per-chunk waveforms, in chunk
	// order: [chunk, frame] pairs for chunks 0..2.
	expected := []int16{0, 0, 0, 1, 1, 0, 1, 1, 2, 0, 2, 1}
	assert.Equal(t, expected, waveform)

	assert.Equal(t, "Alpha beta gamma delta.", backend.call(0).Text)
	assert.Equal(t, "Epsilon zeta eta theta.", backend.call(1).Text)
	assert.Equal(t, "Iota kappa lambda mu.", backend.call(2).Text)
}

func TestGenerate_BackendFailureAbortsWholeCall(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 2, failOnCall: 2}
	eng := newTestEngine(t, backend)

	waveform, err := eng.Generate(context.Background(), engine.Request{
		Text:       threeChunkText,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options:    threeChunkOptions(),
	})
	require.ErrorIs(t, err, errMockBackend)
	assert.Contains(t, err.Error(), "chunk 2/3")

	// No partial waveform, and no call for the third chunk.
	assert.Nil(t, waveform)
	assert.Equal(t, 2, backend.callCount())
}

func TestGenerate_ContextCancelled(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 1}
	eng := newTestEngine(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Speak(ctx, "", "Hello world.", engine.DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, backend.callCount())
}

func TestGenerateStream_OrderedFrames(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 3}
	eng := newTestEngine(t, backend)

	stream, err := eng.GenerateStream(context.Background(), engine.Request{
		Text:       threeChunkText,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options:    threeChunkOptions(),
	})
	require.NoError(t, err)

	defer func() {
		require.NoError(t, stream.Close())
	}()

	assert.Equal(t, 3, stream.Chunks())

	var frames []core.Frame

	for {
		frame, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}

		require.NoError(t, recvErr)

		frames = append(frames, frame)
	}

	require.Len(t, frames, 9)

	// Emission order must be monotonically non-decreasing in
	// (chunk, frame).
	lastChunk, lastFrame := int16(-1), int16(-1)
	for _, frame := range frames {
		require.Len(t, frame, 2)

		chunk, frameIndex := frame[0], frame[1]
		if chunk == lastChunk {
			assert.Greater(t, frameIndex, lastFrame)
		} else {
			assert.Greater(t, chunk, lastChunk)
			assert.Zero(t, frameIndex)
		}

		lastChunk, lastFrame = chunk, frameIndex
	}

	// EOF is sticky.
	_, err = stream.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestGenerateStream_CloseStopsFurtherBackendCalls(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 2}
	eng := newTestEngine(t, backend)

	stream, err := eng.GenerateStream(context.Background(), engine.Request{
		Text:       threeChunkText,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options:    threeChunkOptions(),
	})
	require.NoError(t, err)

	// Pull exactly the first chunk's frames.
	for range 2 {
		_, recvErr := stream.Recv()
		require.NoError(t, recvErr)
	}

	require.NoError(t, stream.Close())

	// Only the first chunk ever reached the backend.
	assert.Equal(t, 1, backend.callCount())

	_, err = stream.Recv()
	require.ErrorIs(t, err, engine.ErrStreamClosed)
}

func TestGenerateStream_MidStreamFailureIsTerminal(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 2, failOnCall: 2, failMidStream: true}
	eng := newTestEngine(t, backend)

	stream, err := eng.GenerateStream(context.Background(), engine.Request{
		Text:       threeChunkText,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options:    threeChunkOptions(),
	})
	require.NoError(t, err)

	// First chunk's frames are delivered intact.
	var delivered []core.Frame

	var recvErr error

	for {
		var frame core.Frame

		frame, recvErr = stream.Recv()
		if recvErr != nil {
			break
		}

		delivered = append(delivered, frame)
	}

	// Chunk one delivered fully, chunk two delivered its frames and then
	// failed instead of ending cleanly.
	require.ErrorIs(t, recvErr, errMockBackend)
	assert.Contains(t, recvErr.Error(), "chunk 2/3")
	assert.Len(t, delivered, 4)

	// The failure is terminal and sticky; the third chunk is never
	// attempted.
	_, err = stream.Recv()
	require.ErrorIs(t, err, errMockBackend)
	assert.Equal(t, 2, backend.callCount())
}

func TestGenerateStream_ContextCancelledBetweenChunks(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 1}
	eng := newTestEngine(t, backend)

	ctx, cancel := context.WithCancel(context.Background())

	stream, err := eng.GenerateStream(ctx, engine.Request{
		Text:       threeChunkText,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options:    threeChunkOptions(),
	})
	require.NoError(t, err)

	_, err = stream.Recv()
	require.NoError(t, err)

	cancel()

	_, err = stream.Recv()
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, backend.callCount())
}

func TestCloneVoiceAndDesignVoicePassContext(t *testing.T) {
	t.Parallel()

	backend := &mockBackend{framesPerChunk: 1}
	eng := newTestEngine(t, backend)
	ctx := context.Background()

	ref := core.CloneReference{
		Audio:      []byte{0x52, 0x49, 0x46, 0x46},
		Transcript: "reference words",
	}

	_, err := eng.CloneVoice(ctx, "Hello there.", ref, engine.DefaultOptions())
	require.NoError(t, err)

	attrs := core.VoiceAttributes{
		Gender: core.GenderMale,
		Pitch:  core.LevelHigh,
		Speed:  core.LevelLow,
	}

	_, err = eng.DesignVoice(ctx, "Hello again.", attrs, engine.DefaultOptions())
	require.NoError(t, err)

	require.Equal(t, 2, backend.callCount())

	cloneCall := backend.call(0)
	require.NotNil(t, cloneCall.Reference)
	assert.Equal(t, ref.Audio, cloneCall.Reference.Audio)
	assert.Equal(t, "reference words", cloneCall.Reference.Transcript)
	assert.Nil(t, cloneCall.Attributes)

	designCall := backend.call(1)
	require.NotNil(t, designCall.Attributes)
	assert.Equal(t, attrs, *designCall.Attributes)
	assert.Nil(t, designCall.Reference)
}

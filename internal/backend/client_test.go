// Package backend_test tests the HTTP inference client against a stub
// service.
package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/backend"
	"github.com/book-expert/speech-engine/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func sampleRequest() core.ChunkRequest {
	return core.ChunkRequest{
		Text:       "Hello world.",
		Voice:      "narrator",
		Reference:  nil,
		Attributes: nil,
		Sampling: core.SamplingParams{
			Temperature: 0.9,
			TopK:        50,
			TopP:        0.95,
			MaxTokens:   4096,
		},
	}
}

func decodeWireRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)

	var wire map[string]any

	require.NoError(t, json.Unmarshal(body, &wire))

	return wire
}

func TestClient_Generate(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1000, -1000, 500}

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/generate/speech", r.URL.Path)

			wire := decodeWireRequest(t, r)
			assert.Equal(t, "Hello world.", wire["text"])
			assert.Equal(t, "narrator", wire["voice"])
			assert.InEpsilon(t, 0.9, wire["temperature"], 0.001)

			wav, err := audio.EncodeWAV(samples, audio.DefaultFormat())
			require.NoError(t, err)

			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(wav)
		},
	))
	defer server.Close()

	client := backend.New(server.URL, testTimeout)

	waveform, err := client.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, samples, waveform)
}

func TestClient_Generate_CloneContextOnWire(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			wire := decodeWireRequest(t, r)

			// encoding/json transports []byte as base64.
			assert.NotEmpty(t, wire["reference_audio"])
			assert.Equal(t, "the reference", wire["reference_text"])
			assert.Nil(t, wire["voice"])

			wav, err := audio.EncodeWAV([]int16{1}, audio.DefaultFormat())
			require.NoError(t, err)

			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(wav)
		},
	))
	defer server.Close()

	client := backend.New(server.URL, testTimeout)

	req := sampleRequest()
	req.Voice = ""
	req.Reference = &core.CloneReference{
		Audio:      []byte("fake-wav-bytes"),
		Transcript: "the reference",
	}

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
}

func TestClient_Generate_StructuredError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"detail":     "model exploded",
				"error_code": "MODEL_FAILURE",
			})
		},
	))
	defer server.Close()

	client := backend.New(server.URL, testTimeout)

	_, err := client.Generate(context.Background(), sampleRequest())
	require.ErrorIs(t, err, backend.ErrServiceFailure)
	assert.Contains(t, err.Error(), "model exploded")
	assert.Contains(t, err.Error(), "MODEL_FAILURE")
}

func TestClient_Generate_WrongContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("not audio"))
		},
	))
	defer server.Close()

	client := backend.New(server.URL, testTimeout)

	_, err := client.Generate(context.Background(), sampleRequest())
	require.ErrorIs(t, err, backend.ErrUnexpectedContentType)
}

func TestClient_Generate_EmptyText(t *testing.T) {
	t.Parallel()

	client := backend.New("http://127.0.0.1:1", testTimeout)

	req := sampleRequest()
	req.Text = ""

	_, err := client.Generate(context.Background(), req)
	require.ErrorIs(t, err, core.ErrEmptyText)
}

func TestClient_GenerateStream(t *testing.T) {
	t.Parallel()

	// Ten full frames plus a short final frame.
	samples := make([]int16, backend.DefaultFrameSamples*2+10)
	for i := range samples {
		samples[i] = int16(i)
	}

	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/generate/speech/stream", r.URL.Path)

			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(audio.Bytes(samples))
		},
	))
	defer server.Close()

	client := backend.New(server.URL, testTimeout)

	stream, err := client.GenerateStream(context.Background(), sampleRequest())
	require.NoError(t, err)

	defer func() {
		require.NoError(t, stream.Close())
	}()

	var received []int16

	frames := 0

	for {
		frame, recvErr := stream.Recv()
		if recvErr != nil {
			require.ErrorIs(t, recvErr, io.EOF)

			break
		}

		frames++

		received = append(received, frame...)
	}

	assert.Equal(t, 3, frames)
	assert.Equal(t, samples, received)
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		},
	))
	defer healthy.Close()

	client := backend.New(healthy.URL, testTimeout)
	require.NoError(t, client.Health(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	defer unhealthy.Close()

	client = backend.New(unhealthy.URL, testTimeout)
	require.ErrorIs(t, client.Health(context.Background()), backend.ErrServiceFailure)
}

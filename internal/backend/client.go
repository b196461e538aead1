// Package backend implements the core.Backend capability against a
// standalone speech inference HTTP service. It encapsulates the wire
// contract: JSON requests carrying text, sampling parameters, and voice
// context; WAV responses for batch calls; raw PCM16 chunked responses for
// streaming calls.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/core"
)

// API endpoints.
const (
	apiGenerate       = "/v1/generate/speech"
	apiGenerateStream = "/v1/generate/speech/stream"
	apiHealth         = "/health"
)

// HTTP headers and content types.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypePCM    = "application/octet-stream"
)

// DefaultFrameSamples is how many samples each streamed frame carries: 1024
// samples, 64 ms of audio at the fixed sample rate.
const DefaultFrameSamples = 1024

// Static errors.
var (
	// ErrEmptyAudio indicates a successful response with no audio data.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrUnexpectedContentType indicates a response in the wrong format.
	ErrUnexpectedContentType = errors.New("unexpected response content type")
	// ErrServiceFailure indicates a non-OK response from the service.
	ErrServiceFailure = errors.New("inference service error")
)

// generateRequest is the JSON payload of both generation endpoints.
// ReferenceAudio is the raw WAV sample for voice cloning; encoding/json
// transports it base64-encoded.
type generateRequest struct {
	Text           string  `json:"text"`
	Voice          string  `json:"voice,omitempty"`
	ReferenceAudio []byte  `json:"reference_audio,omitempty"`
	ReferenceText  string  `json:"reference_text,omitempty"`
	Gender         string  `json:"gender,omitempty"`
	Pitch          string  `json:"pitch,omitempty"`
	Speed          string  `json:"speed,omitempty"`
	Temperature    float64 `json:"temperature"`
	TopK           int     `json:"top_k"`
	TopP           float64 `json:"top_p"`
	MaxTokens      int     `json:"max_tokens"`
}

// errorResponse is the structured error body returned by the service.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client is an HTTP implementation of core.Backend. It is safe for
// concurrent use; the underlying http.Client handles connection pooling.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	frameSamples int
}

// New creates a client for the inference service at baseURL (protocol and
// port included, e.g. "http://localhost:8000"). The timeout bounds every
// request including streamed body reads.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:      baseURL,
		frameSamples: DefaultFrameSamples,
	}
}

// Generate synthesizes one chunk and returns its full waveform. The service
// responds with a WAV file image, which is decoded to raw samples here.
func (c *Client) Generate(
	ctx context.Context,
	req core.ChunkRequest,
) ([]int16, error) {
	resp, err := c.post(ctx, apiGenerate, contentTypeWAV, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	wavData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	if len(wavData) == 0 {
		return nil, ErrEmptyAudio
	}

	samples, _, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio response: %w", err)
	}

	return samples, nil
}

// GenerateStream synthesizes one chunk incrementally. The service responds
// with a chunked body of raw little-endian PCM16; the returned stream slices
// it into frames of c.frameSamples samples as bytes arrive.
func (c *Client) GenerateStream(
	ctx context.Context,
	req core.ChunkRequest,
) (core.FrameStream, error) {
	resp, err := c.post(ctx, apiGenerateStream, contentTypePCM, req)
	if err != nil {
		return nil, err
	}

	return &pcmStream{
		body:      resp.Body,
		frameSize: c.frameSamples * audio.BytesPerSample,
	}, nil
}

// Health verifies the inference service is up. Callers should probe it
// before large workloads to fail fast with clear diagnostics.
func (c *Client) Health(ctx context.Context) error {
	url := c.baseURL + apiHealth

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed for %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(
			"%w: health check returned %s",
			ErrServiceFailure,
			resp.Status,
		)
	}

	return nil
}

// post sends a generation request and validates the response status and
// content type. The caller owns the response body on success.
func (c *Client) post(
	ctx context.Context,
	path, accept string,
	req core.ChunkRequest,
) (*http.Response, error) {
	err := req.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid chunk request: %w", err)
	}

	body, err := json.Marshal(buildWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to reach inference service at %s: %w",
			c.baseURL,
			err,
		)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, c.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != accept {
		defer resp.Body.Close()

		return nil, fmt.Errorf(
			"%w: expected %s, got %s",
			ErrUnexpectedContentType,
			accept,
			contentType,
		)
	}

	return resp, nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the
// raw body so diagnostics are never lost.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var structured errorResponse

	err := json.NewDecoder(resp.Body).Decode(&structured)
	if err == nil && structured.Detail != "" {
		return fmt.Errorf(
			"%w: %s: %s (code: %s)",
			ErrServiceFailure,
			resp.Status,
			structured.Detail,
			structured.ErrorCode,
		)
	}

	raw, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"%w: %s: %s",
		ErrServiceFailure,
		resp.Status,
		string(raw),
	)
}

func buildWireRequest(req core.ChunkRequest) generateRequest {
	wire := generateRequest{
		Text:           req.Text,
		Voice:          req.Voice,
		ReferenceAudio: nil,
		ReferenceText:  "",
		Gender:         "",
		Pitch:          "",
		Speed:          "",
		Temperature:    req.Sampling.Temperature,
		TopK:           req.Sampling.TopK,
		TopP:           req.Sampling.TopP,
		MaxTokens:      req.Sampling.MaxTokens,
	}

	if req.Reference != nil {
		wire.ReferenceAudio = req.Reference.Audio
		wire.ReferenceText = req.Reference.Transcript
	}

	if req.Attributes != nil {
		wire.Gender = string(req.Attributes.Gender)
		wire.Pitch = string(req.Attributes.Pitch)
		wire.Speed = string(req.Attributes.Speed)
	}

	return wire
}

// pcmStream adapts a chunked PCM16 response body to core.FrameStream.
type pcmStream struct {
	body      io.ReadCloser
	frameSize int
	done      bool
}

// Recv reads the next frame from the response body. The final frame may be
// shorter than the configured frame size.
func (s *pcmStream) Recv() (core.Frame, error) {
	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, s.frameSize)

	n, err := io.ReadFull(s.body, buf)
	if errors.Is(err, io.EOF) {
		s.done = true

		return nil, io.EOF
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		// Short final frame.
		s.done = true

		return audio.Samples(buf[:n]), nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read audio stream: %w", err)
	}

	return audio.Samples(buf), nil
}

// Close drops the connection; safe to call at any point in the stream.
func (s *pcmStream) Close() error {
	err := s.body.Close()
	if err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}

	return nil
}

// Package httpapi exposes the speech engine over HTTP: one route per
// generation family, each in batch and streaming form, plus a health probe.
// Batch routes respond with a complete WAV file; streaming routes respond
// with raw little-endian PCM16 written frame by frame.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/core"
	"github.com/book-expert/speech-engine/internal/engine"
)

// Content types served.
const (
	contentTypeWAV = "audio/wav"
	contentTypePCM = "application/octet-stream"
)

// Generator is the slice of the engine the API serves. *engine.Engine
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req engine.Request) ([]int16, error)
	GenerateStream(ctx context.Context, req engine.Request) (*engine.Stream, error)
}

// Server wires the generation routes onto a gin router.
type Server struct {
	generator Generator
	log       *logger.Logger
	router    *gin.Engine
}

// generateBody is the JSON request body shared by all generation routes.
// Each route restricts which voice-context fields it reads.
type generateBody struct {
	Text            string  `json:"text"             binding:"required"`
	Voice           string  `json:"voice"`
	ReferenceAudio  []byte  `json:"reference_audio"`
	ReferenceText   string  `json:"reference_text"`
	Gender          string  `json:"gender"`
	Pitch           string  `json:"pitch"`
	Speed           string  `json:"speed"`
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"top_k"`
	TopP            float64 `json:"top_p"`
	MaxTokens       int     `json:"max_tokens"`
	WindowSize      int     `json:"window_size"`
	LengthThreshold int     `json:"length_threshold"`
}

// New creates the HTTP server around a generator.
func New(generator Generator, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		generator: generator,
		log:       log,
		router:    gin.New(),
	}

	server.router.Use(server.recoverPanics())
	server.registerRoutes()

	return server
}

// Router exposes the configured routes, primarily for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves the API on addr until the listener fails.
func (s *Server) Run(addr string) error {
	err := s.router.Run(addr)
	if err != nil {
		return fmt.Errorf("http api server failed: %w", err)
	}

	return nil
}

// recoverPanics turns handler panics into 500 responses, except for
// http.ErrAbortHandler, which must reach net/http so it severs the
// connection instead of finalizing the response.
func (s *Server) recoverPanics() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			err, ok := recovered.(error)
			if ok && errors.Is(err, http.ErrAbortHandler) {
				panic(recovered)
			}

			s.log.Error(
				"Panic in handler %s: %v",
				c.Request.URL.Path,
				recovered,
			)
			c.AbortWithStatus(http.StatusInternalServerError)
		}()

		c.Next()
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/v1")
	v1.POST("/speak", s.handleBatch(buildSpeakRequest))
	v1.POST("/speak/stream", s.handleStream(buildSpeakRequest))
	v1.POST("/clone", s.handleBatch(buildCloneRequest))
	v1.POST("/clone/stream", s.handleStream(buildCloneRequest))
	v1.POST("/voice", s.handleBatch(buildVoiceRequest))
	v1.POST("/voice/stream", s.handleStream(buildVoiceRequest))
	v1.POST("/generate", s.handleBatch(buildGenericRequest))
	v1.POST("/generate/stream", s.handleStream(buildGenericRequest))
}

// requestBuilder maps one route's body onto an engine request.
type requestBuilder func(body *generateBody) engine.Request

func buildSpeakRequest(body *generateBody) engine.Request {
	req := baseRequest(body)
	req.Voice = body.Voice

	return req
}

func buildCloneRequest(body *generateBody) engine.Request {
	req := baseRequest(body)
	req.Reference = &core.CloneReference{
		Audio:      body.ReferenceAudio,
		Transcript: body.ReferenceText,
	}

	return req
}

func buildVoiceRequest(body *generateBody) engine.Request {
	req := baseRequest(body)

	attrs := attributesFromBody(body)
	req.Attributes = &attrs

	return req
}

// attributesFromBody fills the unset voice descriptors with their defaults, so
// a body naming only a gender still yields a complete attribute tuple.
func attributesFromBody(body *generateBody) core.VoiceAttributes {
	attrs := core.DefaultVoiceAttributes()
	if body.Gender != "" {
		attrs.Gender = core.Gender(body.Gender)
	}

	if body.Pitch != "" {
		attrs.Pitch = core.Level(body.Pitch)
	}

	if body.Speed != "" {
		attrs.Speed = core.Level(body.Speed)
	}

	return attrs
}

// buildGenericRequest forwards every field; the engine enforces
// voice-context exclusivity.
func buildGenericRequest(body *generateBody) engine.Request {
	req := baseRequest(body)
	req.Voice = body.Voice

	if len(body.ReferenceAudio) > 0 || body.ReferenceText != "" {
		req.Reference = &core.CloneReference{
			Audio:      body.ReferenceAudio,
			Transcript: body.ReferenceText,
		}
	}

	if body.Gender != "" || body.Pitch != "" || body.Speed != "" {
		attrs := attributesFromBody(body)
		req.Attributes = &attrs
	}

	return req
}

func baseRequest(body *generateBody) engine.Request {
	return engine.Request{
		Text:       body.Text,
		Voice:      "",
		Reference:  nil,
		Attributes: nil,
		Options: engine.Options{
			Temperature:     body.Temperature,
			TopK:            body.TopK,
			TopP:            body.TopP,
			MaxTokens:       body.MaxTokens,
			WindowSize:      body.WindowSize,
			LengthThreshold: body.LengthThreshold,
			Split:           nil,
		},
	}
}

// handleBatch runs a batch generation and responds with a WAV file.
func (s *Server) handleBatch(build requestBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := s.bindBody(c)
		if !ok {
			return
		}

		waveform, err := s.generator.Generate(c.Request.Context(), build(body))
		if err != nil {
			s.respondError(c, err)

			return
		}

		wavData, err := audio.EncodeWAV(waveform, audio.DefaultFormat())
		if err != nil {
			s.respondError(c, err)

			return
		}

		c.Data(http.StatusOK, contentTypeWAV, wavData)
	}
}

// handleStream runs a streaming generation and writes raw PCM16 frames as
// they arrive, flushing after each one. A failure before the first frame
// maps to a JSON error; once frames are on the wire the connection is cut,
// which the chunked encoding reports to the client as a truncated body.
func (s *Server) handleStream(build requestBuilder) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := s.bindBody(c)
		if !ok {
			return
		}

		stream, err := s.generator.GenerateStream(c.Request.Context(), build(body))
		if err != nil {
			s.respondError(c, err)

			return
		}

		defer func() {
			closeErr := stream.Close()
			if closeErr != nil {
				s.log.Warn("Failed to close stream: %v", closeErr)
			}
		}()

		started := false

		for {
			frame, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}

			if recvErr != nil {
				if !started {
					s.respondError(c, recvErr)

					return
				}

				s.log.Error("Stream aborted mid-flight: %v", recvErr)
				s.severConnection(c)

				return
			}

			if !started {
				c.Header("Content-Type", contentTypePCM)
				c.Status(http.StatusOK)

				started = true
			}

			_, writeErr := c.Writer.Write(audio.Bytes(frame))
			if writeErr != nil {
				s.log.Warn("Client went away mid-stream: %v", writeErr)

				return
			}

			c.Writer.Flush()
		}
	}
}

// severConnection cuts the underlying TCP connection without writing the
// terminating chunk, so the client reads an error instead of a clean EOF. A
// chunked response that merely stops would be indistinguishable from a short
// but successful generation.
func (s *Server) severConnection(c *gin.Context) {
	hijacker, ok := c.Writer.(http.Hijacker)
	if !ok {
		// HTTP/2 writers cannot be hijacked; aborting the handler has
		// the same effect there.
		panic(http.ErrAbortHandler)
	}

	conn, _, err := hijacker.Hijack()
	if err != nil {
		panic(http.ErrAbortHandler)
	}

	closeErr := conn.Close()
	if closeErr != nil {
		s.log.Warn("Failed to close hijacked connection: %v", closeErr)
	}
}

func (s *Server) bindBody(c *gin.Context) (*generateBody, bool) {
	var body generateBody

	err := c.ShouldBindJSON(&body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})

		return nil, false
	}

	return &body, true
}

// respondError maps configuration errors to 400 and backend failures to 502,
// mirroring the error taxonomy of the engine.
func (s *Server) respondError(c *gin.Context, err error) {
	s.log.Error("Generation request failed: %v", err)

	status := http.StatusBadGateway
	if isConfigurationError(err) {
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{"detail": err.Error()})
}

func isConfigurationError(err error) bool {
	configurationErrors := []error{
		core.ErrEmptyText,
		core.ErrReferenceAudioEmpty,
		core.ErrUnsupportedGender,
		core.ErrUnsupportedPitch,
		core.ErrUnsupportedSpeed,
		engine.ErrVoiceContextConflict,
		engine.ErrTemperatureRange,
		engine.ErrTopKRange,
		engine.ErrTopPRange,
		engine.ErrMaxTokensRange,
	}

	for _, known := range configurationErrors {
		if errors.Is(err, known) {
			return true
		}
	}

	return false
}

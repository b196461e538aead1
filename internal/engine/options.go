package engine

import (
	"errors"
	"fmt"

	"github.com/book-expert/speech-engine/internal/core"
	"github.com/book-expert/speech-engine/internal/segment"
)

// Named generation defaults. A zero value in Options means "use the default";
// explicit values are validated against the ranges documented on
// core.SamplingParams.
const (
	// DefaultTemperature is the default sampling temperature.
	DefaultTemperature = 0.9
	// DefaultTopK is the default top-k truncation.
	DefaultTopK = 50
	// DefaultTopP is the default nucleus sampling threshold.
	DefaultTopP = 0.95
	// DefaultMaxTokens is the default cap on generated output tokens.
	DefaultMaxTokens = 4096
)

// Static validation errors.
var (
	// ErrTemperatureRange indicates a negative sampling temperature.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrTopKRange indicates a non-positive top-k.
	ErrTopKRange = errors.New("top_k must be positive")
	// ErrTopPRange indicates a top-p outside (0.0, 1.0].
	ErrTopPRange = errors.New("top_p must be in (0.0, 1.0]")
	// ErrMaxTokensRange indicates a non-positive max token budget.
	ErrMaxTokensRange = errors.New("max_tokens must be positive")
)

// Options carry the sampling and chunking parameters accepted by every
// generation entry point. Pass the zero value for all defaults, or start from
// DefaultOptions and override individual fields.
type Options struct {
	// Temperature controls decoding randomness; higher means more varied
	// prosody. Defaults to DefaultTemperature.
	Temperature float64

	// TopK truncates the candidate distribution before sampling.
	// Defaults to DefaultTopK.
	TopK int

	// TopP is the nucleus sampling threshold. Defaults to DefaultTopP.
	TopP float64

	// MaxTokens caps generated output length per chunk. Defaults to
	// DefaultMaxTokens.
	MaxTokens int

	// WindowSize is the chunking token budget. Defaults to
	// segment.DefaultWindowSize.
	WindowSize int

	// LengthThreshold is the minimum chunk size for the merge pass.
	// Defaults to segment.DefaultLengthThreshold.
	LengthThreshold int

	// Split overrides the built-in sentence boundary detector.
	Split core.SplitFunc
}

// DefaultOptions returns every parameter at its documented default.
func DefaultOptions() Options {
	return Options{
		Temperature:     DefaultTemperature,
		TopK:            DefaultTopK,
		TopP:            DefaultTopP,
		MaxTokens:       DefaultMaxTokens,
		WindowSize:      segment.DefaultWindowSize,
		LengthThreshold: segment.DefaultLengthThreshold,
		Split:           nil,
	}
}

// withDefaults fills zero-valued fields with the named defaults.
func (o Options) withDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = DefaultTemperature
	}

	if o.TopK == 0 {
		o.TopK = DefaultTopK
	}

	if o.TopP == 0 {
		o.TopP = DefaultTopP
	}

	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}

	if o.WindowSize == 0 {
		o.WindowSize = segment.DefaultWindowSize
	}

	if o.LengthThreshold == 0 {
		o.LengthThreshold = segment.DefaultLengthThreshold
	}

	return o
}

// validate checks sampling ranges after defaults have been applied. Chunking
// parameters are validated by the segmenter.
func (o Options) validate() error {
	if o.Temperature < 0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, o.Temperature)
	}

	if o.TopK <= 0 {
		return fmt.Errorf("%w: got %d", ErrTopKRange, o.TopK)
	}

	if o.TopP <= 0 || o.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, o.TopP)
	}

	if o.MaxTokens <= 0 {
		return fmt.Errorf("%w: got %d", ErrMaxTokensRange, o.MaxTokens)
	}

	return nil
}

func (o Options) sampling() core.SamplingParams {
	return core.SamplingParams{
		Temperature: o.Temperature,
		TopK:        o.TopK,
		TopP:        o.TopP,
		MaxTokens:   o.MaxTokens,
	}
}

func (o Options) segmentOptions() segment.Options {
	return segment.Options{
		WindowSize:      o.WindowSize,
		LengthThreshold: o.LengthThreshold,
		Split:           o.Split,
	}
}

// Package segment splits arbitrary-length text into boundedly-sized chunks
// for per-chunk speech generation. Chunks respect the token budget of the
// consuming model and never break mid-sentence unless a sentence alone has no
// natural boundary to break at.
package segment

import (
	"errors"
	"strings"

	"github.com/book-expert/speech-engine/internal/core"
)

// Default chunking parameters, matching the engine's generation defaults.
const (
	// DefaultWindowSize is the target maximum number of tokens per chunk.
	DefaultWindowSize = 50
	// DefaultLengthThreshold is the minimum chunk size below which a chunk
	// is merged forward into its successor.
	DefaultLengthThreshold = 50
)

// Static errors.
var (
	// ErrNilTokenCounter indicates that no token counter was supplied.
	ErrNilTokenCounter = errors.New("token counter cannot be nil")
	// ErrWindowSizeRange indicates a non-positive window size.
	ErrWindowSizeRange = errors.New("window size must be positive")
	// ErrLengthThresholdRange indicates a negative length threshold.
	ErrLengthThresholdRange = errors.New("length threshold must be non-negative")
)

// Options configure one segmentation pass.
type Options struct {
	// WindowSize is the target maximum tokens per chunk. A single sentence
	// whose token count exceeds it still becomes its own chunk, never
	// truncated or broken.
	WindowSize int

	// LengthThreshold is the minimum tokens per chunk. After greedy
	// accumulation, any chunk below it is merged into the chunk that
	// follows; the final chunk has no successor and is kept as-is.
	LengthThreshold int

	// Split overrides the built-in sentence boundary detector.
	Split core.SplitFunc
}

// DefaultOptions returns the standard chunking parameters.
func DefaultOptions() Options {
	return Options{
		WindowSize:      DefaultWindowSize,
		LengthThreshold: DefaultLengthThreshold,
		Split:           nil,
	}
}

// Split divides text into an ordered sequence of chunks, each within the
// token budget given by opts.WindowSize as measured by count. The
// concatenation of the returned chunks reproduces the input content with
// sentence-level fidelity. Empty input yields an empty sequence.
func Split(text string, count core.TokenCounter, opts Options) ([]string, error) {
	if count == nil {
		return nil, ErrNilTokenCounter
	}

	if opts.WindowSize <= 0 {
		return nil, ErrWindowSizeRange
	}

	if opts.LengthThreshold < 0 {
		return nil, ErrLengthThresholdRange
	}

	splitFn := opts.Split
	if splitFn == nil {
		splitFn = SplitSentences
	}

	units := expandOversizedUnits(splitFn(text), count, opts.WindowSize)
	if len(units) == 0 {
		return nil, nil
	}

	chunks := accumulate(units, count, opts.WindowSize)
	chunks = mergeShortChunks(chunks, count, opts.LengthThreshold)

	return joinChunks(chunks), nil
}

// accumulate greedily packs consecutive units into chunks while the running
// token count stays within the window. A unit that alone exceeds the window
// becomes its own chunk.
func accumulate(units []string, count core.TokenCounter, window int) [][]string {
	var (
		chunks  [][]string
		current []string
		tokens  int
	)

	for _, unit := range units {
		unitTokens := count(unit)

		if len(current) > 0 && tokens+unitTokens > window {
			chunks = append(chunks, current)
			current = nil
			tokens = 0
		}

		current = append(current, unit)
		tokens += unitTokens
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}

// mergeShortChunks folds every chunk below the threshold into the chunk that
// follows it, so pathologically tiny chunks never reach the backend on their
// own. The final chunk has no successor and is kept regardless of size.
func mergeShortChunks(
	chunks [][]string,
	count core.TokenCounter,
	threshold int,
) [][]string {
	if threshold <= 0 || len(chunks) < 2 {
		return chunks
	}

	merged := make([][]string, 0, len(chunks))

	var carry []string

	for i, chunk := range chunks {
		chunk = append(carry, chunk...)
		carry = nil

		isLast := i == len(chunks)-1
		if !isLast && chunkTokens(chunk, count) < threshold {
			carry = chunk

			continue
		}

		merged = append(merged, chunk)
	}

	return merged
}

func chunkTokens(units []string, count core.TokenCounter) int {
	total := 0
	for _, unit := range units {
		total += count(unit)
	}

	return total
}

// expandOversizedUnits force-splits units that exceed the window yet carry no
// sentence-ending punctuation, such as a long run of unpunctuated text. Units
// that end at a real sentence boundary stay atomic regardless of size.
func expandOversizedUnits(
	units []string,
	count core.TokenCounter,
	window int,
) []string {
	expanded := make([]string, 0, len(units))

	for _, unit := range units {
		unit = strings.TrimSpace(unit)
		if unit == "" {
			continue
		}

		if count(unit) <= window || hasSentenceTerminator(unit) {
			expanded = append(expanded, unit)

			continue
		}

		expanded = append(expanded, splitByLength(unit, count, window)...)
	}

	return expanded
}

// splitByLength breaks a terminator-less unit into word runs that each fit
// the window. A single word over the window is kept whole; there is nothing
// smaller to split to.
func splitByLength(unit string, count core.TokenCounter, window int) []string {
	words := strings.Fields(unit)

	var (
		pieces  []string
		current []string
		tokens  int
	)

	for _, word := range words {
		wordTokens := count(word)

		if len(current) > 0 && tokens+wordTokens > window {
			pieces = append(pieces, strings.Join(current, " "))
			current = nil
			tokens = 0
		}

		current = append(current, word)
		tokens += wordTokens
	}

	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}

	return pieces
}

func joinChunks(chunks [][]string) []string {
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, strings.Join(chunk, " "))
	}

	return out
}

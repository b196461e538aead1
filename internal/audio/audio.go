// Package audio provides waveform assembly and WAV encoding for the speech
// engine. All audio in this system is mono 16-bit PCM at a fixed sample rate;
// this package owns that contract.
package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/speech-engine/internal/core"
)

// Fixed PCM format parameters.
const (
	// BitDepth is the sample width in bits.
	BitDepth = 16
	// Channels is the channel count; output is always mono.
	Channels = 1
	// BytesPerSample is the sample width in bytes.
	BytesPerSample = BitDepth / 8
)

// Validation limits.
const (
	maxSampleRate = 192000
)

// ErrInvalidFormat indicates PCM format parameters outside supported bounds.
var ErrInvalidFormat = errors.New("invalid PCM format")

// Format describes a PCM stream. The engine always produces the default
// format; Format exists so collaborators that persist or play audio can
// validate what they are handed.
type Format struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// DefaultFormat returns the engine's output format: mono PCM16 at the fixed
// core sample rate.
func DefaultFormat() Format {
	return Format{
		SampleRate: core.SampleRate,
		BitDepth:   BitDepth,
		Channels:   Channels,
	}
}

// Validate checks the format parameters against supported bounds.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > maxSampleRate {
		return fmt.Errorf(
			"%w: sample rate must be between 1 and %d Hz, got %d",
			ErrInvalidFormat,
			maxSampleRate,
			f.SampleRate,
		)
	}

	if f.BitDepth != BitDepth {
		return fmt.Errorf(
			"%w: bit depth must be %d, got %d",
			ErrInvalidFormat,
			BitDepth,
			f.BitDepth,
		)
	}

	if f.Channels != Channels {
		return fmt.Errorf(
			"%w: channels must be %d, got %d",
			ErrInvalidFormat,
			Channels,
			f.Channels,
		)
	}

	return nil
}

// Concat joins per-chunk waveforms into one waveform, preserving order.
func Concat(waveforms ...[]int16) []int16 {
	total := 0
	for _, w := range waveforms {
		total += len(w)
	}

	out := make([]int16, 0, total)
	for _, w := range waveforms {
		out = append(out, w...)
	}

	return out
}

// Duration reports the playback time of a waveform at the given sample rate.
func Duration(samples int, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}

	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Bytes converts samples to little-endian PCM16 bytes, the layout used both
// in WAV data blocks and on the streaming wire.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}

	return out
}

// Samples converts little-endian PCM16 bytes back into samples. A trailing
// odd byte is dropped.
func Samples(data []byte) []int16 {
	n := len(data) / BytesPerSample

	out := make([]int16, n)
	for i := range n {
		out[i] = int16(data[2*i]) | int16(data[2*i+1])<<8
	}

	return out
}

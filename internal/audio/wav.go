package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// RIFF/WAVE layout constants for uncompressed PCM.
const (
	riffHeaderSize = 44
	fmtChunkSize   = 16
	pcmAudioFormat = 1
)

// Static errors.
var (
	// ErrNotWAV indicates data that does not start with a RIFF/WAVE header.
	ErrNotWAV = errors.New("data is not a RIFF/WAVE file")
	// ErrUnsupportedWAV indicates a WAV variant other than mono PCM16.
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// EncodeWAV wraps a waveform in a RIFF/WAVE container with a PCM16 data
// block. The result is a complete file image ready to persist or serve.
func EncodeWAV(samples []int16, format Format) ([]byte, error) {
	err := format.Validate()
	if err != nil {
		return nil, fmt.Errorf("cannot encode WAV: %w", err)
	}

	dataSize := len(samples) * BytesPerSample
	byteRate := format.SampleRate * format.Channels * BytesPerSample
	blockAlign := format.Channels * BytesPerSample

	buf := bytes.NewBuffer(make([]byte, 0, riffHeaderSize+dataSize))

	buf.WriteString("RIFF")
	writeU32(buf, uint32(riffHeaderSize-8+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(buf, fmtChunkSize)
	writeU16(buf, pcmAudioFormat)
	writeU16(buf, uint16(format.Channels))
	writeU32(buf, uint32(format.SampleRate))
	writeU32(buf, uint32(byteRate))
	writeU16(buf, uint16(blockAlign))
	writeU16(buf, uint16(format.BitDepth))

	buf.WriteString("data")
	writeU32(buf, uint32(dataSize))
	buf.Write(Bytes(samples))

	return buf.Bytes(), nil
}

// DecodeWAV extracts the waveform from a mono PCM16 WAV file image, such as
// a clone reference sample uploaded by a caller.
func DecodeWAV(data []byte) ([]int16, Format, error) {
	if len(data) < riffHeaderSize ||
		string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	format := Format{
		SampleRate: 0,
		BitDepth:   0,
		Channels:   0,
	}

	// Walk the chunk list; fmt must precede data.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkSize > len(data) {
			return nil, Format{}, fmt.Errorf(
				"%w: truncated %q chunk",
				ErrNotWAV,
				chunkID,
			)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < fmtChunkSize {
				return nil, Format{}, fmt.Errorf(
					"%w: short fmt chunk",
					ErrNotWAV,
				)
			}

			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			format.BitDepth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))

			if audioFormat != pcmAudioFormat ||
				format.Channels != Channels ||
				format.BitDepth != BitDepth {
				return nil, Format{}, fmt.Errorf(
					"%w: want mono %d-bit PCM",
					ErrUnsupportedWAV,
					BitDepth,
				)
			}
		case "data":
			if format.SampleRate == 0 {
				return nil, Format{}, fmt.Errorf(
					"%w: data chunk before fmt",
					ErrNotWAV,
				)
			}

			return Samples(data[body : body+chunkSize]), format, nil
		}

		// Chunks are word aligned.
		offset = body + chunkSize + chunkSize%2
	}

	return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var scratch [2]byte

	binary.LittleEndian.PutUint16(scratch[:], v)
	buf.Write(scratch[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte

	binary.LittleEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}

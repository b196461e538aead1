// Package playback plays rendered speech on the local audio device. It is
// used by the command line client only; the service never touches audio
// hardware.
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/core"
)

// pollInterval is how often playback completion is checked.
const pollInterval = 50 * time.Millisecond

// ErrNoAudio indicates an attempt to play an empty waveform.
var ErrNoAudio = errors.New("no audio samples to play")

// Player owns the audio device context. It plays mono PCM16 at the engine's
// fixed sample rate. Only one context may exist per process, so create a
// single Player and reuse it.
type Player struct {
	context *oto.Context
}

// New opens the audio device and blocks until it is ready.
func New() (*Player, error) {
	options := &oto.NewContextOptions{
		SampleRate:   core.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	context, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}

	<-ready

	return &Player{context: context}, nil
}

// PlayWaveform plays a complete waveform and blocks until it finishes.
func (p *Player) PlayWaveform(waveform []int16) error {
	if len(waveform) == 0 {
		return ErrNoAudio
	}

	return p.play(bytes.NewReader(audio.Bytes(waveform)))
}

// PlayStream plays frames as they arrive from the stream, blocking until the
// stream ends or fails. The stream is not closed; that stays with the caller.
func (p *Player) PlayStream(stream core.FrameStream) error {
	pipeReader, pipeWriter := io.Pipe()

	go func() {
		for {
			frame, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				_ = pipeWriter.Close()

				return
			}

			if err != nil {
				_ = pipeWriter.CloseWithError(err)

				return
			}

			_, writeErr := pipeWriter.Write(audio.Bytes(frame))
			if writeErr != nil {
				return
			}
		}
	}()

	return p.play(pipeReader)
}

// play drains the reader through the audio device.
func (p *Player) play(reader io.Reader) error {
	player := p.context.NewPlayer(reader)
	player.Play()

	for player.IsPlaying() {
		time.Sleep(pollInterval)
	}

	playErr := player.Err()
	if playErr != nil {
		_ = player.Close()

		return fmt.Errorf("playback failed: %w", playErr)
	}

	err := player.Close()
	if err != nil {
		return fmt.Errorf("failed to close audio player: %w", err)
	}

	return nil
}

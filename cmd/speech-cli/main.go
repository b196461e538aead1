// main package for the speech-cli client. It talks to the inference backend
// directly, renders speech on the command line, and can write a WAV file or
// play the audio locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/backend"
	"github.com/book-expert/speech-engine/internal/core"
	"github.com/book-expert/speech-engine/internal/engine"
	"github.com/book-expert/speech-engine/internal/playback"
	"github.com/book-expert/speech-engine/internal/segment"
)

// Flag descriptions.
const (
	flagTextDesc    = "Text to convert to speech"
	flagFileDesc    = "Read the text from this file instead of --text"
	flagVoiceDesc   = "Preset voice name"
	flagRefDesc     = "Reference audio file (WAV) for voice cloning"
	flagRefTextDesc = "Transcript of the reference audio (improves cloning)"
	flagGenderDesc  = "Designed voice gender (female, male)"
	flagPitchDesc   = "Designed voice pitch (very_low, low, moderate, high, very_high)"
	flagSpeedDesc   = "Designed voice speed (very_low, low, moderate, high, very_high)"
	flagStreamDesc  = "Stream frames instead of waiting for the full waveform"
	flagOutputDesc  = "Output file path (.wav)"
	flagPlayDesc    = "Play the audio on the local audio device"
	flagURLDesc     = "Inference backend base URL"
	flagTimeoutDesc = "Per-request timeout"
	flagHealthDesc  = "Check backend health and exit"
)

// Error messages.
const (
	errEitherTextOrFile = "either --text or --file must be provided"
	errCannotBoth       = "cannot specify both --text and --file"
	errNothingToDo      = "nothing to do: pass --output or --play"
)

const (
	defaultBackendURL = "http://localhost:8000"
	defaultTimeout    = 5 * time.Minute
	logFileName       = "speech-cli.log"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text    string
	file    string
	voice   string
	ref     string
	refText string
	gender  string
	pitch   string
	speed   string
	stream  bool
	output  string
	play    bool
	url     string
	timeout time.Duration
	health  bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	cliLogger, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		_ = cliLogger.Close()
	}()

	client := backend.New(flags.url, flags.timeout)

	ctx := context.Background()

	if flags.health {
		return handleHealthCheck(ctx, client)
	}

	speechEngine, err := engine.New(client, segment.CountWords, cliLogger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	request, err := buildRequest(&flags)
	if err != nil {
		return err
	}

	if flags.stream {
		return handleStream(ctx, speechEngine, request, &flags)
	}

	return handleBatch(ctx, speechEngine, request, &flags)
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.file, "file", "", flagFileDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.StringVar(&flags.ref, "ref", "", flagRefDesc)
	flag.StringVar(&flags.refText, "ref-text", "", flagRefTextDesc)
	flag.StringVar(&flags.gender, "gender", "", flagGenderDesc)
	flag.StringVar(&flags.pitch, "pitch", "", flagPitchDesc)
	flag.StringVar(&flags.speed, "speed", "", flagSpeedDesc)
	flag.BoolVar(&flags.stream, "stream", false, flagStreamDesc)
	flag.StringVar(&flags.output, "output", "", flagOutputDesc)
	flag.BoolVar(&flags.play, "play", false, flagPlayDesc)
	flag.StringVar(&flags.url, "url", defaultBackendURL, flagURLDesc)
	flag.DurationVar(&flags.timeout, "timeout", defaultTimeout, flagTimeoutDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.Parse()

	return flags
}

func handleHealthCheck(ctx context.Context, client *backend.Client) error {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := client.Health(healthCtx)
	if err != nil {
		fmt.Printf("Backend is not healthy: %v\n", err)

		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("Backend is healthy")

	return nil
}

// buildRequest assembles the generation request from the flags. Voice-context
// exclusivity is left to the engine, which reports conflicts precisely.
func buildRequest(flags *appFlags) (engine.Request, error) {
	text, err := loadText(flags)
	if err != nil {
		return engine.Request{}, err
	}

	request := engine.Request{
		Text:       text,
		Voice:      flags.voice,
		Reference:  nil,
		Attributes: nil,
		Options:    engine.DefaultOptions(),
	}

	if flags.ref != "" {
		refAudio, readErr := os.ReadFile(flags.ref)
		if readErr != nil {
			return engine.Request{}, fmt.Errorf(
				"failed to read reference audio: %w",
				readErr,
			)
		}

		request.Reference = &core.CloneReference{
			Audio:      refAudio,
			Transcript: flags.refText,
		}
	}

	if flags.gender != "" || flags.pitch != "" || flags.speed != "" {
		attrs := core.DefaultVoiceAttributes()
		if flags.gender != "" {
			attrs.Gender = core.Gender(flags.gender)
		}

		if flags.pitch != "" {
			attrs.Pitch = core.Level(flags.pitch)
		}

		if flags.speed != "" {
			attrs.Speed = core.Level(flags.speed)
		}

		request.Attributes = &attrs
	}

	return request, nil
}

func loadText(flags *appFlags) (string, error) {
	if flags.text == "" && flags.file == "" {
		flag.Usage()

		return "", errors.New(errEitherTextOrFile)
	}

	if flags.text != "" && flags.file != "" {
		return "", errors.New(errCannotBoth)
	}

	if flags.text != "" {
		return flags.text, nil
	}

	data, err := os.ReadFile(flags.file)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}

	return string(data), nil
}

// handleBatch renders the full waveform, then writes and/or plays it.
func handleBatch(
	ctx context.Context,
	speechEngine *engine.Engine,
	request engine.Request,
	flags *appFlags,
) error {
	if flags.output == "" && !flags.play {
		return errors.New(errNothingToDo)
	}

	waveform, err := speechEngine.Generate(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to generate speech: %w", err)
	}

	fmt.Printf(
		"Generated %s of audio\n",
		audio.Duration(len(waveform), core.SampleRate),
	)

	if flags.output != "" {
		err = writeWAV(flags.output, waveform)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", flags.output)
	}

	if flags.play {
		player, playerErr := playback.New()
		if playerErr != nil {
			return fmt.Errorf("failed to open audio device: %w", playerErr)
		}

		err = player.PlayWaveform(waveform)
		if err != nil {
			return fmt.Errorf("failed to play audio: %w", err)
		}
	}

	return nil
}

// handleStream renders frames incrementally. With --play the frames reach the
// audio device as they arrive; with --output they are collected into a WAV.
func handleStream(
	ctx context.Context,
	speechEngine *engine.Engine,
	request engine.Request,
	flags *appFlags,
) error {
	if flags.output == "" && !flags.play {
		return errors.New(errNothingToDo)
	}

	stream, err := speechEngine.GenerateStream(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	defer func() {
		_ = stream.Close()
	}()

	if flags.play {
		player, playerErr := playback.New()
		if playerErr != nil {
			return fmt.Errorf("failed to open audio device: %w", playerErr)
		}

		err = player.PlayStream(stream)
		if err != nil {
			return fmt.Errorf("streamed playback failed: %w", err)
		}

		return nil
	}

	waveform, err := collectFrames(stream)
	if err != nil {
		return err
	}

	err = writeWAV(flags.output, waveform)
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", flags.output)

	return nil
}

func collectFrames(stream *engine.Stream) ([]int16, error) {
	var waveform []int16

	for {
		frame, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return waveform, nil
		}

		if err != nil {
			return nil, fmt.Errorf("stream failed: %w", err)
		}

		waveform = append(waveform, frame...)
	}
}

func writeWAV(path string, waveform []int16) error {
	wavData, err := audio.EncodeWAV(waveform, audio.DefaultFormat())
	if err != nil {
		return fmt.Errorf("failed to encode WAV: %w", err)
	}

	err = os.WriteFile(path, wavData, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Package worker provides a NATS worker that renders speech jobs: it
// downloads job text from the object store, runs batch generation, and
// uploads the rendered WAV under a fresh audio key.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-engine/internal/audio"
	"github.com/book-expert/speech-engine/internal/config"
	"github.com/book-expert/speech-engine/internal/core"
	"github.com/book-expert/speech-engine/internal/engine"
)

const handleMessageTimeout = 5 * time.Minute

// Static errors.
var (
	// ErrJobTemperatureRange indicates a negative job temperature.
	ErrJobTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrJobTopPRange indicates a job top_p outside [0.0, 1.0].
	ErrJobTopPRange = errors.New("top_p must be between 0.0 and 1.0")
)

// Speaker is the slice of the engine the worker drives; batch generation in
// a named voice. *engine.Engine satisfies it.
type Speaker interface {
	Speak(
		ctx context.Context,
		voice, text string,
		opts engine.Options,
	) ([]int16, error)
}

// Worker listens for speech jobs on a NATS subject and processes them.
type Worker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	speaker        Speaker
	defaults       config.EngineConfig
	log            *logger.Logger
}

// New creates a worker bound to the given subject.
func New(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	speaker Speaker,
	defaults config.EngineConfig,
	log *logger.Logger,
) (*Worker, error) {
	return &Worker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		speaker:        speaker,
		defaults:       defaults,
		log:            log,
	}, nil
}

// Run subscribes and blocks until the context is cancelled, then drains the
// subscription.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *Worker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		w.log.Error("Failed to unmarshal event: %v", err)

		return
	}

	audioKey, processErr := w.processJob(ctx, &event)
	if processErr != nil {
		w.log.Error(
			"Failed to process speech job for workflow %s: %v",
			event.Header.WorkflowID,
			processErr,
		)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReply(msg, replyEvent)
	if err != nil {
		w.log.Error(
			"Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID,
			err,
		)
	}
}

// processJob downloads the job text, renders it, and uploads the WAV.
func (w *Worker) processJob(
	ctx context.Context,
	event *events.TextProcessedEvent,
) (string, error) {
	err := validateJob(event)
	if err != nil {
		return "", err
	}

	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf(
			"failed to download text data for key '%s': %w",
			event.TextKey,
			err,
		)
	}

	waveform, err := w.speaker.Speak(
		ctx,
		w.jobVoice(event),
		string(textData),
		w.jobOptions(event),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate speech: %w", err)
	}

	wavData, err := audio.EncodeWAV(waveform, audio.DefaultFormat())
	if err != nil {
		return "", fmt.Errorf("failed to encode WAV: %w", err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, wavData)
	if err != nil {
		return "", fmt.Errorf(
			"failed to upload audio data for key '%s': %w",
			audioKey,
			err,
		)
	}

	w.log.Info(
		"Rendered %d samples (%s) for workflow %s",
		len(waveform),
		audio.Duration(len(waveform), core.SampleRate),
		event.Header.WorkflowID,
	)

	// The input text is consumed; deleting it keeps the bucket from
	// growing without bound. The rendered audio is the job's product, so a
	// cleanup failure is not a job failure.
	deleteErr := w.store.Delete(ctx, event.TextKey)
	if deleteErr != nil {
		w.log.Warn(
			"Failed to delete consumed text key '%s': %v",
			event.TextKey,
			deleteErr,
		)
	}

	return audioKey, nil
}

// jobVoice picks the event's voice, falling back to the configured default.
func (w *Worker) jobVoice(event *events.TextProcessedEvent) string {
	if event.Voice != "" {
		return event.Voice
	}

	return w.defaults.Voice
}

// jobOptions merges per-job sampling overrides onto the configured engine
// defaults. Zero event fields mean "use the default".
func (w *Worker) jobOptions(event *events.TextProcessedEvent) engine.Options {
	opts := engine.Options{
		Temperature:     w.defaults.Temperature,
		TopK:            w.defaults.TopK,
		TopP:            w.defaults.TopP,
		MaxTokens:       w.defaults.MaxTokens,
		WindowSize:      w.defaults.WindowSize,
		LengthThreshold: w.defaults.LengthThreshold,
		Split:           nil,
	}

	if event.Temperature != 0 {
		opts.Temperature = event.Temperature
	}

	if event.TopP != 0 {
		opts.TopP = event.TopP
	}

	return opts
}

// validateJob rejects out-of-range job parameters before any work happens.
func validateJob(event *events.TextProcessedEvent) error {
	if event.Temperature < 0 {
		return fmt.Errorf("%w: got %f", ErrJobTemperatureRange, event.Temperature)
	}

	if event.TopP < 0 || event.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrJobTopPRange, event.TopP)
	}

	return nil
}

func (w *Worker) publishReply(
	msg *nats.Msg,
	replyEvent *events.AudioChunkCreatedEvent,
) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

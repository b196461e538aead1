// Package config_test tests the configuration loading for the speech-engine
// service.
package config_test

import (
	"testing"

	"github.com/book-expert/speech-engine/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[nats]
url = "nats://127.0.0.1:4222"
speech_stream_name = "SPEECH_JOBS"
speech_consumer_name = "speech-workers"
text_processed_subject = "text.processed"
audio_chunk_created_subject = "audio.chunk.created"
audio_object_store_bucket = "AUDIO_FILES"

[engine]
voice = "narrator"
temperature = 0.9
top_k = 50
top_p = 0.95
max_tokens = 4096
window_size = 50
length_threshold = 50

[backend]
host = "127.0.0.1"
port = 8000
timeout_seconds = 300

[http]
listen_address = ":8080"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "SPEECH_JOBS", cfg.NATS.SpeechStreamName)
	assert.Equal(t, "speech-workers", cfg.NATS.SpeechConsumerName)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "audio.chunk.created", cfg.NATS.AudioChunkCreatedSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)

	assert.Equal(t, "narrator", cfg.Engine.Voice)
	assert.InEpsilon(t, 0.9, cfg.Engine.Temperature, 0.001)
	assert.Equal(t, 50, cfg.Engine.TopK)
	assert.InEpsilon(t, 0.95, cfg.Engine.TopP, 0.001)
	assert.Equal(t, 4096, cfg.Engine.MaxTokens)
	assert.Equal(t, 50, cfg.Engine.WindowSize)
	assert.Equal(t, 50, cfg.Engine.LengthThreshold)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backend.ServiceURL())
	assert.Equal(t, 300, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddress)
}

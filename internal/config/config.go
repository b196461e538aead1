// Package config provides the configuration structure for the speech-engine
// service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	SpeechStreamName         string `toml:"speech_stream_name"`
	SpeechConsumerName       string `toml:"speech_consumer_name"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
}

// EngineConfig holds generation and chunking defaults applied when a job
// does not specify its own.
type EngineConfig struct {
	Voice           string  `toml:"voice"`
	Temperature     float64 `toml:"temperature"`
	TopK            int     `toml:"top_k"`
	TopP            float64 `toml:"top_p"`
	MaxTokens       int     `toml:"max_tokens"`
	WindowSize      int     `toml:"window_size"`
	LengthThreshold int     `toml:"length_threshold"`
}

// BackendConfig holds the connection settings for the inference service.
type BackendConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// HTTPConfig holds the listen settings for the service's own HTTP API.
type HTTPConfig struct {
	ListenAddress string `toml:"listen_address"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS    NATSConfig    `toml:"nats"`
	Engine  EngineConfig  `toml:"engine"`
	Backend BackendConfig `toml:"backend"`
	HTTP    HTTPConfig    `toml:"http"`
	Paths   PathsConfig   `toml:"paths"`
}

// ServiceURL builds the base URL of the inference service.
func (b BackendConfig) ServiceURL() string {
	return fmt.Sprintf("http://%s:%d", b.Host, b.Port)
}

// Load loads the configuration for the speech-engine service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}

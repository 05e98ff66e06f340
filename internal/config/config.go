// Package config loads service configuration from defaults, an optional
// TOML file, and environment variables (in that order of precedence).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// Config is the root service configuration.
type Config struct {
	Service       ServiceConfig
	Capture       CaptureConfig
	STT           STTConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal   string `toml:"principal"`
	GRPCPort    string `toml:"grpc_port"`
	HTTPPort    string `toml:"http_port"`
	MetricsPort string `toml:"metrics_port"`
}

// CaptureConfig controls the recording session capture loop.
type CaptureConfig struct {
	BufferSeconds            int           `toml:"buffer_seconds"`
	FramesPerRead            int           `toml:"frames_per_read"`
	JoinTimeout              time.Duration `toml:"join_timeout"`
	TempDir                  string        `toml:"temp_dir"`
	MaxDuration              time.Duration `toml:"max_duration"`
	MaxConsecutiveReadErrors int           `toml:"max_consecutive_read_errors"`
	QueueSize                int           `toml:"queue_size"`
}

// STTConfig selects and tunes the transcription engine.
type STTConfig struct {
	Provider        string        `toml:"provider"` // mock, google, openai
	Language        string        `toml:"language"`
	InterimBeam     int           `toml:"interim_beam"`
	FinalBeam       int           `toml:"final_beam"`
	VADEnabled      bool          `toml:"vad_enabled"`
	VADMinSilenceMs int           `toml:"vad_min_silence_ms"`
	WindowTimeout   time.Duration `toml:"window_timeout"`
	RefineArchive   bool          `toml:"refine_archive"`
	OpenAIAPIKey    string        `toml:"openai_api_key"`
	OpenAIModel     string        `toml:"openai_model"`
	GoogleModel     string        `toml:"google_model"`
}

// KafkaConfig holds transcript event publishing settings.
type KafkaConfig struct {
	Enabled     bool     `toml:"enabled"`
	Brokers     []string `toml:"brokers"`
	TopicWindow string   `toml:"topic_window"`
	TopicFinal  string   `toml:"topic_final"`
	Principal   string   `toml:"principal"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   "svc-realtime-transcription",
			GRPCPort:    "50051",
			HTTPPort:    "8080",
			MetricsPort: "9090",
		},
		Capture: CaptureConfig{
			BufferSeconds:            3,
			FramesPerRead:            1024,
			JoinTimeout:              2 * time.Second,
			TempDir:                  os.TempDir(),
			MaxDuration:              4 * time.Hour,
			MaxConsecutiveReadErrors: 50,
			QueueSize:                32,
		},
		STT: STTConfig{
			Provider:        "mock",
			Language:        "en",
			InterimBeam:     5,
			FinalBeam:       10,
			VADEnabled:      true,
			VADMinSilenceMs: 500,
			WindowTimeout:   60 * time.Second,
			OpenAIModel:     "whisper-1",
			GoogleModel:     "latest_long",
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"localhost:9092"},
			TopicWindow: "session.transcript.window",
			TopicFinal:  "session.transcript.final",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load returns the configuration, applying CONFIG_FILE (if set) and then
// environment overrides on top of Defaults.
func Load() *Config {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring unreadable config file")
		}
	}

	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.MetricsPort = envOrDefault("METRICS_PORT", cfg.Service.MetricsPort)

	cfg.Capture.BufferSeconds = envOrDefaultInt("CAPTURE_BUFFER_SECONDS", cfg.Capture.BufferSeconds)
	cfg.Capture.FramesPerRead = envOrDefaultInt("CAPTURE_FRAMES_PER_READ", cfg.Capture.FramesPerRead)
	cfg.Capture.JoinTimeout = envOrDefaultDuration("CAPTURE_JOIN_TIMEOUT", cfg.Capture.JoinTimeout)
	cfg.Capture.TempDir = envOrDefault("CAPTURE_TEMP_DIR", cfg.Capture.TempDir)
	cfg.Capture.MaxDuration = envOrDefaultDuration("CAPTURE_MAX_DURATION", cfg.Capture.MaxDuration)
	cfg.Capture.MaxConsecutiveReadErrors = envOrDefaultInt("CAPTURE_MAX_READ_ERRORS", cfg.Capture.MaxConsecutiveReadErrors)
	cfg.Capture.QueueSize = envOrDefaultInt("CAPTURE_QUEUE_SIZE", cfg.Capture.QueueSize)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.Language = envOrDefault("STT_LANGUAGE", cfg.STT.Language)
	cfg.STT.InterimBeam = envOrDefaultInt("STT_INTERIM_BEAM", cfg.STT.InterimBeam)
	cfg.STT.FinalBeam = envOrDefaultInt("STT_FINAL_BEAM", cfg.STT.FinalBeam)
	cfg.STT.VADEnabled = envOrDefaultBool("STT_VAD_ENABLED", cfg.STT.VADEnabled)
	cfg.STT.VADMinSilenceMs = envOrDefaultInt("STT_VAD_MIN_SILENCE_MS", cfg.STT.VADMinSilenceMs)
	cfg.STT.WindowTimeout = envOrDefaultDuration("STT_WINDOW_TIMEOUT", cfg.STT.WindowTimeout)
	cfg.STT.RefineArchive = envOrDefaultBool("STT_REFINE_ARCHIVE", cfg.STT.RefineArchive)
	cfg.STT.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.STT.OpenAIAPIKey)
	cfg.STT.OpenAIModel = envOrDefault("STT_OPENAI_MODEL", cfg.STT.OpenAIModel)
	cfg.STT.GoogleModel = envOrDefault("STT_GOOGLE_MODEL", cfg.STT.GoogleModel)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.TopicWindow = envOrDefault("KAFKA_TOPIC_WINDOW", cfg.Kafka.TopicWindow)
	cfg.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", cfg.Kafka.TopicFinal)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

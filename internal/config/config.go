package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/vocab-recognizer/internal/constraint"
	"github.com/lexiqai/vocab-recognizer/internal/resilience"
	"github.com/lexiqai/vocab-recognizer/internal/vocab"
)

// Decoder backends
const (
	BackendVosk     = "vosk"
	BackendDeepgram = "deepgram"
)

// Config holds all configuration for the recognizer
type Config struct {
	// Vocabulary and model
	VocabPath         string `envconfig:"VOCAB_PATH" default:"split_words.txt"`
	VocabSkipComments bool   `envconfig:"VOCAB_SKIP_COMMENTS" default:"false"` // Treat '#' lines as comments
	ModelPath string `envconfig:"MODEL_PATH" default:""`     // Model directory (vosk) or model name (deepgram)
	ModelsDir string `envconfig:"MODELS_DIR" default:"models"` // Searched when MODEL_PATH is empty

	// Constraint selection. GRAMMAR_MODE is the grammar/bias switch; CONSTRAINT_MODE
	// (none, bias, grammar) overrides it when set.
	GrammarMode    bool   `envconfig:"GRAMMAR_MODE" default:"false"`
	ConstraintMode string `envconfig:"CONSTRAINT_MODE" default:""`

	// Grammar rule caps; zero means unbounded
	GrammarLongFunctionCap int `envconfig:"GRAMMAR_LONG_FUNCTION_CAP" default:"50"`
	GrammarActionCap       int `envconfig:"GRAMMAR_ACTION_CAP" default:"0"`
	GrammarTemperatureCap  int `envconfig:"GRAMMAR_TEMPERATURE_CAP" default:"30"`
	GrammarShortWordCap    int `envconfig:"GRAMMAR_SHORT_WORD_CAP" default:"50"`
	GrammarFallbackCap     int `envconfig:"GRAMMAR_FALLBACK_CAP" default:"100"`
	GrammarExpansionLimit  int `envconfig:"GRAMMAR_EXPANSION_LIMIT" default:"5000"` // Phrases expanded for the vosk recognizer

	// Decoder backend
	DecoderBackend string `envconfig:"DECODER_BACKEND" default:"vosk"` // vosk or deepgram
	VoskLogLevel   int    `envconfig:"VOSK_LOG_LEVEL" default:"-1"`

	// Deepgram STT API configuration
	DeepgramAPIKey      string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel       string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage    string `envconfig:"DEEPGRAM_LANGUAGE" default:"zh-CN"`
	DeepgramEndpointing string `envconfig:"DEEPGRAM_ENDPOINTING" default:"300"` // Milliseconds of silence ending an utterance

	// Audio configuration
	SampleRate      int    `envconfig:"SAMPLE_RATE" default:"16000"`
	FrameSize       int    `envconfig:"FRAME_SIZE" default:"4096"`        // Samples per decoder frame
	AudioBufferSize int    `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"` // Device buffer in samples
	AudioDevice     string `envconfig:"AUDIO_DEVICE" default:""`          // Device name substring; empty selects the default input
	AudioInputFile  string `envconfig:"AUDIO_INPUT_FILE" default:""`      // WAV file replayed instead of the microphone

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Audio device open attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Server and observability configuration
	Port           string `envconfig:"PORT" default:""`                // HTTP listener for health, metrics and events; empty disables it
	EventsEnabled  bool   `envconfig:"EVENTS_ENABLED" default:"true"`  // Serve hypotheses on /events
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field combinations envconfig cannot express
func (c *Config) Validate() error {
	switch c.DecoderBackend {
	case BackendVosk:
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for the deepgram backend")
		}
	default:
		return fmt.Errorf("DECODER_BACKEND must be %q or %q, got %q", BackendVosk, BackendDeepgram, c.DecoderBackend)
	}

	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("FRAME_SIZE must be positive, got %d", c.FrameSize)
	}
	if c.AudioBufferSize < 0 {
		return fmt.Errorf("AUDIO_BUFFER_SIZE must not be negative, got %d", c.AudioBufferSize)
	}

	mode, err := c.Mode()
	if err != nil {
		return err
	}
	if mode == constraint.ModeGrammar && c.DecoderBackend == BackendDeepgram {
		return fmt.Errorf("grammar mode is not supported by the deepgram backend")
	}
	return nil
}

// Mode returns the constraint mode selected by CONSTRAINT_MODE or GRAMMAR_MODE
func (c *Config) Mode() (constraint.Mode, error) {
	if c.ConstraintMode != "" {
		m, err := constraint.ParseMode(c.ConstraintMode)
		if err != nil {
			return "", fmt.Errorf("CONSTRAINT_MODE: %w", err)
		}
		return m, nil
	}
	return constraint.ModeFromFlag(c.GrammarMode), nil
}

// VocabOptions returns the vocabulary reader options
func (c *Config) VocabOptions() []vocab.Option {
	if c.VocabSkipComments {
		return []vocab.Option{vocab.SkipComments()}
	}
	return nil
}

// Caps returns the grammar rule caps
func (c *Config) Caps() constraint.Caps {
	return constraint.Caps{
		LongFunctionPhrase: c.GrammarLongFunctionCap,
		ActionWord:         c.GrammarActionCap,
		TemperaturePhrase:  c.GrammarTemperatureCap,
		ShortWord:          c.GrammarShortWordCap,
		Fallback:           c.GrammarFallbackCap,
	}
}

// RetryConfig returns the retry policy for opening the audio device
func (c *Config) RetryConfig() *resilience.RetryConfig {
	rc := resilience.DefaultRetryConfig()
	rc.MaxAttempts = c.RetryMaxAttempts
	rc.InitialBackoff = time.Duration(c.RetryInitialBackoff) * time.Millisecond
	return rc
}

// CircuitBreakerResetDuration returns the reset timeout as a duration
func (c *Config) CircuitBreakerResetDuration() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

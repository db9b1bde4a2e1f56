package tts

import (
	"log/slog"
	"time"
)

// Config holds the settings shared by the HTTP voices. OpenAI reads APIKey
// and Voice, Google reads Language, and both honour the rest.
type Config struct {
	APIKey   string
	Voice    string
	Language string

	// Endpoint replaces the voice's default URL.
	Endpoint string

	Timeout time.Duration

	// Attempts is the number of requests made before giving up on a
	// rate-limited or failing endpoint. Backoff grows linearly per attempt.
	Attempts int
	Backoff  time.Duration

	Logger *slog.Logger
}

// Option configures a voice.
type Option func(*Config)

// WithAPIKey sets the OpenAI key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithVoice selects the OpenAI voice, e.g. VoiceNova.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithLanguage sets the Google voice language, e.g. "en" or "de".
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithEndpoint points the voice at another URL.
func WithEndpoint(url string) Option {
	return func(c *Config) { c.Endpoint = url }
}

// WithRetry sets how many requests are made and the base delay between them.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.Attempts = attempts
		c.Backoff = backoff
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

func newConfig(opts []Option) *Config {
	c := &Config{
		Language: "en",
		Timeout:  15 * time.Second,
		Attempts: 3,
		Backoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Attempts < 1 {
		c.Attempts = 1
	}
	return c
}

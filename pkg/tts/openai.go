package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-presence/internal/httpc"
)

const (
	openAITTSURL = "https://api.openai.com/v1/audio/speech"
	openAIModel  = "tts-1"
	voiceOpenAI  = "openai"
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI speaks with the OpenAI speech endpoint and returns MP3.
type OpenAI struct {
	config   *Config
	client   *http.Client
	logger   *slog.Logger
	endpoint string
}

// NewOpenAI requires WithAPIKey. The voice defaults to VoiceShimmer.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := newConfig(opts)
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Voice == "" {
		cfg.Voice = VoiceShimmer
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = openAITTSURL
	}

	return &OpenAI{
		config:   cfg,
		client:   httpc.NewClient(cfg.Timeout),
		logger:   cfg.Logger.With("component", "tts.openai"),
		endpoint: endpoint,
	}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return voiceOpenAI }

// Synthesize converts text to MP3 audio.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, voiceError(voiceOpenAI, ErrEmptyText)
	}
	start := time.Now()

	body, err := json.Marshal(map[string]string{
		"model":           openAIModel,
		"voice":           o.config.Voice,
		"input":           text,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, voiceError(voiceOpenAI, err)
	}

	resp, err := doWithRetry(ctx, o.client, o.config, voiceOpenAI, o.logger, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, voiceError(voiceOpenAI, fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start).Milliseconds()

	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.Voice,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*OpenAI)(nil)

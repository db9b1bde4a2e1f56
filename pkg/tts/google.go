package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-presence/internal/httpc"
)

const (
	googleTTSURL = "https://translate.google.com/translate_tts"
	voiceGoogle  = "google"

	// googleMaxChars is the longest query the endpoint accepts.
	googleMaxChars = 100
)

// Google implements Provider with the keyless Google Translate voice.
// Long text is split on word boundaries and the MP3 pieces concatenated.
type Google struct {
	config   *Config
	client   *http.Client
	logger   *slog.Logger
	endpoint string
}

// NewGoogle creates a Google Translate TTS provider. No API key is needed.
func NewGoogle(opts ...Option) (*Google, error) {
	cfg := newConfig(opts)
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = googleTTSURL
	}

	return &Google{
		config:   cfg,
		client:   httpc.NewClient(cfg.Timeout),
		logger:   cfg.Logger.With("component", "tts.google"),
		endpoint: endpoint,
	}, nil
}

// Name implements Provider.
func (g *Google) Name() string { return voiceGoogle }

// Synthesize converts text to MP3 audio.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, voiceError(voiceGoogle, ErrEmptyText)
	}
	start := time.Now()

	parts := splitText(text, googleMaxChars)
	var audio bytes.Buffer
	for i, part := range parts {
		if err := g.fetch(ctx, part, i, len(parts), &audio); err != nil {
			return nil, err
		}
	}
	latency := time.Since(start).Milliseconds()

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"parts", len(parts),
		"bytes", audio.Len(),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio.Bytes(),
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (g *Google) fetch(ctx context.Context, part string, idx, total int, dst *bytes.Buffer) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.config.Language)
	q.Set("q", part)
	q.Set("idx", fmt.Sprint(idx))
	q.Set("total", fmt.Sprint(total))
	q.Set("textlen", fmt.Sprint(len(part)))
	target := g.endpoint + "?" + q.Encode()

	resp, err := doWithRetry(ctx, g.client, g.config, voiceGoogle, g.logger, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return voiceError(voiceGoogle, fmt.Errorf("read response: %w", err))
	}
	return nil
}

// Close releases resources.
func (g *Google) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// splitText breaks text into pieces of at most max bytes, preferring word
// boundaries. A single word longer than max is cut.
func splitText(text string, max int) []string {
	var parts []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}

	for _, word := range strings.Fields(text) {
		for len(word) > max {
			flush()
			parts = append(parts, word[:max])
			word = word[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	flush()
	return parts
}

var _ Provider = (*Google)(nil)

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/go-presence/internal/httpc"
)

// DefaultTranslateURL is Google's keyless translate endpoint.
const DefaultTranslateURL = "https://translate.googleapis.com/translate_a/single"

// Translator translates text with the keyless Google endpoint.
type Translator struct {
	baseURL string
	source  string
	target  string
	client  *http.Client
}

// TranslatorOption configures a Translator.
type TranslatorOption func(*Translator)

// WithLanguages sets the source and target languages. Source "auto" lets
// the service detect the language.
func WithLanguages(source, target string) TranslatorOption {
	return func(t *Translator) {
		t.source = source
		t.target = target
	}
}

// WithTranslateURL overrides the endpoint.
func WithTranslateURL(u string) TranslatorOption {
	return func(t *Translator) { t.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) TranslatorOption {
	return func(t *Translator) { t.client = c }
}

// NewTranslator creates a translator into English by default.
func NewTranslator(opts ...TranslatorOption) *Translator {
	t := &Translator{
		baseURL: DefaultTranslateURL,
		source:  "auto",
		target:  "en",
		client:  httpc.NewClient(10 * time.Second),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate returns the translation of text.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", t.source)
	q.Set("tl", t.target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("translate: build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError("translate", resp)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil || len(raw) == 0 {
		return "", fmt.Errorf("translate: %w", ErrBadResponse)
	}
	return joinSegments(raw[0])
}

// joinSegments concatenates the translated part of each sentence segment:
// [["Hola","Hello",...],["mundo","world",...]].
func joinSegments(data json.RawMessage) (string, error) {
	var segments [][]any
	if err := json.Unmarshal(data, &segments); err != nil {
		return "", fmt.Errorf("translate: %w: %v", ErrBadResponse, err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

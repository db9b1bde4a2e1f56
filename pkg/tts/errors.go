package tts

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoAPIKey is returned by NewOpenAI without a key.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrEmptyText is returned for blank input. A Chain does not fall back on it.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrNoVoices is returned by NewChain with nothing to chain.
	ErrNoVoices = errors.New("tts: no voices configured")
)

// APIError is a non-200 answer from a voice endpoint.
type APIError struct {
	Voice   string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("tts %s: status %d: %s", e.Voice, e.Status, msg)
}

// Transient reports whether repeating the request may succeed.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// voiceError prefixes err with the voice that produced it.
func voiceError(voice string, err error) error {
	return fmt.Errorf("tts %s: %w", voice, err)
}

// FallbackError lists why each voice of a Chain failed, in chain order.
type FallbackError struct {
	Errs []error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("tts: every voice failed: %v", errors.Join(e.Errs...))
}

func (e *FallbackError) Unwrap() []error {
	return e.Errs
}

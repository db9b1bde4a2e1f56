// Package agent holds the remote text collaborators of the command
// dispatcher: a Voiceflow dialog agent for the sub-mode and a keyless Google
// translator for unrecognized speech.
package agent

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrNoAPIKey is returned when a keyed service has no key configured.
	ErrNoAPIKey = errors.New("agent: API key is required")

	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("agent: text is empty")

	// ErrBadResponse is returned when a response body cannot be decoded.
	ErrBadResponse = errors.New("agent: unexpected response")
)

// APIError is a non-2xx response from a remote service.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsUnauthorized reports whether the credentials were rejected.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func readAPIError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &APIError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
}

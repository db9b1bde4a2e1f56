package tts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// doWithRetry sends the request built by newReq up to cfg.Attempts times,
// repeating transient API errors and transport failures with linear backoff.
// The returned response has status 200 or a non-transient error status.
func doWithRetry(ctx context.Context, client *http.Client, cfg *Config, voice string, logger *slog.Logger, newReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.Backoff * time.Duration(attempt-1)):
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, voiceError(voice, err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = voiceError(voice, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := parseError(resp, voice)
		resp.Body.Close()
		if !apiErr.Transient() {
			return nil, apiErr
		}
		lastErr = apiErr
		logger.Warn("retrying request", "attempt", attempt, "status", apiErr.Status)
	}

	return nil, lastErr
}

// parseError reads an error body, preferring the OpenAI JSON shape and
// falling back to the raw text.
func parseError(resp *http.Response, voice string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var decoded struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	e := &APIError{Voice: voice, Status: resp.StatusCode, Message: string(body)}
	if json.Unmarshal(body, &decoded) == nil && decoded.Error.Message != "" {
		e.Message = decoded.Error.Message
		e.Code = decoded.Error.Code
	}
	return e
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-presence/internal/httpc"
)

// DefaultVoiceflowURL is the Voiceflow dialog manager runtime.
const DefaultVoiceflowURL = "https://general-runtime.voiceflow.com"

// VoiceflowConfig configures the Voiceflow client.
type VoiceflowConfig struct {
	APIKey  string
	BaseURL string

	// UserID keys the conversation state on the Voiceflow side. A random
	// id is generated when empty.
	UserID string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Voiceflow talks to a Voiceflow agent through the dialog manager API.
type Voiceflow struct {
	cfg    VoiceflowConfig
	client *http.Client
	logger *slog.Logger
}

// NewVoiceflow creates a client.
func NewVoiceflow(cfg VoiceflowConfig) (*Voiceflow, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultVoiceflowURL
	}
	if cfg.UserID == "" {
		cfg.UserID = uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Voiceflow{
		cfg:    cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: logger.With("component", "agent.voiceflow", "user", cfg.UserID),
	}, nil
}

// UserID returns the conversation key.
func (v *Voiceflow) UserID() string {
	return v.cfg.UserID
}

type action struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
}

type trace struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Interact sends text and returns the messages of the text and speak traces
// in order.
func (v *Voiceflow) Interact(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	return v.interact(ctx, action{Type: "text", Payload: text})
}

// Launch starts or restarts the conversation.
func (v *Voiceflow) Launch(ctx context.Context) ([]string, error) {
	return v.interact(ctx, action{Type: "launch"})
}

func (v *Voiceflow) interact(ctx context.Context, a action) ([]string, error) {
	body, err := json.Marshal(map[string]action{"action": a})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/state/user/%s/interact", strings.TrimRight(v.cfg.BaseURL, "/"), url.PathEscape(v.cfg.UserID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voiceflow: build request: %w", err)
	}
	req.Header.Set("Authorization", v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voiceflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, readAPIError("voiceflow", resp)
	}

	var traces []trace
	if err := json.NewDecoder(resp.Body).Decode(&traces); err != nil {
		return nil, fmt.Errorf("voiceflow: %w: %v", ErrBadResponse, err)
	}

	var out []string
	for _, t := range traces {
		if t.Type != "text" && t.Type != "speak" {
			continue
		}
		var p struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(t.Payload, &p) != nil {
			continue
		}
		if msg := strings.TrimSpace(p.Message); msg != "" {
			out = append(out, msg)
		}
	}

	v.logger.Debug("voiceflow reply",
		"action", a.Type,
		"traces", len(traces),
		"messages", len(out),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

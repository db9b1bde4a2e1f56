package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-presence/pkg/audioio"
)

// DefaultURL is the AssemblyAI v3 streaming endpoint.
const DefaultURL = "wss://streaming.assemblyai.com/v3/ws"

// Config configures the streaming client.
type Config struct {
	APIKey  string
	BaseURL string

	// SampleRate must match the audio source.
	SampleRate  int
	FormatTurns bool

	// InactivityTimeout asks the service to end the session after this much
	// silence. Zero leaves the service default.
	InactivityTimeout time.Duration

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	TerminateTimeout time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultURL,
		SampleRate:        16000,
		FormatTurns:       true,
		InactivityTimeout: 10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       120 * time.Second,
		PingInterval:      30 * time.Second,
		TerminateTimeout:  5 * time.Second,
	}
}

// Client opens streaming sessions. It holds no per-session state and may
// run one session at a time per caller.
type Client struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger
}

// NewClient validates cfg and returns a client. Zero fields take defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.TerminateTimeout <= 0 {
		cfg.TerminateTimeout = def.TerminateTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logger.With("component", "asr"),
	}, nil
}

// URL returns the session URL with query parameters.
func (c *Client) URL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("asr: parse url: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(c.cfg.SampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", strconv.FormatBool(c.cfg.FormatTurns))
	if c.cfg.InactivityTimeout > 0 {
		q.Set("inactivity_timeout", strconv.Itoa(int(c.cfg.InactivityTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// message is the union of the service's JSON messages.
type message struct {
	Type string `json:"type"`

	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`

	TurnOrder       int    `json:"turn_order"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	EndOfTurn       bool   `json:"end_of_turn"`
	Transcript      string `json:"transcript"`

	AudioDurationSeconds float64 `json:"audio_duration_seconds"`

	Error string `json:"error"`
}

// session is the state of one Stream call.
type session struct {
	id     string
	ws     *websocket.Conn
	wsMu   sync.Mutex
	logger *slog.Logger
}

func (s *session) writeMessage(kind int, data []byte) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.ws.WriteMessage(kind, data)
}

// Stream connects, starts src and sends its chunks until the session ends.
// Handler h sees Begin, every Turn, and Termination or Error. It returns nil
// when the service terminated the session or src was exhausted.
func (c *Client) Stream(ctx context.Context, src audioio.Source, h Handler) error {
	if h == nil {
		h = func(Event) {}
	}
	endpoint, err := c.URL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", c.cfg.APIKey)

	ws, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &ServerError{Code: 4001, Message: "unauthorized"}
		}
		return fmt.Errorf("asr: connect: %w", err)
	}

	s := &session{id: uuid.NewString(), ws: ws}
	s.logger = c.logger.With("session", s.id)
	defer ws.Close()

	ws.SetPingHandler(func(appData string) error {
		s.wsMu.Lock()
		defer s.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		readErr <- c.readLoop(s, h)
		cancel()
	}()
	go c.keepAlive(sessCtx, s)

	if err := src.Start(sessCtx); err != nil {
		cancel()
		c.terminate(s, readErr)
		return &SessionError{SessionID: s.id, Op: "start audio", Err: err}
	}
	defer src.Stop()

	sendErr := c.sendLoop(sessCtx, s, src)

	// The reader finished first: the service ended the session.
	select {
	case err := <-readErr:
		return c.result(ctx, s, err)
	default:
	}

	if sendErr != nil && !errors.Is(sendErr, context.Canceled) {
		s.logger.Warn("audio send failed", "error", sendErr)
	}
	return c.result(ctx, s, c.terminate(s, readErr))
}

func (c *Client) result(ctx context.Context, s *session, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return nil
	}
	var se *ServerError
	if errors.As(err, &se) {
		return err
	}
	return &SessionError{SessionID: s.id, Op: "stream", Err: err}
}

// sendLoop forwards audio chunks as binary frames.
func (c *Client) sendLoop(ctx context.Context, s *session, src audioio.Source) error {
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// io.EOF and read failures both end the stream.
			return nil
		}
		if len(chunk.Samples) == 0 {
			continue
		}
		if err := s.writeMessage(websocket.BinaryMessage, chunk.Bytes()); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
	}
}

// terminate asks the service to end the session and waits for the reader.
func (c *Client) terminate(s *session, readErr <-chan error) error {
	msg, _ := json.Marshal(map[string]string{"type": "Terminate"})
	if err := s.writeMessage(websocket.TextMessage, msg); err != nil {
		s.logger.Debug("terminate send failed", "error", err)
	}

	select {
	case err := <-readErr:
		return err
	case <-time.After(c.cfg.TerminateTimeout):
		s.ws.Close()
		<-readErr
		return ErrNotTerminated
	}
}

// keepAlive sends periodic pings until ctx is done.
func (c *Client) keepAlive(ctx context.Context, s *session) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.wsMu.Lock()
			err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			s.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop dispatches service messages. It returns nil after Termination.
// Events carry the service's session id once Begin has been seen.
func (c *Client) readLoop(s *session, h Handler) error {
	id, logger := s.id, s.logger
	for {
		s.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		kind, data, err := s.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code == websocket.CloseNormalClosure {
					return nil
				}
				serr := &ServerError{Code: ce.Code, Message: ce.Text}
				h(Event{Type: EventError, SessionID: id, Err: serr})
				return serr
			}
			return err
		}
		if kind != websocket.TextMessage {
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("ignoring malformed message", "error", err)
			continue
		}

		if msg.Error != "" {
			serr := &ServerError{Message: msg.Error}
			h(Event{Type: EventError, SessionID: id, Err: serr})
			return serr
		}

		switch EventType(msg.Type) {
		case EventBegin:
			if msg.ID != "" {
				id = msg.ID
				logger = logger.With("service_session", id)
			}
			ev := Event{Type: EventBegin, SessionID: id}
			if msg.ExpiresAt > 0 {
				ev.ExpiresAt = time.Unix(msg.ExpiresAt, 0)
			}
			logger.Info("asr session started")
			h(ev)

		case EventTurn:
			h(Event{
				Type:       EventTurn,
				SessionID:  id,
				Transcript: msg.Transcript,
				EndOfTurn:  msg.EndOfTurn,
				Formatted:  msg.TurnIsFormatted,
				TurnOrder:  msg.TurnOrder,
			})

		case EventTermination:
			logger.Info("asr session ended", "audio_seconds", msg.AudioDurationSeconds)
			h(Event{
				Type:          EventTermination,
				SessionID:     id,
				AudioDuration: time.Duration(msg.AudioDurationSeconds * float64(time.Second)),
			})
			return nil
		}
	}
}

var _ Transcriber = (*Client)(nil)

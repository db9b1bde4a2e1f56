// Package asr streams microphone audio to AssemblyAI's v3 realtime
// transcription service and reports session events.
//
// A session is blocking: Stream returns once the service terminates the
// session, the audio source ends, or the context is cancelled.
package asr

import (
	"context"
	"time"

	"github.com/teslashibe/go-presence/pkg/audioio"
)

// EventType identifies a streaming session event.
type EventType string

const (
	EventBegin       EventType = "Begin"
	EventTurn        EventType = "Turn"
	EventTermination EventType = "Termination"
	EventError       EventType = "Error"
)

// Event is a single session event delivered to a Handler.
type Event struct {
	Type      EventType
	SessionID string

	// Turn fields. Partial turns arrive with EndOfTurn false.
	Transcript string
	EndOfTurn  bool
	Formatted  bool
	TurnOrder  int

	// ExpiresAt is set on Begin.
	ExpiresAt time.Time

	// AudioDuration is set on Termination.
	AudioDuration time.Duration

	// Err is set on Error.
	Err error
}

// Final reports whether the event is a completed turn.
func (e Event) Final() bool {
	return e.Type == EventTurn && e.EndOfTurn
}

// Handler receives session events in order. It is called from the
// connection's reader goroutine and must not block for long.
type Handler func(Event)

// Transcriber runs blocking transcription sessions.
type Transcriber interface {
	Stream(ctx context.Context, src audioio.Source, h Handler) error
}

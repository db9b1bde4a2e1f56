// Package presence turns the smoothed zone decision into a Presence record,
// publishes it to the state store and flushes it to durable storage.
//
// The tracker does not decide when to run; the detection loop calls Update
// on its own push cadence.
package presence

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-presence/pkg/persist"
	"github.com/teslashibe/go-presence/pkg/speech"
	"github.com/teslashibe/go-presence/pkg/state"
)

// Zone defaults.
const (
	DefaultTargetZone    = "Kitchen"
	DefaultElsewhereZone = "EE Department Level 3"
)

// Persister is durable storage for the presence record.
// *persist.Record[state.Presence] satisfies it.
type Persister interface {
	Save(state.Presence) error
	Load() (state.Presence, bool, error)
}

// Config names the two zones.
type Config struct {
	TargetZone    string
	ElsewhereZone string

	// FixedZone, when set, is reported as the location regardless of the
	// decision. InTargetZone still follows the decision.
	FixedZone string

	// Announce speaks every pushed record.
	Announce bool
}

// DefaultConfig returns the kitchen/elsewhere pair.
func DefaultConfig() Config {
	return Config{
		TargetZone:    DefaultTargetZone,
		ElsewhereZone: DefaultElsewhereZone,
	}
}

// Tracker writes presence records. Update must be called from a single
// goroutine; readers go through the state store.
type Tracker struct {
	cfg     Config
	store   *state.Store
	file    Persister
	speaker speech.Speaker
	clock   func() time.Time
	logger  *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithSpeaker sets where announcements go.
func WithSpeaker(s speech.Speaker) Option {
	return func(t *Tracker) { t.speaker = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a tracker. file may be nil to keep records in memory only.
func New(cfg Config, store *state.Store, file Persister, opts ...Option) *Tracker {
	if cfg.TargetZone == "" {
		cfg.TargetZone = DefaultTargetZone
	}
	if cfg.ElsewhereZone == "" {
		cfg.ElsewhereZone = DefaultElsewhereZone
	}
	t := &Tracker{
		cfg:     cfg,
		store:   store,
		file:    file,
		speaker: speech.Discard,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "presence")
	return t
}

// Location maps a stable decision to the reported zone.
func (t *Tracker) Location(stable bool) string {
	switch {
	case t.cfg.FixedZone != "":
		return t.cfg.FixedZone
	case stable:
		return t.cfg.TargetZone
	default:
		return t.cfg.ElsewhereZone
	}
}

// Update builds a record for the decision, publishes it and flushes it.
// A storage failure is logged; the in-memory record is still updated.
func (t *Tracker) Update(stable bool, reason string, score *float64) state.Presence {
	rec := state.Presence{
		Location:     t.Location(stable),
		InTargetZone: stable,
		Reason:       reason,
		Score:        score,
		Time:         t.clock().Truncate(time.Microsecond),
	}
	rec = t.store.WritePresence(rec)

	if t.file != nil {
		if err := t.file.Save(rec); err != nil {
			t.logger.Warn("presence save failed", "error", err)
		}
	}

	t.logger.Info("presence pushed",
		"location", rec.Location,
		"in_zone", rec.InTargetZone,
		"reason", rec.Reason,
	)

	if t.cfg.Announce {
		if err := t.speaker.Say(fmt.Sprintf("Presence: %s. Reason: %s", rec.Location, rec.Reason)); err != nil {
			t.logger.Debug("presence announce dropped", "error", err)
		}
	}
	return rec
}

// Hydrate loads the stored record into the state store. A missing file is
// not an error; a malformed one is logged and skipped.
func (t *Tracker) Hydrate() bool {
	if t.file == nil {
		return false
	}
	rec, found, err := t.file.Load()
	switch {
	case errors.Is(err, persist.ErrMalformed):
		t.logger.Warn("presence file malformed, starting empty", "error", err)
		return false
	case err != nil:
		t.logger.Warn("presence file unreadable, starting empty", "error", err)
		return false
	case !found:
		return false
	}
	t.store.WritePresence(rec)
	t.logger.Info("presence hydrated", "location", rec.Location, "time", state.FormatTime(rec.Time))
	return true
}

// Package lastseen remembers where and when a tracked item was last seen
// with enough confidence.
package lastseen

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-presence/pkg/detection"
	"github.com/teslashibe/go-presence/pkg/persist"
	"github.com/teslashibe/go-presence/pkg/state"
)

// DefaultThreshold is the minimum confidence for a sighting to count.
const DefaultThreshold = 0.60

// DefaultItemLabels are the labels accepted from multi-class detectors.
var DefaultItemLabels = []string{"spectacle", "spectacles", "glasses", "eyeglasses", "sunglasses"}

// Persister is durable storage for the last-seen record.
// *persist.Record[state.LastSeen] satisfies it.
type Persister interface {
	Save(state.LastSeen) error
	Load() (state.LastSeen, bool, error)
}

// SelectCandidate picks the highest-confidence detection that could be the
// item. A detector with exactly one class is trusted for every detection;
// otherwise labels are matched case-insensitively against itemLabels.
func SelectCandidate(dets []detection.Detection, classCount int, itemLabels []string) *detection.Detection {
	if classCount == 1 {
		return detection.SelectBest(dets, nil)
	}

	allowed := make(map[string]struct{}, len(itemLabels))
	for _, l := range itemLabels {
		allowed[detection.NormalizeLabel(l)] = struct{}{}
	}
	return detection.SelectBest(dets, func(d detection.Detection) bool {
		_, ok := allowed[detection.NormalizeLabel(d.Label)]
		return ok
	})
}

// Tracker gates sightings on confidence and writes them through to the
// state store and durable storage. Not safe for concurrent MaybeUpdate calls.
type Tracker struct {
	threshold float64
	store     *state.Store
	file      Persister
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New creates a tracker. file may be nil to keep sightings in memory only.
func New(threshold float64, store *state.Store, file Persister, opts ...Option) *Tracker {
	t := &Tracker{
		threshold: threshold,
		store:     store,
		file:      file,
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "lastseen")
	return t
}

// Threshold returns the acceptance threshold.
func (t *Tracker) Threshold() float64 {
	return t.threshold
}

// MaybeUpdate records c at place when its confidence reaches the threshold.
// It returns false, leaving everything untouched, for a nil or weak candidate.
func (t *Tracker) MaybeUpdate(c *detection.Detection, place string) bool {
	if c == nil {
		return false
	}
	d := c.Sanitize()
	if d.Confidence < t.threshold {
		return false
	}

	now := t.clock().Truncate(time.Microsecond)
	conf := d.Confidence
	label := d.Label
	rec := state.LastSeen{
		Place:      &place,
		Time:       &now,
		Confidence: &conf,
		Label:      &label,
	}
	if d.Box != nil {
		b := *d.Box
		rec.Box = &b
	}

	t.store.WriteLastSeen(rec)
	if t.file != nil {
		if err := t.file.Save(rec); err != nil {
			t.logger.Warn("last-seen save failed", "error", err)
		}
	}

	t.logger.Info("item sighted", "label", label, "conf", conf, "place", place)
	return true
}

// Hydrate loads the stored record into the state store at startup. A
// missing file leaves the record empty; a malformed one is logged.
func (t *Tracker) Hydrate() bool {
	if t.file == nil {
		return false
	}
	rec, found, err := t.file.Load()
	switch {
	case errors.Is(err, persist.ErrMalformed):
		t.logger.Warn("last-seen file malformed, starting empty", "error", err)
		return false
	case err != nil:
		t.logger.Warn("last-seen file unreadable, starting empty", "error", err)
		return false
	case !found || rec.IsZero():
		return false
	}
	t.store.WriteLastSeen(rec)
	t.logger.Info("last-seen hydrated", "place", deref(rec.Place))
	return true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

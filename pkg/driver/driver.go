// Package driver runs the per-frame pipeline: anchor detection, evidence
// evaluation, smoothing, presence pushes and periodic item sightings.
//
// The driver is the only writer of presence and last-seen records.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-presence/pkg/detection"
	"github.com/teslashibe/go-presence/pkg/evidence"
	"github.com/teslashibe/go-presence/pkg/lastseen"
	"github.com/teslashibe/go-presence/pkg/presence"
	"github.com/teslashibe/go-presence/pkg/speech"
	"github.com/teslashibe/go-presence/pkg/stability"
	"github.com/teslashibe/go-presence/pkg/state"
)

// ErrNoFrame is returned by a Source when a read produced nothing but the
// device is still usable.
var ErrNoFrame = errors.New("driver: no frame")

// Source yields frames. Read returns io.EOF when the source is exhausted.
type Source interface {
	Read(ctx context.Context) (detection.Frame, error)
}

// Trigger says why presence was pushed.
type Trigger string

const (
	TriggerFirst     Trigger = "first"
	TriggerChange    Trigger = "change"
	TriggerHeartbeat Trigger = "heartbeat"
)

// Observer receives pipeline measurements.
type Observer interface {
	FrameProcessed(elapsed time.Duration)
	PresencePushed(trigger Trigger)
	LastSeenUpdated()
	DetectorError(stage string)
}

type nopObserver struct{}

func (nopObserver) FrameProcessed(time.Duration) {}
func (nopObserver) PresencePushed(Trigger) {}
func (nopObserver) LastSeenUpdated() {}
func (nopObserver) DetectorError(string) {}

// Config controls loop cadence.
type Config struct {
	// PushInterval is the presence heartbeat.
	PushInterval time.Duration

	// ItemEveryN runs the item detector on frames whose index is a multiple of N.
	ItemEveryN int

	// ItemLabels filters multi-class item detectors.
	ItemLabels []string

	// HeartbeatEvery logs a progress line every N frames.
	HeartbeatEvery int

	// ReadMissDelay is slept after ErrNoFrame.
	ReadMissDelay time.Duration

	// ErrorDelay is slept after any other source error.
	ErrorDelay time.Duration
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		PushInterval:   15 * time.Second,
		ItemEveryN:     3,
		ItemLabels:     lastseen.DefaultItemLabels,
		HeartbeatEvery: 150,
		ReadMissDelay:  20 * time.Millisecond,
		ErrorDelay:     500 * time.Millisecond,
	}
}

// Components are the collaborators the driver calls each frame.
type Components struct {
	Anchor    detection.Detector
	Item      detection.Detector
	Evaluator *evidence.Evaluator
	Smoother  *stability.Smoother
	Presence  *presence.Tracker
	LastSeen  *lastseen.Tracker
	Store     *state.Store
	Speaker   speech.Speaker
}

// FrameResult summarizes one processed frame.
type FrameResult struct {
	Index    int64
	Decision evidence.Result
	Stable   bool

	Pushed  bool
	Trigger Trigger

	ItemChecked bool
	Sighted     bool
	Announced   string
}

// Driver is not safe for concurrent use; run it on one goroutine.
type Driver struct {
	cfg    Config
	c      Components
	obs    Observer
	clock  func() time.Time
	logger *slog.Logger

	frameIdx   int64
	prevStable *bool
	lastPush   time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithObserver attaches metrics.
func WithObserver(o Observer) Option {
	return func(d *Driver) { d.obs = o }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(d *Driver) { d.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New validates the components and creates a driver.
func New(cfg Config, c Components, opts ...Option) (*Driver, error) {
	if c.Anchor == nil || c.Evaluator == nil || c.Smoother == nil || c.Presence == nil || c.Store == nil {
		return nil, errors.New("driver: anchor detector, evaluator, smoother, presence tracker and store are required")
	}
	if c.Item != nil && c.LastSeen == nil {
		return nil, errors.New("driver: item detector requires a last-seen tracker")
	}
	if c.Speaker == nil {
		c.Speaker = speech.Discard
	}
	def := DefaultConfig()
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = def.PushInterval
	}
	if cfg.ItemEveryN <= 0 {
		cfg.ItemEveryN = def.ItemEveryN
	}
	if cfg.ItemLabels == nil {
		cfg.ItemLabels = def.ItemLabels
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = def.HeartbeatEvery
	}
	if cfg.ReadMissDelay <= 0 {
		cfg.ReadMissDelay = def.ReadMissDelay
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = def.ErrorDelay
	}

	d := &Driver{
		cfg:    cfg,
		c:      c,
		obs:    nopObserver{},
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "driver")
	return d, nil
}

// ProcessFrame runs the pipeline on one frame. An anchor detector failure
// skips the frame and is returned; an item detector failure is logged and
// the presence half of the frame still counts.
func (d *Driver) ProcessFrame(ctx context.Context, frame detection.Frame) (FrameResult, error) {
	start := d.clock()

	dets, err := d.c.Anchor.Detect(frame)
	if err != nil {
		d.obs.DetectorError("anchor")
		return FrameResult{Index: d.frameIdx}, fmt.Errorf("anchor detector: %w", err)
	}

	res := FrameResult{Index: d.frameIdx}
	res.Decision = d.c.Evaluator.Evaluate(detection.BestByLabel(dets))
	res.Stable = d.c.Smoother.Observe(res.Decision.Present)

	now := d.clock()
	switch {
	case d.prevStable == nil:
		res.Trigger = TriggerFirst
	case *d.prevStable != res.Stable:
		res.Trigger = TriggerChange
	case now.Sub(d.lastPush) >= d.cfg.PushInterval:
		res.Trigger = TriggerHeartbeat
	}
	if res.Trigger != "" {
		score := res.Decision.Score
		d.c.Presence.Update(res.Stable, res.Decision.Reason, &score)
		d.lastPush = now
		stable := res.Stable
		d.prevStable = &stable
		res.Pushed = true
		d.obs.PresencePushed(res.Trigger)
	}

	if d.c.Item != nil && d.frameIdx%int64(d.cfg.ItemEveryN) == 0 {
		res.ItemChecked = true
		d.checkItem(frame, res.Stable, &res)
	}

	if d.frameIdx%int64(d.cfg.HeartbeatEvery) == 0 {
		d.logger.Info("running", "frame", d.frameIdx, "stable", res.Stable, "reason", res.Decision.Reason)
	}

	d.frameIdx++
	d.obs.FrameProcessed(d.clock().Sub(start))
	return res, nil
}

func (d *Driver) checkItem(frame detection.Frame, stable bool, res *FrameResult) {
	dets, err := d.c.Item.Detect(frame)
	if err != nil {
		d.obs.DetectorError("item")
		d.logger.Warn("item detector failed", "frame", d.frameIdx, "error", err)
		return
	}

	cand := lastseen.SelectCandidate(dets, len(d.c.Item.Classes()), d.cfg.ItemLabels)
	place := d.c.Presence.Location(stable)
	if !d.c.LastSeen.MaybeUpdate(cand, place) {
		return
	}
	res.Sighted = true
	d.obs.LastSeenUpdated()

	req, ok := d.c.Store.TakeAnnounce()
	if !ok {
		return
	}
	rec, _ := d.c.Store.ReadLastSeen()
	msg := announcement(req.Item, rec)
	if err := d.c.Speaker.Say(msg); err != nil {
		d.logger.Warn("announce dropped", "error", err)
	}
	res.Announced = msg
	d.logger.Info("announced", "request", req.ID, "message", msg)
}

func announcement(item string, rec state.LastSeen) string {
	if item == "" {
		item = "spectacles"
	}
	place, when := "an unknown place", "an unknown time"
	if rec.Place != nil {
		place = *rec.Place
	}
	if rec.Time != nil {
		when = state.FormatTime(*rec.Time)
	}
	return fmt.Sprintf("Your %s were last seen at %s, at %s.", item, place, when)
}

// Run processes frames from src until ctx is cancelled or src returns
// io.EOF. Frame and detector errors are logged and the loop continues.
func (d *Driver) Run(ctx context.Context, src Source) error {
	d.logger.Info("detection loop started")
	defer d.logger.Info("detection loop exiting", "frames", d.frameIdx)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		frame, err := src.Read(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, ErrNoFrame):
			sleep(ctx, d.cfg.ReadMissDelay)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warn("frame read failed", "error", err)
			sleep(ctx, d.cfg.ErrorDelay)
			continue
		}

		if _, err := d.ProcessFrame(ctx, frame); err != nil {
			d.logger.Warn("frame skipped", "error", err)
		}
		frame.Close()
	}
}

// Frames returns how many frames have been processed.
func (d *Driver) Frames() int64 {
	return d.frameIdx
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
